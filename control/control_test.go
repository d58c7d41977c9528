/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package control_test

import (
	"testing"
	"time"

	"github.com/RonIovine/pshell-sub000/control"
	"github.com/RonIovine/pshell-sub000/lock"
	"github.com/RonIovine/pshell-sub000/transport/udp"
	"github.com/RonIovine/pshell-sub000/wire"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestControl(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Control Suite")
}

// fakeUDPServer answers every request it receives, until stopped, with
// CommandSuccess, echoing the sequence number back, standing in for a
// real server.Server for these client-focused tests.
func fakeUDPServer(t GinkgoTInterface) (port int, stop func()) {
	ep, err := udp.Bind("127.0.0.1", 0)
	Expect(err).ToNot(HaveOccurred())
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			raw, peer, err := ep.ReadFrom(time.Now().Add(50 * time.Millisecond))
			if err != nil {
				continue
			}
			msg, err := wire.Decode(raw)
			if err != nil {
				continue
			}
			reply := wire.Message{
				Header:  wire.Header{Type: wire.CommandSuccess, SeqNum: msg.Header.SeqNum},
				Payload: []byte("ok: " + string(msg.Payload)),
			}
			_ = ep.SendTo(peer, wire.Encode(reply))
		}
	}()
	return ep.LocalPort(), func() { close(done); ep.Close() }
}

var _ = Describe("Client", func() {
	It("connects to a server over UDP and round-trips a command", func() {
		port, stop := fakeUDPServer(GinkgoT())
		defer stop()

		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		c, err := control.New(dir, nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.DisconnectAll()

		Expect(c.ConnectUDP("srv1", "127.0.0.1", port)).To(Succeed())

		status, payload := c.SendCommand("srv1", "greet", true, time.Second)
		Expect(status).To(Equal(control.Success))
		Expect(string(payload)).To(Equal("ok: greet"))
	})

	It("reports SocketNotConnected for an unknown server name", func() {
		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		c, err := control.New(dir, nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.DisconnectAll()

		status, _ := c.SendCommand("nope", "greet", true, time.Second)
		Expect(status).To(Equal(control.SocketNotConnected))
	})

	It("rejects the reserved group name \"all\" as a server name", func() {
		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		c, err := control.New(dir, nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.DisconnectAll()

		Expect(c.ConnectUDP("all", "127.0.0.1", 9000)).To(HaveOccurred())
	})

	It("fans a command out to every member of a group", func() {
		port1, stop1 := fakeUDPServer(GinkgoT())
		defer stop1()
		port2, stop2 := fakeUDPServer(GinkgoT())
		defer stop2()

		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		c, err := control.New(dir, nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.DisconnectAll()

		Expect(c.ConnectUDP("srv1", "127.0.0.1", port1)).To(Succeed())
		Expect(c.ConnectUDP("srv2", "127.0.0.1", port2)).To(Succeed())

		statuses := c.SendCommandGroup("all", "ping")
		Expect(statuses).To(HaveLen(2))
		for _, st := range statuses {
			Expect(st).To(Equal(control.Success))
		}
	})

	It("also reaches a group whose keyword prefixes the command, beyond the named group", func() {
		port1, stop1 := fakeUDPServer(GinkgoT())
		defer stop1()

		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		c, err := control.New(dir, nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.DisconnectAll()

		Expect(c.ConnectUDP("srv1", "127.0.0.1", port1)).To(Succeed())
		Expect(c.JoinGroup("netgrp", "srv1")).To(Succeed())

		// "other" names no registered group; srv1 belongs both to
		// "netgrp", which prefixes the command, and to the implicit "all"
		// group it joined on connect, and is sent the command once.
		statuses := c.SendCommandGroup("other", "netgrp status")
		Expect(statuses).To(HaveLen(1))
		Expect(statuses[0]).To(Equal(control.Success))
	})

	It("reports IsGroupKeyword true only for the reserved \"all\" keyword or a namespaced variant", func() {
		Expect(control.IsGroupKeyword("all")).To(BeTrue())
		Expect(control.IsGroupKeyword("cluster:all")).To(BeTrue())
		Expect(control.IsGroupKeyword("netgrp")).To(BeFalse())
	})
})
