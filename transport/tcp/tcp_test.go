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

package tcp_test

import (
	"net"
	"testing"
	"time"

	"github.com/RonIovine/pshell-sub000/editor"
	"github.com/RonIovine/pshell-sub000/transport/tcp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTCP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TCP Transport Suite")
}

var _ = Describe("Listener", func() {
	It("writes the 12-byte Telnet handshake immediately after accept", func() {
		ln, err := tcp.Listen("127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()

		addr := ln.Addr()

		done := make(chan *tcp.Session, 1)
		go func() {
			s, aerr := ln.Accept()
			Expect(aerr).ToNot(HaveOccurred())
			done <- s
		}()

		conn, err := net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		buf := make([]byte, len(tcp.Handshake))
		_, err = conn.Read(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf).To(Equal(tcp.Handshake))

		sess := <-done
		defer sess.Close()
	})

	It("enforces a single session: Shutdown then Reopen recreates the listener", func() {
		ln, err := tcp.Listen("127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		addr := ln.Addr()

		done := make(chan struct{}, 1)
		go func() {
			s, aerr := ln.Accept()
			Expect(aerr).ToNot(HaveOccurred())
			s.Close()
			done <- struct{}{}
		}()

		conn, err := net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
		buf := make([]byte, len(tcp.Handshake))
		_, _ = conn.Read(buf)
		conn.Close()
		<-done

		Expect(ln.Shutdown()).To(Succeed())
		Expect(ln.Reopen()).To(Succeed())
		defer ln.Close()

		_, err = net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
	})
})

var _ = Describe("Session", func() {
	It("reports ErrIdleTimeout when the deadline elapses with no data", func() {
		ln, err := tcp.Listen("127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()
		addr := ln.Addr()

		sessCh := make(chan *tcp.Session, 1)
		go func() {
			s, _ := ln.Accept()
			sessCh <- s
		}()

		conn, err := net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()
		buf := make([]byte, len(tcp.Handshake))
		_, _ = conn.Read(buf)

		sess := <-sessCh
		defer sess.Close()

		_, err = sess.ReadByte(time.Now().Add(20 * time.Millisecond))
		Expect(err).To(Equal(editor.ErrIdleTimeout))
	})

	It("reads a byte written by the peer before the deadline", func() {
		ln, err := tcp.Listen("127.0.0.1:0")
		Expect(err).ToNot(HaveOccurred())
		defer ln.Close()
		addr := ln.Addr()

		sessCh := make(chan *tcp.Session, 1)
		go func() {
			s, _ := ln.Accept()
			sessCh <- s
		}()

		conn, err := net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()
		buf := make([]byte, len(tcp.Handshake))
		_, _ = conn.Read(buf)

		sess := <-sessCh
		defer sess.Close()

		_, err = conn.Write([]byte{'x'})
		Expect(err).ToNot(HaveOccurred())

		b, err := sess.ReadByte(time.Now().Add(time.Second))
		Expect(err).ToNot(HaveOccurred())
		Expect(b).To(Equal(byte('x')))
	})
})
