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

package server_test

import (
	"io"
	"strings"
	"testing"

	"github.com/RonIovine/pshell-sub000/command"
	"github.com/RonIovine/pshell-sub000/lock"
	"github.com/RonIovine/pshell-sub000/obuffer"
	"github.com/RonIovine/pshell-sub000/server"
	"github.com/RonIovine/pshell-sub000/wire"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

func newTestServer() *server.Server {
	dir, err := lock.New(GinkgoT().TempDir(), nil)
	Expect(err).ToNot(HaveOccurred())
	s, err := server.New(server.Descriptor{
		Name: "testsrv", Banner: "test banner", Title: "test title", Prompt: "test> ",
	}, server.WithLockDir(dir))
	Expect(err).ToNot(HaveOccurred())
	return s
}

var _ = Describe("Server", func() {
	It("answers QueryName/QueryBanner/QueryTitle/QueryPrompt from its descriptor", func() {
		s := newTestServer()

		resp := s.Dispatch(wire.Message{Header: wire.Header{Type: wire.QueryName, SeqNum: 1}})
		Expect(resp.Header.Type).To(Equal(wire.CommandComplete))
		Expect(string(resp.Payload)).To(Equal("testsrv"))
		Expect(resp.Header.SeqNum).To(Equal(uint32(1)))

		resp = s.Dispatch(wire.Message{Header: wire.Header{Type: wire.QueryBanner}})
		Expect(string(resp.Payload)).To(Equal("test banner"))

		resp = s.Dispatch(wire.Message{Header: wire.Header{Type: wire.QueryPrompt}})
		Expect(string(resp.Payload)).To(Equal("test> "))
	})

	It("answers QueryVersion with the protocol version", func() {
		s := newTestServer()
		resp := s.Dispatch(wire.Message{Header: wire.Header{Type: wire.QueryVersion}})
		Expect(string(resp.Payload)).To(Equal("1"))
	})

	It("dispatches a user command and terminates with CommandComplete and its output", func() {
		s := newTestServer()
		Expect(s.AddCommand(command.New("greet", "say hi", func(out, errw io.Writer, args []string) {
			out.Write([]byte("hi there"))
		}))).To(Succeed())

		resp := s.Dispatch(wire.Message{
			Header:  wire.Header{Type: wire.UserCommand, DataNeeded: true},
			Payload: []byte("greet"),
		})
		Expect(resp.Header.Type).To(Equal(wire.CommandComplete))
		Expect(string(resp.Payload)).To(Equal("hi there"))
	})

	It("terminates a successful ControlCommand with CommandSuccess, not CommandComplete", func() {
		s := newTestServer()
		Expect(s.AddCommand(command.New("greet", "say hi", func(out, errw io.Writer, args []string) {
			out.Write([]byte("hi there"))
		}))).To(Succeed())

		resp := s.Dispatch(wire.Message{
			Header:  wire.Header{Type: wire.ControlCommand, DataNeeded: true},
			Payload: []byte("greet"),
		})
		Expect(resp.Header.Type).To(Equal(wire.CommandSuccess))
		Expect(string(resp.Payload)).To(Equal("hi there"))
	})

	It("reports CommandNotFound for an unknown control command", func() {
		s := newTestServer()
		resp := s.Dispatch(wire.Message{
			Header:  wire.Header{Type: wire.ControlCommand, DataNeeded: true},
			Payload: []byte("bogus"),
		})
		Expect(resp.Header.Type).To(Equal(wire.CommandNotFound))
	})

	It("precedes the terminal frame with an UpdatePayloadSize frame once the buffer grows", func() {
		s := newTestServer()
		big := strings.Repeat("x", 200*1024)
		Expect(s.AddCommand(command.New("dump", "emit a big payload", func(out, errw io.Writer, args []string) {
			out.Write([]byte(big))
		}))).To(Succeed())

		frames := s.DispatchFrames(wire.Message{
			Header:  wire.Header{Type: wire.UserCommand, DataNeeded: true},
			Payload: []byte("dump"),
		})
		Expect(frames).To(HaveLen(2))
		Expect(frames[0].Header.Type).To(Equal(wire.UpdatePayloadSize))
		Expect(frames[1].Header.Type).To(Equal(wire.CommandComplete))
		Expect(string(frames[1].Payload)).To(Equal(big))
	})

	It("precedes the terminal frame with UserCommand-typed interim frames under FlushOnOverflow", func() {
		dir, err := lock.New(GinkgoT().TempDir(), nil)
		Expect(err).ToNot(HaveOccurred())
		s, err := server.New(server.Descriptor{Name: "flushsrv"},
			server.WithLockDir(dir), server.WithOverflowPolicy(obuffer.FlushOnOverflow))
		Expect(err).ToNot(HaveOccurred())

		big := strings.Repeat("y", 200*1024)
		Expect(s.AddCommand(command.New("dump", "emit a big payload", func(out, errw io.Writer, args []string) {
			out.Write([]byte(big))
		}))).To(Succeed())

		frames := s.DispatchFrames(wire.Message{
			Header:  wire.Header{Type: wire.UserCommand, DataNeeded: true},
			Payload: []byte("dump"),
		})
		Expect(len(frames)).To(BeNumerically(">", 1))

		var total []byte
		for i, f := range frames {
			if i < len(frames)-1 {
				Expect(f.Header.Type).To(Equal(wire.UserCommand))
			} else {
				Expect(f.Header.Type).To(Equal(wire.CommandComplete))
			}
			total = append(total, f.Payload...)
		}
		Expect(string(total)).To(Equal(big))
	})

	It("lists registered commands verbosely via QueryCommandsVerbose", func() {
		s := newTestServer()
		Expect(s.AddCommand(command.New("greet", "say hi", nil))).To(Succeed())

		resp := s.Dispatch(wire.Message{Header: wire.Header{Type: wire.QueryCommandsVerbose}})
		Expect(string(resp.Payload)).To(ContainSubstring("greet"))
		Expect(string(resp.Payload)).To(ContainSubstring("say hi"))
	})
})
