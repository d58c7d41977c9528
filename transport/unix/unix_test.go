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

package unix_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RonIovine/pshell-sub000/transport/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestUnix(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Unix Transport Suite")
}

var _ = Describe("Endpoint", func() {
	It("round-trips a datagram between two bound endpoints", func() {
		dir := GinkgoT().TempDir()
		serverPath := filepath.Join(dir, "server")
		clientPath := filepath.Join(dir, "client")

		server, err := unix.Bind(serverPath)
		Expect(err).ToNot(HaveOccurred())
		defer server.Close()

		client, err := unix.Bind(clientPath)
		Expect(err).ToNot(HaveOccurred())
		defer client.Close()

		Expect(client.SendTo(serverPath, []byte("ping"))).To(Succeed())

		payload, peer, err := server.ReadFrom(time.Now().Add(time.Second))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(payload)).To(Equal("ping"))
		Expect(peer).To(Equal(clientPath))

		Expect(server.SendTo(peer, []byte("pong"))).To(Succeed())
		reply, _, err := client.ReadFrom(time.Now().Add(time.Second))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(reply)).To(Equal("pong"))
	})

	It("times out ReadFrom when no datagram arrives", func() {
		dir := GinkgoT().TempDir()
		e, err := unix.Bind(filepath.Join(dir, "idle"))
		Expect(err).ToNot(HaveOccurred())
		defer e.Close()

		_, _, err = e.ReadFrom(time.Now().Add(20 * time.Millisecond))
		Expect(err).To(HaveOccurred())
	})

	It("re-binds cleanly over a stale socket node left by a prior run", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "reused")

		first, err := unix.Bind(path)
		Expect(err).ToNot(HaveOccurred())
		first.Close() // leaves the filesystem node behind, as a crash would

		second, err := unix.Bind(path)
		Expect(err).ToNot(HaveOccurred())
		defer second.Close()
		Expect(second.Path()).To(Equal(path))
	})
})
