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

package config_test

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RonIovine/pshell-sub000/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Parse", func() {
	It("parses key.subkey=value lines, skipping blanks and comments", func() {
		src := "# a comment\n\nserver1.host=127.0.0.1\nserver1.port=6001\nserver2.host=10.0.0.5\n"
		f, err := config.Parse(bufio.NewScanner(strings.NewReader(src)))
		Expect(err).ToNot(HaveOccurred())

		host, ok := f.Get("server1", "host")
		Expect(ok).To(BeTrue())
		Expect(host).To(Equal("127.0.0.1"))

		port, ok := f.Get("server1", "port")
		Expect(ok).To(BeTrue())
		Expect(port).To(Equal("6001"))

		Expect(f.Keys()).To(Equal([]string{"server1", "server2"}))
	})

	It("preserves first-appearance order across many keys", func() {
		src := "zeta.host=1.1.1.1\nalpha.host=2.2.2.2\nmid.host=3.3.3.3\n"
		f, err := config.Parse(bufio.NewScanner(strings.NewReader(src)))
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Keys()).To(Equal([]string{"zeta", "alpha", "mid"}))
	})

	It("rejects a line missing '='", func() {
		_, err := config.Parse(bufio.NewScanner(strings.NewReader("not-a-valid-line")))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a key missing '.'", func() {
		_, err := config.Parse(bufio.NewScanner(strings.NewReader("noDot=value")))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LoadConfigFile", func() {
	It("finds a config file via $PSHELL_CONFIG_DIR before the compiled default", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "pshell.conf"), []byte("srv.host=1.2.3.4\n"), 0o644)).To(Succeed())

		GinkgoT().Setenv("PSHELL_CONFIG_DIR", dir)
		f, err := config.LoadConfigFile("pshell.conf")
		Expect(err).ToNot(HaveOccurred())

		host, ok := f.Get("srv", "host")
		Expect(ok).To(BeTrue())
		Expect(host).To(Equal("1.2.3.4"))
	})
})

var _ = Describe("BatchLines", func() {
	It("returns commands in order, skipping blanks and comments", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "batch.txt")
		Expect(os.WriteFile(path, []byte("# header\ncmd1 arg1\n\ncmd2\n"), 0o644)).To(Succeed())

		lines, err := config.BatchLines(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(lines).To(Equal([]string{"cmd1 arg1", "cmd2"}))
	})
})
