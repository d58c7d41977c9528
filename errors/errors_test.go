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

package errors_test

import (
	"errors"
	"testing"

	liberr "github.com/RonIovine/pshell-sub000/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errors Suite")
}

var _ = Describe("Error", func() {
	It("formats as PSHELL_ERROR: <text>", func() {
		e := liberr.New(liberr.CommandNotFound, "command '%s' not found", "stat")
		Expect(e.Error()).To(Equal("PSHELL_ERROR: command 'stat' not found"))
	})

	It("chains a parent error", func() {
		parent := errors.New("boom")
		e := liberr.Wrap(liberr.BindFailure, parent, "bind failed")
		Expect(e.Error()).To(ContainSubstring("bind failed"))
		Expect(e.Error()).To(ContainSubstring("boom"))
		Expect(errors.Unwrap(e)).To(Equal(parent))
	})

	It("matches by code through errors.Is", func() {
		e1 := liberr.New(liberr.Timeout, "slow")
		e2 := liberr.New(liberr.Timeout, "different detail")
		Expect(errors.Is(e1, e2)).To(BeTrue())
	})

	It("falls back to unknown error for unregistered codes", func() {
		var c liberr.Code = 200
		Expect(c.String()).To(Equal("unknown error"))
	})
})
