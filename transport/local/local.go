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

// Package local implements the "no socket" local-TTY transport of spec
// §4.C: stdin is placed in non-canonical, no-echo mode for the duration
// of each key read, then restored.
package local

import (
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/RonIovine/pshell-sub000/editor"
)

// TTY adapts os.Stdin/os.Stdout to editor.Conn, toggling raw mode around
// each byte read per spec §4.C.
type TTY struct {
	in       *os.File
	out      io.Writer
	fd       int
	oldState *term.State
}

// New wraps the given input file (os.Stdin in production, any *os.File in
// tests) and output writer.
func New(in *os.File, out io.Writer) *TTY {
	return &TTY{in: in, out: out, fd: int(in.Fd())}
}

// Write implements editor.Conn, passing output straight through (no
// Telnet translation on a local TTY).
func (t *TTY) Write(p []byte) (int, error) { return t.out.Write(p) }

// ReadByte toggles raw/no-echo mode on, reads a single byte (honoring
// deadline via a poll), then restores the previous terminal state.
func (t *TTY) ReadByte(deadline time.Time) (byte, error) {
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return 0, err
	}
	defer term.Restore(t.fd, state)

	if !deadline.IsZero() {
		ready, err := pollReadable(t.fd, time.Until(deadline))
		if err != nil {
			return 0, err
		}
		if !ready {
			return 0, editor.ErrIdleTimeout
		}
	}

	var buf [1]byte
	n, err := t.in.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, editor.ErrIdleTimeout
	}
	return buf[0], nil
}

// pollReadable waits up to timeout for fd to become readable, matching
// the non-blocking select the spec's idle timeout is built on (§4.D).
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 0
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	n, err := unix.Poll(fds, ms)
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}
