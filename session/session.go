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

// Package session models the per-connection state of one interactive
// (TCP or local-TTY) pshell session: the peer identity, its bound
// editor, and its idle deadline. UDP/UNIX control traffic is stateless
// request/reply and never allocates a Session.
package session

import (
	"time"

	"github.com/RonIovine/pshell-sub000/editor"
)

// Spinner renders one frame of the animated progress indicator the
// original local-TTY client shows while a long-running command executes
// (recovered from PshellServer.c's _wheel table). Sessions with no live
// terminal (TCP without an interactive peer, UDP, UNIX) leave this nil.
type Spinner interface {
	Spin()
	Stop()
}

// wheelFrames is the 4-frame cycle of the original's animated spinner.
var wheelFrames = [...]byte{'|', '/', '-', '\\'}

// WheelSpinner drives wheelFrames over conn, one frame per Spin call.
type WheelSpinner struct {
	conn  editor.Conn
	frame int
}

// NewWheelSpinner binds a spinner to an interactive connection.
func NewWheelSpinner(conn editor.Conn) *WheelSpinner {
	return &WheelSpinner{conn: conn}
}

// Spin writes "\b<next frame>", backing up over the previous one.
func (w *WheelSpinner) Spin() {
	w.conn.Write([]byte{'\b', wheelFrames[w.frame%len(wheelFrames)]})
	w.frame++
}

// Stop erases the spinner character.
func (w *WheelSpinner) Stop() {
	w.conn.Write([]byte{'\b', ' ', '\b'})
}

// Session is the live state of one interactive connection.
type Session struct {
	PeerAddress string
	ConnFd      int
	Editor      *editor.Editor
	IdleTimeout time.Duration
	Spinner     Spinner

	closed bool
}

// New builds a Session bound to an already-constructed Editor (the
// caller selects Telnet mode and completion source appropriately for
// the transport: on for tcp, off for local).
func New(peerAddress string, connFd int, ed *editor.Editor, idleTimeout time.Duration) *Session {
	return &Session{
		PeerAddress: peerAddress,
		ConnFd:      connFd,
		Editor:      ed,
		IdleTimeout: idleTimeout,
	}
}

// ReadCommandLine reads one line from the session's editor, honoring its
// idle timeout.
func (s *Session) ReadCommandLine(prompt string) (string, error) {
	return s.Editor.ReadLine(prompt, s.IdleTimeout)
}

// Close marks the session ended; idempotent.
func (s *Session) Close() {
	if s.Spinner != nil {
		s.Spinner.Stop()
	}
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed }
