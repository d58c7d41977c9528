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

// Package tcp implements the single-session TCP-telnet transport of spec
// §4.C: a listener that is closed after each accept and reopened after
// the session ends, and the 12-byte Telnet handshake of spec §6.
package tcp

import (
	"net"
	"time"

	"github.com/RonIovine/pshell-sub000/editor"
	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// Handshake is the 12-byte sequence the server writes immediately after
// accept, before entering the editor: IAC WILL SGA, IAC WILL ECHO,
// IAC DO SGA, IAC DO ECHO (spec §6).
var Handshake = []byte{
	0xff, 0xfb, 0x03, // IAC WILL SUPPRESS-GO-AHEAD
	0xff, 0xfb, 0x01, // IAC WILL ECHO
	0xff, 0xfd, 0x03, // IAC DO SUPPRESS-GO-AHEAD
	0xff, 0xfd, 0x01, // IAC DO ECHO
}

// Listener wraps a net.TCPListener, enforcing exactly one session at a
// time: the caller must call Shutdown immediately after Accept returns
// so no second peer can queue against the backlog, then Reopen once
// the session ends.
type Listener struct {
	addr string
	ln   *net.TCPListener
}

// Listen binds addr. The listen backlog is the system default applied by
// net.ListenTCP, not 1; single-session behavior comes from Shutdown.
func Listen(addr string) (*Listener, error) {
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "resolve tcp addr %q", addr)
	}
	ln, err := net.ListenTCP("tcp", a)
	if err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "listen tcp %q", addr)
	}
	return &Listener{addr: addr, ln: ln}, nil
}

// Addr returns the listener's bound address, for discovery and tests.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Accept blocks for the single connection this listener will ever
// deliver before it must be Reopen'd. It writes the Telnet handshake
// before returning.
func (l *Listener) Accept() (*Session, error) {
	conn, err := l.ln.AcceptTCP()
	if err != nil {
		return nil, liberr.Wrap(liberr.ReceiveFailure, err, "accept tcp connection")
	}
	if _, err := conn.Write(Handshake); err != nil {
		conn.Close()
		return nil, liberr.Wrap(liberr.SendFailure, err, "write telnet handshake")
	}
	return &Session{conn: conn}, nil
}

// Shutdown closes the listening socket so no new peer can connect or
// queue. The socket is closed, not shut down and kept; Reopen binds a
// new one at the same address.
func (l *Listener) Shutdown() error {
	return l.ln.Close()
}

// Reopen recreates the listener at the same address after a session
// ends.
func (l *Listener) Reopen() error {
	nl, err := Listen(l.addr)
	if err != nil {
		return err
	}
	l.ln = nl.ln
	return nil
}

// Close tears the listener down permanently (server shutdown).
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Session adapts one accepted *net.TCPConn to editor.Conn.
type Session struct {
	conn *net.TCPConn
}

// PeerAddr returns the remote address, for session.Session.
func (s *Session) PeerAddr() string { return s.conn.RemoteAddr().String() }

// Write implements editor.Conn.
func (s *Session) Write(p []byte) (int, error) { return s.conn.Write(p) }

// ReadByte implements editor.Conn, using SetReadDeadline for the idle
// timeout rather than a raw select loop (net.Conn already exposes one).
func (s *Session) ReadByte(deadline time.Time) (byte, error) {
	if !deadline.IsZero() {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	var buf [1]byte
	n, err := s.conn.Read(buf[:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, editor.ErrIdleTimeout
		}
		return 0, err
	}
	if n == 0 {
		return 0, editor.ErrIdleTimeout
	}
	return buf[0], nil
}

// Close ends the session's connection.
func (s *Session) Close() error { return s.conn.Close() }
