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

// Package unix implements the UNIX-domain datagram transport of spec
// §4.C, used by both the server's control endpoint and the control
// library's client side. A server's socket path comes from lock.Dir
// (lock.Entry.SocketPath), which also removes the node on Release; this
// package binds at a path (replacing any node already there) and
// reads/writes datagrams against it.
package unix

import (
	"net"
	"os"
	"time"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// MaxDatagram bounds a single recvfrom, matching wire.DefaultPayloadChunk
// plus header overhead.
const MaxDatagram = 64*1024 + 8

// Endpoint is a bound UNIX datagram socket, used either as a server's
// listening endpoint or a control client's reply endpoint.
type Endpoint struct {
	path string
	conn *net.UnixConn
}

// Bind creates (or re-creates) a UNIX datagram socket at path, first
// removing any node already at path (errors from that removal are
// ignored).
func Bind(path string) (*Endpoint, error) {
	_ = os.Remove(path) // best-effort: a leftover node from our own prior run
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "bind unix datagram socket %q", path)
	}
	return &Endpoint{path: path, conn: conn}, nil
}

// Close releases the socket descriptor; it does not remove the
// filesystem node (lock.Entry.Release owns that).
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// Path returns the bound socket node path.
func (e *Endpoint) Path() string { return e.path }

// ReadFrom reads one datagram, honoring deadline, returning the payload
// and the sender's socket path for replies.
func (e *Endpoint) ReadFrom(deadline time.Time) ([]byte, string, error) {
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, "", err
	}
	buf := make([]byte, MaxDatagram)
	n, peer, err := e.conn.ReadFromUnix(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, "", liberr.Wrap(liberr.Timeout, err, "read unix datagram")
		}
		return nil, "", liberr.Wrap(liberr.ReceiveFailure, err, "read unix datagram")
	}
	peerPath := ""
	if peer != nil {
		peerPath = peer.Name
	}
	return buf[:n], peerPath, nil
}

// SendTo writes one datagram to the peer socket node at peerPath.
func (e *Endpoint) SendTo(peerPath string, payload []byte) error {
	addr := &net.UnixAddr{Name: peerPath, Net: "unixgram"}
	_, err := e.conn.WriteToUnix(payload, addr)
	if err != nil {
		return liberr.Wrap(liberr.SendFailure, err, "send unix datagram to %q", peerPath)
	}
	return nil
}
