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

// Package udp implements the UDP transport of spec §4.C, including the
// broadcast-address detection that governs spec §4.C's no-reply-on-
// broadcast rule: a sender either targets a single server (normal
// request/reply) or all servers sharing a subnet (fire-and-forget).
package udp

import (
	"net"
	"strconv"
	"strings"
	"time"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// MaxDatagram bounds a single recvfrom.
const MaxDatagram = 64*1024 + 8

// AnyBcast is the sentinel bind address recovered from
// original_source/src/PshellServer.c meaning "answer on any interface's
// broadcast address", distinct from a literal dotted-quad broadcast.
const AnyBcast = "anybcast"

// IsBroadcast reports whether addr names a broadcast destination per
// spec §4.C: either the AnyBcast sentinel or a dotted-quad IPv4 address
// whose final octet is 255.
func IsBroadcast(addr string) bool {
	if addr == AnyBcast {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4[3] == 255
}

// Endpoint is a bound UDP socket.
type Endpoint struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket at bindAddress:port. bindAddress=="" binds all
// interfaces. Broadcast reception/transmission is enabled unconditionally,
// since a pshell server must be reachable by subnet-wide discovery.
func Bind(bindAddress string, port int) (*Endpoint, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindAddress), Port: port}
	if bindAddress == "" {
		addr.IP = net.IPv4zero
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "bind udp %s:%d", bindAddress, port)
	}
	return &Endpoint{conn: conn}, nil
}

// Close releases the socket.
func (e *Endpoint) Close() error { return e.conn.Close() }

// LocalPort returns the bound port, useful when port 0 requested an
// ephemeral assignment.
func (e *Endpoint) LocalPort() int {
	return e.conn.LocalAddr().(*net.UDPAddr).Port
}

// ReadFrom reads one datagram, honoring deadline.
func (e *Endpoint) ReadFrom(deadline time.Time) ([]byte, *net.UDPAddr, error) {
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, err
	}
	buf := make([]byte, MaxDatagram)
	n, peer, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, liberr.Wrap(liberr.Timeout, err, "read udp datagram")
		}
		return nil, nil, liberr.Wrap(liberr.ReceiveFailure, err, "read udp datagram")
	}
	return buf[:n], peer, nil
}

// SendTo writes one datagram to peer. Per spec §4.C, callers must not
// invoke this for a reply to a broadcast-addressed request; the caller
// (server.serveUDP) checks IsBroadcast on its configured bind address
// before deciding whether to reply at all.
func (e *Endpoint) SendTo(peer *net.UDPAddr, payload []byte) error {
	_, err := e.conn.WriteToUDP(payload, peer)
	if err != nil {
		return liberr.Wrap(liberr.SendFailure, err, "send udp datagram to %s", peer)
	}
	return nil
}

// BroadcastAddr builds the subnet broadcast address for subnet:port by
// setting the last octet of a dotted quad to 255; any other subnet string
// is returned as-is with the port appended.
func BroadcastAddr(subnet string, port int) string {
	parts := strings.Split(subnet, ".")
	if len(parts) != 4 {
		return subnet + ":" + strconv.Itoa(port)
	}
	parts[3] = "255"
	return strings.Join(parts, ".") + ":" + strconv.Itoa(port)
}
