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

// Package control implements the control-client library of spec §4.H: a
// process embeds this to send commands to one or more running pshell
// servers without going through the interactive editor.
package control

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	liberr "github.com/RonIovine/pshell-sub000/errors"
	"github.com/RonIovine/pshell-sub000/lock"
	"github.com/RonIovine/pshell-sub000/transport/udp"
	"github.com/RonIovine/pshell-sub000/transport/unix"
	"github.com/RonIovine/pshell-sub000/wire"
)

// Status is the closed set of control-client outcome codes of spec §4.H.
type Status uint8

const (
	Success Status = iota
	NotFound
	InvalidArgCount
	SocketSendFailure
	SocketSelectFailure
	SocketReceiveFailure
	SocketTimeout
	SocketNotConnected
)

// allGroup is the reserved multicast group name addressing every
// connected server at once, per spec §4.H.
const allGroup = "all"

// server is one connected remote endpoint, reached over UDP or UNIX
// datagram depending on how it was added.
type server struct {
	name string

	udpEP   *udp.Endpoint
	udpAddr *net.UDPAddr

	unixEP   *unix.Endpoint
	peerPath string
}

func (s *server) send(payload []byte) error {
	if s.udpEP != nil {
		return s.udpEP.SendTo(s.udpAddr, payload)
	}
	return s.unixEP.SendTo(s.peerPath, payload)
}

func (s *server) recv(deadline time.Time) ([]byte, error) {
	if s.udpEP != nil {
		buf, _, err := s.udpEP.ReadFrom(deadline)
		return buf, err
	}
	buf, _, err := s.unixEP.ReadFrom(deadline)
	return buf, err
}

func (s *server) close() {
	if s.udpEP != nil {
		s.udpEP.Close()
	}
	if s.unixEP != nil {
		s.unixEP.Close()
	}
}

// Client is a control-client handle, able to reach any number of
// connected servers, individually or through named groups.
type Client struct {
	mu      sync.Mutex
	servers map[string]*server
	groups  map[string][]string // group name -> member server names

	lockEntry *lock.Entry
	seqNum    uint32
	log       *logrus.Logger
}

// New creates a Client, allocating a control-client lockfile (random
// uuid suffix, per spec §4.B) so the lock directory can account for it.
func New(dir *lock.Dir, log *logrus.Logger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if dir == nil {
		var err error
		dir, err = lock.New("", log)
		if err != nil {
			return nil, err
		}
	}
	entry, err := dir.AcquireControl("control-" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &Client{
		servers:   make(map[string]*server),
		groups:    make(map[string][]string),
		lockEntry: entry,
		log:       log,
	}, nil
}

// ConnectUDP binds a local UDP endpoint and targets the remote
// host:port, registering the connection under name.
func (c *Client) ConnectUDP(name, host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == allGroup {
		return liberr.New(liberr.RegistrationError, "%q is a reserved group name", allGroup)
	}

	ep, err := udp.Bind("", 0) // ephemeral local port for replies
	if err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp4", host+":"+strconv.Itoa(port))
	if err != nil {
		ep.Close()
		return liberr.Wrap(liberr.ConnectFailure, err, "resolve udp address %s:%d", host, port)
	}

	c.servers[name] = &server{name: name, udpEP: ep, udpAddr: addr}
	c.groups[allGroup] = append(c.groups[allGroup], name)
	return nil
}

// ConnectUnix binds a local UNIX datagram endpoint and targets the
// remote server's socket node at peerPath.
func (c *Client) ConnectUnix(name, peerPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == allGroup {
		return liberr.New(liberr.RegistrationError, "%q is a reserved group name", allGroup)
	}

	localPath := peerPath + "." + uuid.NewString()[:8] + ".ctl"
	ep, err := unix.Bind(localPath)
	if err != nil {
		return err
	}

	c.servers[name] = &server{name: name, unixEP: ep, peerPath: peerPath}
	c.groups[allGroup] = append(c.groups[allGroup], name)
	return nil
}

// JoinGroup adds server name to group, so SendCommandGroup can reach it
// by the group's keyword (spec §4.H's multicast groups).
func (c *Client) JoinGroup(group, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.servers[name]; !ok {
		return liberr.New(liberr.RegistrationError, "server %q is not connected", name)
	}
	c.groups[group] = append(c.groups[group], name)
	return nil
}

// Disconnect releases one server's local endpoint.
func (c *Client) Disconnect(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.servers[name]; ok {
		s.close()
		delete(c.servers, name)
	}
}

// DisconnectAll releases every connected server and the client's own
// lockfile.
func (c *Client) DisconnectAll() error {
	c.mu.Lock()
	for _, s := range c.servers {
		s.close()
	}
	c.servers = make(map[string]*server)
	c.groups = make(map[string][]string)
	c.mu.Unlock()

	if c.lockEntry != nil {
		return c.lockEntry.Release()
	}
	return nil
}

// nextSeq returns a monotonically increasing sequence number, per
// Testable Property 2 (stale-reply discard relies on strict increase).
func (c *Client) nextSeq() uint32 {
	return atomic.AddUint32(&c.seqNum, 1)
}

// SendCommand sends line to the named server and, if wantReply, blocks
// up to timeout for its reply, discarding any reply whose seqNum
// doesn't match the one just sent (Testable Property 2).
func (c *Client) SendCommand(name, line string, wantReply bool, timeout time.Duration) (Status, []byte) {
	c.mu.Lock()
	s, ok := c.servers[name]
	c.mu.Unlock()
	if !ok {
		return SocketNotConnected, nil
	}

	seq := c.nextSeq()
	req := wire.Encode(wire.Message{
		Header: wire.Header{
			Type:       wire.ControlCommand,
			RespNeeded: wantReply,
			DataNeeded: wantReply,
			SeqNum:     seq,
		},
		Payload: []byte(line),
	})

	if err := s.send(req); err != nil {
		return SocketSendFailure, nil
	}
	if !wantReply {
		return Success, nil
	}

	deadline := time.Now().Add(timeout)
	var payload []byte
	for {
		if timeout > 0 && time.Now().After(deadline) {
			return SocketTimeout, nil
		}
		raw, err := s.recv(deadline)
		if err != nil {
			if ce, ok := err.(*liberr.Error); ok && ce.Code == liberr.Timeout {
				return SocketTimeout, nil
			}
			return SocketReceiveFailure, nil
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			continue // malformed frame: treat as noise, keep waiting within the deadline
		}
		if msg.Header.SeqNum != seq {
			continue // stale reply from an earlier, already-timed-out request
		}
		switch msg.Header.Type {
		case wire.UpdatePayloadSize:
			// the peer's reply grew past its last known payload size; Go
			// slices need no explicit resize, so just keep receiving the
			// content frame(s) that follow.
			continue
		case wire.ControlCommand:
			// non-terminal interim frame emitted under FlushOnOverflow:
			// accumulate and keep waiting for the terminal frame.
			payload = append(payload, msg.Payload...)
			continue
		case wire.CommandNotFound:
			return NotFound, msg.Payload
		case wire.CommandInvalidArgCount:
			return InvalidArgCount, msg.Payload
		default:
			return Success, append(payload, msg.Payload...)
		}
	}
}

// SendCommandGroup fans line out to every server reachable through group,
// not waiting for replies. Routing mirrors original_source's
// pshell_sendMulticast: every registered group whose keyword is a prefix
// of line is included, in addition to group itself and the reserved "all"
// keyword, so a single multicast send can reach more than the one
// explicitly named group when line's own prefix also names a group.
func (c *Client) SendCommandGroup(group, line string) []Status {
	c.mu.Lock()
	seen := make(map[string]bool)
	var members []string
	for keyword, names := range c.groups {
		if keyword != group && !IsGroupKeyword(keyword) && !strings.HasPrefix(line, keyword) {
			continue
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				members = append(members, n)
			}
		}
	}
	c.mu.Unlock()

	out := make([]Status, len(members))
	for i, name := range members {
		status, _ := c.SendCommand(name, line, false, 0)
		out[i] = status
	}
	return out
}

// Names returns the currently connected server names, for diagnostics.
func (c *Client) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.servers))
	for n := range c.servers {
		out = append(out, n)
	}
	return out
}

// IsGroupKeyword reports whether token is a reserved multicast group
// keyword ("all", or a namespaced "<prefix>:all") rather than a single
// server name.
func IsGroupKeyword(token string) bool {
	return token == allGroup || strings.HasSuffix(token, ":"+allGroup)
}
