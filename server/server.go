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

// Package server implements the top-level pshell server orchestrator of
// spec §4.G: the descriptor, the command registry, the output buffer,
// the lock-directory entry, and the dispatch/classification table
// shared across every transport.
package server

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/RonIovine/pshell-sub000/command"
	"github.com/RonIovine/pshell-sub000/editor"
	liberr "github.com/RonIovine/pshell-sub000/errors"
	"github.com/RonIovine/pshell-sub000/lock"
	"github.com/RonIovine/pshell-sub000/obuffer"
	"github.com/RonIovine/pshell-sub000/server/metrics"
	"github.com/RonIovine/pshell-sub000/session"
	"github.com/RonIovine/pshell-sub000/transport/local"
	"github.com/RonIovine/pshell-sub000/transport/tcp"
	"github.com/RonIovine/pshell-sub000/transport/udp"
	"github.com/RonIovine/pshell-sub000/transport/unix"
	"github.com/RonIovine/pshell-sub000/wire"
)

// Transport selects which listener(s) Serve starts.
type Transport uint8

const (
	TransportUDP Transport = iota
	TransportUnix
	TransportTCP
	TransportLocal
)

// Descriptor is the static identity a server presents to clients via the
// Query* message types.
type Descriptor struct {
	Name   string
	Host   string
	Port   int
	Banner string
	Title  string
	Prompt string
}

// Server is one running pshell server instance.
type Server struct {
	desc Descriptor
	reg  *command.Registry
	buf  *obuffer.Buffer
	dir  *lock.Dir
	log  *logrus.Logger
	met  *metrics.Metrics

	cs chan struct{} // critical-section token; a buffered channel of size 1

	local bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger injects a logrus sink; nil uses logrus.StandardLogger().
func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLockDir overrides the default lock directory.
func WithLockDir(dir *lock.Dir) Option {
	return func(s *Server) { s.dir = dir }
}

// WithMetrics attaches a metrics set (registered by metrics.New) that the
// server updates as it dispatches commands and runs sessions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.met = m }
}

// WithOverflowPolicy selects the output buffer's overflow behavior.
func WithOverflowPolicy(p obuffer.OverflowPolicy) Option {
	return func(s *Server) { s.buf = obuffer.New(p) }
}

// WithLocal marks this server as backing a local-TTY session, which
// suppresses the "quit" built-in per spec §4.E.
func WithLocal() Option {
	return func(s *Server) { s.local = true }
}

// New creates a Server for desc. Callers register commands with
// AddCommand before calling Serve.
func New(desc Descriptor, opts ...Option) (*Server, error) {
	s := &Server{
		desc: desc,
		log:  logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.buf == nil {
		s.buf = obuffer.New(obuffer.GrowOnOverflow)
	}
	if s.dir == nil {
		d, err := lock.New("", s.log)
		if err != nil {
			return nil, err
		}
		s.dir = d
	}
	s.reg = command.NewRegistry(s.local, command.WithLogger(s.log))
	s.cs = make(chan struct{}, 1)
	s.cs <- struct{}{}
	return s, nil
}

// AddCommand registers a user command, bounded by the server's critical
// section per spec §5.
func (s *Server) AddCommand(cmd command.Command) error {
	s.enter()
	defer s.leave()
	return s.reg.Add(cmd)
}

// Registry exposes the underlying registry, e.g. for editor.CompletionSource.
func (s *Server) Registry() *command.Registry { return s.reg }

// enter acquires the critical-section token, busy-waiting at 1-second
// granularity when a call is already mid-dispatch, per spec §4.G's
// reentrant in-process call rule.
func (s *Server) enter() {
	for {
		select {
		case <-s.cs:
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (s *Server) leave() {
	s.cs <- struct{}{}
}

// Dispatch processes one wire-level request under the server's critical
// section and returns its terminal reply frame, per spec §4.G. Callers
// that must also see any non-terminal frames (resize/interim-flush)
// should use DispatchFrames instead.
func (s *Server) Dispatch(req wire.Message) wire.Message {
	frames := s.DispatchFrames(req)
	return frames[len(frames)-1]
}

// DispatchFrames processes one wire-level request under the server's
// critical section and returns its full ordered reply frame sequence.
func (s *Server) DispatchFrames(req wire.Message) []wire.Message {
	s.enter()
	defer s.leave()
	return s.dispatch(req)
}

// dispatch implements the classification table of spec §4.G: Query*
// messages answer directly from the descriptor/registry/buffer and
// terminate with CommandComplete per SC1; UserCommand terminates with
// CommandComplete too (§3's "CommandComplete is the terminal frame of
// any UserCommand response"), while ControlCommand terminates with
// CommandSuccess/CommandNotFound/CommandInvalidArgCount instead, per
// §4.H. Both command kinds may be preceded by non-terminal frames: an
// UpdatePayloadSize frame when the buffer grew (GrowOnOverflow), and/or
// interim output frames (FlushOnOverflow) — see dispatchCommand.
func (s *Server) dispatch(req wire.Message) []wire.Message {
	reply := func(payload []byte) []wire.Message {
		return []wire.Message{{
			Header:  wire.Header{SeqNum: req.Header.SeqNum, Type: wire.CommandComplete},
			Payload: payload,
		}}
	}

	switch req.Header.Type {
	case wire.QueryVersion:
		return reply([]byte(strconv.Itoa(wire.ProtocolVersion)))
	case wire.QueryPayloadSize:
		return reply([]byte(strconv.Itoa(s.buf.ChunkSize())))
	case wire.QueryName:
		return reply([]byte(s.desc.Name))
	case wire.QueryTitle:
		return reply([]byte(s.desc.Title))
	case wire.QueryBanner:
		return reply([]byte(s.desc.Banner))
	case wire.QueryPrompt:
		return reply([]byte(s.desc.Prompt))
	case wire.QueryCommandsVerbose:
		return reply([]byte(s.reg.FormatVerbose()))
	case wire.QueryCommandsTerse:
		return reply([]byte(s.reg.FormatTerse()))
	case wire.UserCommand:
		return s.dispatchCommand(req, wire.CommandComplete)
	case wire.ControlCommand:
		return s.dispatchCommand(req, wire.CommandSuccess)
	default:
		s.log.WithField("component", "server.Server").
			Warnf("%s", liberr.New(liberr.UnknownMessageType, "unrecognized message type %d", req.Header.Type).Error())
		return []wire.Message{{Header: wire.Header{SeqNum: req.Header.SeqNum, Type: wire.CommandNotFound}}}
	}
}

// dispatchCommand runs line through the registry and returns the full
// ordered frame sequence for the reply: any interim FlushOnOverflow
// frames first, then an UpdatePayloadSize frame if the buffer grew,
// then the terminal frame (successType; a ControlCommand that fails
// ends with CommandNotFound/CommandInvalidArgCount instead, while a
// UserCommand keeps CommandComplete and carries the error text in its
// payload). Testable
// Property 6 / SC4: the concatenation of every frame's payload equals
// the handler's full output.
func (s *Server) dispatchCommand(req wire.Message, successType wire.MsgType) []wire.Message {
	s.buf.Reset(req.Header.DataNeeded)

	err := s.reg.Dispatch(s.buf, s.buf, string(req.Payload))

	terminal := successType
	if err != nil {
		code := liberr.UnknownError
		if ce, ok := err.(*liberr.Error); ok {
			code = ce.Code
		}
		if req.Header.Type == wire.ControlCommand {
			switch code {
			case liberr.CommandNotFound, liberr.AmbiguousAbbreviation:
				terminal = wire.CommandNotFound
			case liberr.InvalidArgCount:
				terminal = wire.CommandInvalidArgCount
			}
		}
		if s.met != nil {
			s.met.CommandErrors.WithLabelValues(code.String()).Inc()
		}
	}
	if s.met != nil {
		s.met.CommandsDispatched.Inc()
	}

	var frames []wire.Message
	for _, interim := range s.buf.Drain() {
		frames = append(frames, wire.Message{
			Header:  wire.Header{SeqNum: req.Header.SeqNum, Type: req.Header.Type, DataNeeded: req.Header.DataNeeded},
			Payload: interim.Payload,
		})
	}

	if resize := s.buf.NeedsResize(); resize > 0 {
		s.buf.AckResize()
		if s.met != nil {
			s.met.BufferResizes.Inc()
		}
		frames = append(frames, wire.Message{
			Header:  wire.Header{SeqNum: req.Header.SeqNum, Type: wire.UpdatePayloadSize, DataNeeded: req.Header.DataNeeded},
			Payload: []byte(strconv.Itoa(resize)),
		})
	}

	return append(frames, wire.Message{
		Header:  wire.Header{SeqNum: req.Header.SeqNum, Type: terminal, DataNeeded: req.Header.DataNeeded},
		Payload: append([]byte(nil), s.buf.Bytes()...),
	})
}

// Serve binds and runs every requested transport concurrently until ctx
// is canceled or one listener fails irrecoverably, per spec §4.G /
// §9: bind-attempt exhaustion aborts startup, per-message errors are
// logged and the server continues.
func (s *Server) Serve(ctx context.Context, transports ...Transport) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range transports {
		t := t
		switch t {
		case TransportUDP:
			g.Go(func() error { return s.serveUDP(gctx) })
		case TransportUnix:
			g.Go(func() error { return s.serveUnix(gctx) })
		case TransportTCP:
			g.Go(func() error { return s.serveTCP(gctx) })
		case TransportLocal:
			g.Go(func() error { return s.serveLocal(gctx) })
		}
	}

	return g.Wait()
}

func (s *Server) serveUDP(ctx context.Context) error {
	entry, err := s.dir.Acquire(s.desc.Name, lock.KindUDP, s.desc.Host, s.desc.Port)
	if err != nil {
		return err
	}
	defer entry.Release()

	ep, err := udp.Bind(s.desc.Host, s.desc.Port)
	if err != nil {
		return err
	}
	defer ep.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		payload, peer, err := ep.ReadFrom(time.Now().Add(time.Second))
		if err != nil {
			// a read deadline expiring is the normal idle case; any other
			// recv error is logged, and the server keeps serving.
			if ce, ok := err.(*liberr.Error); !ok || ce.Code != liberr.Timeout {
				s.log.WithField("component", "server.Server").Warnf("%s", err.Error())
			}
			continue
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			s.log.WithField("component", "server.Server").Warnf("%s", err.Error())
			continue
		}
		frames := s.DispatchFrames(msg)
		if !msg.Header.RespNeeded {
			continue
		}
		if udp.IsBroadcast(s.desc.Host) {
			continue // never reply when serving on a broadcast address, per spec §4.C
		}
		for _, frame := range frames {
			if err := ep.SendTo(peer, wire.Encode(frame)); err != nil {
				break
			}
		}
	}
}

func (s *Server) serveUnix(ctx context.Context) error {
	entry, err := s.dir.Acquire(s.desc.Name, lock.KindUnix, "", 0)
	if err != nil {
		return err
	}
	defer entry.Release()

	ep, err := unix.Bind(entry.SocketPath())
	if err != nil {
		return err
	}
	defer ep.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		payload, peerPath, err := ep.ReadFrom(time.Now().Add(time.Second))
		if err != nil {
			continue
		}
		msg, err := wire.Decode(payload)
		if err != nil {
			s.log.WithField("component", "server.Server").Warnf("%s", err.Error())
			continue
		}
		frames := s.DispatchFrames(msg)
		if !msg.Header.RespNeeded {
			continue
		}
		for _, frame := range frames {
			if err := ep.SendTo(peerPath, wire.Encode(frame)); err != nil {
				break
			}
		}
	}
}

func (s *Server) serveTCP(ctx context.Context) error {
	entry, err := s.dir.Acquire(s.desc.Name, lock.KindTCP, s.desc.Host, s.desc.Port)
	if err != nil {
		return err
	}
	defer entry.Release()

	ln, err := tcp.Listen(s.desc.Host + ":" + strconv.Itoa(s.desc.Port))
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sess, err := ln.Accept()
		if err != nil {
			continue
		}

		// shut the listener immediately, per spec §4.C: no second peer
		// may queue against the backlog while this session is active.
		if err := ln.Shutdown(); err != nil {
			sess.Close()
			return err
		}

		if s.met != nil {
			s.met.ActiveSessions.Inc()
		}
		s.runInteractive(sess.PeerAddr(), 0, sess, true)
		if s.met != nil {
			s.met.ActiveSessions.Dec()
		}
		sess.Close()

		if err := ln.Reopen(); err != nil {
			return err
		}
	}
}

func (s *Server) serveLocal(ctx context.Context) error {
	tty := local.New(os.Stdin, os.Stdout)
	if s.met != nil {
		s.met.ActiveSessions.Inc()
		defer s.met.ActiveSessions.Dec()
	}
	s.runInteractive("local", 0, tty, false)
	return nil
}

// runInteractive drives one interactive editor loop to completion (EOF,
// idle timeout, or "quit"), shared by the TCP and local transports per
// spec §1 ("this same editor is consumed by the standalone client
// program" — here, by every interactive session on the server side).
func (s *Server) runInteractive(peer string, fd int, conn editor.Conn, telnet bool) {
	mode := editor.TelnetOff
	if telnet {
		mode = editor.TelnetOn
	}
	ed := editor.New(conn, mode, editor.FastCompletion, s.reg)
	sess := session.New(peer, fd, ed, 0)
	if !telnet {
		// the animated wheel only makes sense against a live local
		// terminal, never a remote TCP peer.
		sess.Spinner = session.NewWheelSpinner(conn)
	}
	defer sess.Close()

	for {
		line, err := sess.ReadCommandLine(s.desc.Prompt)
		if err != nil {
			return
		}
		if name, _ := command.Tokenize(line, false); name != "" && !s.local {
			if res := s.reg.Lookup(name); res.Command != nil && res.Command.Name() == "quit" {
				return
			}
		}
		if sess.Spinner != nil {
			sess.Spinner.Spin()
		}
		s.enter()
		s.buf.Reset(true)
		_ = s.reg.Dispatch(conn, conn, line)
		s.leave()
	}
}
