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

// Package obuffer implements the per-server output buffer of spec §4.F: a
// single reused, auto-growing payload accumulator with two selectable
// overflow policies.
package obuffer

import (
	"fmt"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// OverflowPolicy selects how the buffer behaves when appended data would
// exceed its current capacity.
type OverflowPolicy uint8

const (
	// GrowOnOverflow reallocates the buffer and asks the caller (via
	// NeedsResize) to tell the peer about the new size before the next
	// reply frame.
	GrowOnOverflow OverflowPolicy = iota
	// FlushOnOverflow emits the current contents as an interim frame
	// once a guard-band threshold is crossed, then resets and keeps
	// accepting writes.
	FlushOnOverflow
)

// Frame is one interim (non-terminal) chunk of output produced under
// FlushOnOverflow, collected by Drain.
type Frame struct {
	Payload   []byte
	IsInterim bool
}

// Buffer is the per-server, per-invocation output accumulator.
type Buffer struct {
	policy     OverflowPolicy
	chunk      int
	guardBand  int
	data       []byte
	knownSize  int // size the remote peer currently believes the payload limit to be
	grew       bool
	dataNeeded bool
	frames     []Frame // interim frames emitted since the last Reset, under FlushOnOverflow
}

// Option configures a Buffer at construction time.
type Option func(*Buffer)

// WithChunk overrides the default 64 KiB growth/allocation chunk.
func WithChunk(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.chunk = n
		}
	}
}

// WithGuardBand overrides the default guard-band threshold used by
// FlushOnOverflow (default: one eighth of the chunk size).
func WithGuardBand(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.guardBand = n
		}
	}
}

// New creates a Buffer with the given overflow policy.
func New(policy OverflowPolicy, opts ...Option) *Buffer {
	b := &Buffer{policy: policy, chunk: 64 * 1024}
	for _, o := range opts {
		o(b)
	}
	if b.guardBand == 0 {
		b.guardBand = b.chunk / 8
	}
	b.knownSize = b.chunk
	b.data = make([]byte, 0, b.chunk)
	return b
}

// Reset clears the buffer contents for the next invocation, keeping the
// underlying capacity (the teacher's realloc-reuse idiom).
func (b *Buffer) Reset(dataNeeded bool) {
	b.data = b.data[:0]
	b.grew = false
	b.dataNeeded = dataNeeded
	b.frames = nil
}

// Printf appends formatted text, applying the selected overflow policy.
// It returns an error only under FlushOnOverflow with dataNeeded=false
// (control commands): spec §4.F requires logging and dropping in that
// case rather than flushing mid-command.
func (b *Buffer) Printf(format string, args ...interface{}) error {
	s := fmt.Sprintf(format, args...)
	return b.Write([]byte(s))
}

// Write implements io.Writer over the same overflow policy as Printf.
// Under FlushOnOverflow, crossing the guard band mid-write emits the
// buffered-so-far contents as an interim Frame (collected by Drain) and
// keeps accepting the remainder of p.
func (b *Buffer) Write(p []byte) (int, error) {
	n := len(p)
	switch b.policy {
	case GrowOnOverflow:
		needed := len(b.data) + len(p)
		if needed > cap(b.data) {
			b.grow(needed)
		}
		b.data = append(b.data, p...)
	case FlushOnOverflow:
		limit := b.chunk - b.guardBand
		for len(p) > 0 {
			room := limit - len(b.data)
			if room <= 0 {
				if !b.dataNeeded {
					return 0, liberr.New(liberr.OutputBufferOverflow,
						"output discarded: control command exceeded guard-band with dataNeeded=false")
				}
				b.flushInterim()
				room = limit
			}
			take := room
			if take > len(p) {
				take = len(p)
			}
			b.data = append(b.data, p[:take]...)
			p = p[take:]
			if b.ShouldFlush() {
				if !b.dataNeeded {
					return 0, liberr.New(liberr.OutputBufferOverflow,
						"output discarded: control command exceeded guard-band with dataNeeded=false")
				}
				b.flushInterim()
			}
		}
	default:
		b.data = append(b.data, p...)
	}
	return n, nil
}

// flushInterim emits the buffer's current contents as a non-terminal
// Frame and clears it, the guard-band flush point of FlushOnOverflow.
func (b *Buffer) flushInterim() {
	b.frames = append(b.frames, Frame{Payload: append([]byte(nil), b.data...), IsInterim: true})
	b.data = b.data[:0]
}

func (b *Buffer) grow(needed int) {
	newCap := cap(b.data) + b.chunk
	for newCap < needed {
		newCap += b.chunk
	}
	nb := make([]byte, len(b.data), newCap)
	copy(nb, b.data)
	b.data = nb
	b.grew = true
	if newCap > b.knownSize {
		b.knownSize = newCap
	}
}

// Bytes returns the buffer's current (terminal-frame) contents: whatever
// has been written since the last Reset or interim flush.
func (b *Buffer) Bytes() []byte { return b.data }

// Drain returns and clears the interim frames collected since the last
// Reset, for the caller to send ahead of the terminal reply frame.
func (b *Buffer) Drain() []Frame {
	out := b.frames
	b.frames = nil
	return out
}

// NeedsResize reports the size the peer should grow its receive buffer to,
// or 0 if the peer's known size already covers the current capacity.
// Only meaningful under GrowOnOverflow.
func (b *Buffer) NeedsResize() int {
	if b.policy == GrowOnOverflow && b.grew {
		return b.knownSize
	}
	return 0
}

// AckResize records that the peer has been told about (or already knows)
// the current knownSize, clearing the pending-resize flag.
func (b *Buffer) AckResize() {
	b.grew = false
}

// Len returns the number of bytes currently buffered.
func (b *Buffer) Len() int { return len(b.data) }

// ChunkSize returns the configured payload chunk size.
func (b *Buffer) ChunkSize() int { return b.chunk }

// ShouldFlush reports whether, under FlushOnOverflow, the buffer has
// crossed its guard-band and an interim frame should be emitted now.
func (b *Buffer) ShouldFlush() bool {
	return b.policy == FlushOnOverflow && len(b.data) >= b.chunk-b.guardBand
}
