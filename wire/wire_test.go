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

package wire_test

import (
	"testing"
	"testing/quick"

	liberr "github.com/RonIovine/pshell-sub000/errors"
	"github.com/RonIovine/pshell-sub000/wire"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestWire(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Wire Suite")
}

var _ = Describe("Framing", func() {
	It("round-trips a message with a small payload", func() {
		msg := wire.Message{
			Header: wire.Header{
				Type:       wire.UserCommand,
				RespNeeded: true,
				DataNeeded: true,
				SeqNum:     42,
			},
			Payload: []byte("echo hello world"),
		}

		decoded, err := wire.Decode(wire.Encode(msg))
		Expect(err).ToNot(HaveOccurred())
		Expect(decoded).To(Equal(msg))
	})

	It("satisfies the round-trip property for arbitrary payloads under payloadSize", func() {
		f := func(seq uint32, respNeeded, dataNeeded bool, payload []byte) bool {
			if len(payload) >= wire.DefaultPayloadChunk {
				payload = payload[:wire.DefaultPayloadChunk-1]
			}
			msg := wire.Message{
				Header: wire.Header{
					Type:       wire.UserCommand,
					RespNeeded: respNeeded,
					DataNeeded: dataNeeded,
					SeqNum:     seq,
				},
				Payload: payload,
			}
			decoded, err := wire.Decode(wire.Encode(msg))
			if err != nil {
				return false
			}
			if len(decoded.Payload) == 0 && len(payload) == 0 {
				return decoded.Header == msg.Header
			}
			return decoded.Header == msg.Header && string(decoded.Payload) == string(msg.Payload)
		}
		Expect(quick.Check(f, nil)).To(Succeed())
	})

	It("fails decoding with MalformedFrame when shorter than the header", func() {
		_, err := wire.Decode([]byte{1, 2, 3})
		Expect(err).To(HaveOccurred())
		var e *liberr.Error
		Expect(err).To(BeAssignableToTypeOf(e))
	})

	It("preserves the reply seqNum equal to the request seqNum", func() {
		req := wire.Message{Header: wire.Header{Type: wire.UserCommand, SeqNum: 7}}
		resp := wire.Message{Header: wire.Header{Type: wire.CommandComplete, SeqNum: req.Header.SeqNum}}
		Expect(resp.Header.SeqNum).To(Equal(req.Header.SeqNum))
	})

	It("names message types for logging", func() {
		Expect(wire.CommandComplete.String()).To(Equal("CommandComplete"))
		Expect(wire.MsgType(200).String()).To(Equal("Unknown"))
	})
})
