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

// Package wire implements the fixed-header, NUL-terminated-payload framing
// shared by the UDP and UNIX-datagram transports. TCP and local sessions
// run the line editor directly and never put this header on the wire.
package wire

import (
	"encoding/binary"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// HeaderSize is the fixed on-wire size of Header: four bytes of small
// integers/bools with no implicit padding, followed by a big-endian u32.
const HeaderSize = 8

// ProtocolVersion is the single integer constant clients must match within
// their supported range before issuing anything but QueryVersion.
const ProtocolVersion = 1

// DefaultPayloadChunk is the default output-buffer/receive-buffer size
// (64 KiB), per spec §4.F.
const DefaultPayloadChunk = 64 * 1024

// MsgType is the closed set of message-type tags carried in Header.Type.
// Numeric values are stable and positional, per spec §6.
type MsgType uint8

const (
	QueryVersion MsgType = iota
	QueryPayloadSize
	QueryName
	QueryTitle
	QueryBanner
	QueryPrompt
	QueryCommandsVerbose
	QueryCommandsTerse
	UserCommand
	ControlCommand
	CommandComplete
	CommandSuccess
	CommandNotFound
	CommandInvalidArgCount
	UpdatePayloadSize
)

var msgTypeNames = [...]string{
	"QueryVersion", "QueryPayloadSize", "QueryName", "QueryTitle",
	"QueryBanner", "QueryPrompt", "QueryCommandsVerbose", "QueryCommandsTerse",
	"UserCommand", "ControlCommand", "CommandComplete", "CommandSuccess",
	"CommandNotFound", "CommandInvalidArgCount", "UpdatePayloadSize",
}

// String renders the message type name, for logging.
func (m MsgType) String() string {
	if int(m) < len(msgTypeNames) {
		return msgTypeNames[m]
	}
	return "Unknown"
}

// Header is the fixed layout preceding every datagram payload.
type Header struct {
	Type        MsgType
	RespNeeded  bool
	DataNeeded  bool
	_           byte // pad, explicit to document the wire layout
	SeqNum      uint32
}

// Message is a decoded Header plus its NUL-terminated payload. Payload
// never includes the trailing NUL; Encode appends it.
type Message struct {
	Header  Header
	Payload []byte
}

// Encode serializes m as header||payload||0x00.
func Encode(m Message) []byte {
	buf := make([]byte, HeaderSize+len(m.Payload)+1)
	buf[0] = byte(m.Header.Type)
	buf[1] = boolByte(m.Header.RespNeeded)
	buf[2] = boolByte(m.Header.DataNeeded)
	buf[3] = 0
	binary.BigEndian.PutUint32(buf[4:8], m.Header.SeqNum)
	copy(buf[HeaderSize:], m.Payload)
	buf[len(buf)-1] = 0
	return buf
}

// Decode parses a received datagram into a Message. It fails with
// MalformedFrame when the buffer is shorter than HeaderSize.
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		return Message{}, liberr.New(liberr.MalformedFrame,
			"frame of %d bytes shorter than header size %d", len(buf), HeaderSize)
	}

	h := Header{
		Type:       MsgType(buf[0]),
		RespNeeded: buf[1] != 0,
		DataNeeded: buf[2] != 0,
		SeqNum:     binary.BigEndian.Uint32(buf[4:8]),
	}

	payload := buf[HeaderSize:]
	// payload is NUL-terminated on the wire; strip exactly one trailing NUL.
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		payload = payload[:n-1]
	}

	out := make([]byte, len(payload))
	copy(out, payload)

	return Message{Header: h, Payload: out}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
