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

// Package errors provides the closed set of error kinds used across the
// pshell core, each rendering on the wire/stderr as "PSHELL_ERROR: <text>".
package errors

import "fmt"

// Code identifies one of the abstract error kinds of spec §7.
type Code uint8

const (
	UnknownError Code = iota
	RegistrationError
	MalformedFrame
	UnknownMessageType
	CommandNotFound
	AmbiguousAbbreviation
	InvalidArgCount
	OutputBufferOverflow
	BindFailure
	ConnectFailure
	SendFailure
	ReceiveFailure
	Timeout
	SocketNotConnected
	InvalidBatchFile
	ProtocolVersionMismatch
)

var names = map[Code]string{
	UnknownError:            "unknown error",
	RegistrationError:       "registration error",
	MalformedFrame:          "malformed frame",
	UnknownMessageType:      "unknown message type",
	CommandNotFound:         "command not found",
	AmbiguousAbbreviation:   "ambiguous command abbreviation",
	InvalidArgCount:         "invalid argument count",
	OutputBufferOverflow:    "output buffer overflow",
	BindFailure:             "bind failure",
	ConnectFailure:          "connect failure",
	SendFailure:             "send failure",
	ReceiveFailure:          "receive failure",
	Timeout:                 "timeout",
	SocketNotConnected:      "socket not connected",
	InvalidBatchFile:        "invalid batch file",
	ProtocolVersionMismatch: "protocol version mismatch",
}

// String returns the registered human-readable label for the code, or
// "unknown error" if none was registered.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return names[UnknownError]
}

// Error is the concrete error type returned throughout the core. It pairs
// a Code with a formatted detail message and an optional parent error
// chain, mirroring the teacher's CodeError/Error split.
type Error struct {
	Code   Code
	Detail string
	Parent error
}

// New builds an Error for the given code with a formatted detail message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error for the given code, chaining a parent error.
func Wrap(code Code, parent error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...), Parent: parent}
}

// Error implements the error interface, formatting per spec §7:
// "PSHELL_ERROR: <text>".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Parent != nil {
		return fmt.Sprintf("PSHELL_ERROR: %s: %s", e.Detail, e.Parent.Error())
	}
	return fmt.Sprintf("PSHELL_ERROR: %s", e.Detail)
}

// Unwrap exposes the parent error to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Parent
}

// Is reports whether target is an *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == o.Code
}
