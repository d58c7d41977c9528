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

// Package client implements the standalone interactive pshell client of
// spec §6: server discovery, batch-file execution, command history, and
// an interactive loop built on the same editor the server sessions use.
package client

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/RonIovine/pshell-sub000/config"
	"github.com/RonIovine/pshell-sub000/control"
	"github.com/RonIovine/pshell-sub000/editor"
	liberr "github.com/RonIovine/pshell-sub000/errors"
	"github.com/RonIovine/pshell-sub000/lock"
)

// ExitCode mirrors the documented exit codes of spec §6's CLI surface.
type ExitCode int

const (
	ExitOK            ExitCode = 0
	ExitServerNotFound ExitCode = 1
	ExitCommandFailed  ExitCode = 2
	ExitBatchError     ExitCode = 3
)

var (
	errorColor  = color.New(color.FgRed)
	promptColor = color.New(color.FgGreen)
)

// NamedServer is one config-file-resolved server entry (spec §6's named
// server resolution, "key.subkey=value" with host/port subkeys).
type NamedServer struct {
	Name string
	Host string
	Port int
}

// Discover lists every currently-live server from the lock directory
// (spec §6's "-s" option) plus named servers declared in the pshell
// config file, if one resolves.
func Discover(dir *lock.Dir, configFileName string) ([]lock.Active, []NamedServer, error) {
	active, err := dir.ListActive()
	if err != nil {
		return nil, nil, err
	}

	var named []NamedServer
	if configFileName != "" {
		f, err := config.LoadConfigFile(configFileName)
		if err == nil {
			for _, key := range f.Keys() {
				host, _ := f.Get(key, "host")
				portStr, _ := f.Get(key, "port")
				port, _ := strconv.Atoi(portStr)
				named = append(named, NamedServer{Name: key, Host: host, Port: port})
			}
		}
	}
	return active, named, nil
}

// Client drives one interactive or batch session against a single
// connected server.
type Client struct {
	ctl        *control.Client
	serverName string
	out        io.Writer
	errOut     io.Writer
	history    []string
}

// New wires a Client to an already-connected control.Client and the
// name it registered the target server under.
func New(ctl *control.Client, serverName string, out, errOut io.Writer) *Client {
	return &Client{ctl: ctl, serverName: serverName, out: out, errOut: errOut}
}

// RunOne sends a single command line and renders its reply or error,
// for the CLI's "-c" one-shot mode.
func (c *Client) RunOne(line string, timeout time.Duration) ExitCode {
	status, payload := c.ctl.SendCommand(c.serverName, line, true, timeout)
	return c.render(status, payload)
}

// RunBatch executes every command line in a batch file in order,
// stopping at the first failure, for the CLI's "-f" mode.
func (c *Client) RunBatch(path string, timeout time.Duration) ExitCode {
	lines, err := config.BatchLines(path)
	if err != nil {
		errorColor.Fprintf(c.errOut, "%s\n", err.Error())
		return ExitBatchError
	}
	for _, line := range lines {
		if code := c.RunOne(line, timeout); code != ExitOK {
			return code
		}
	}
	return ExitOK
}

func (c *Client) render(status control.Status, payload []byte) ExitCode {
	switch status {
	case control.Success:
		c.history = append(c.history, string(payload))
		fmt.Fprint(c.out, string(payload))
		return ExitOK
	case control.NotFound, control.InvalidArgCount:
		// payload already carries the server's own text for the failure
		// (command/registry.go's Dispatch writes the formatted
		// PSHELL_ERROR message for NotFound, or the usage line for
		// InvalidArgCount, to the output buffer before returning); print
		// it as-is instead of wrapping it in a second liberr.Error.
		errorColor.Fprint(c.errOut, string(payload))
		return ExitCommandFailed
	default:
		errorColor.Fprintf(c.errOut, "%s\n", liberr.New(liberr.ReceiveFailure, "control status %d", status).Error())
		return ExitCommandFailed
	}
}

// History returns the replies collected so far this session, for the
// "history" command in the interactive loop.
func (c *Client) History() []string {
	return append([]string(nil), c.history...)
}

// completionNames is the small, fixed completion table the standalone
// client offers (it has no command registry of its own to introspect).
type completionNames []string

func (n completionNames) Names() []string { return n }

// Interactive drives a full editor-backed command loop against the
// connected server until "quit" or EOF, reusing the same editor the
// server's own TCP/local sessions use, per spec §1.
func (c *Client) Interactive(conn editor.Conn, prompt string, idleTimeout time.Duration) {
	ed := editor.New(conn, editor.TelnetOff, editor.FastCompletion, completionNames{"quit", "help", "history"})
	for {
		promptColor.Fprint(conn, prompt)
		line, err := ed.ReadLine("", idleTimeout)
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" {
			return
		}
		if line == "history" {
			for i, h := range c.History() {
				fmt.Fprintf(conn, "%d: %s\n", i+1, h)
			}
			continue
		}
		c.RunOne(line, 5*time.Second)
	}
}
