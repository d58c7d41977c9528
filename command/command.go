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

// Package command models one registered handler: its name, description,
// usage string, arity bounds and the function that runs it.
package command

import "io"

// Func is the signature every registered command handler satisfies.
// A nil Func is legal (Run becomes a no-op) so that Info-only records
// (help entries that document an externally-run command) can be
// registered through the same type.
type Func func(out, err io.Writer, args []string)

// Command is the read/execute contract the registry and dispatcher use.
type Command interface {
	Name() string
	Describe() string
	Usage() string
	MinArgs() uint
	MaxArgs() uint
	ShowUsage() bool
	Run(out, err io.Writer, args []string)
}

type command struct {
	name      string
	describe  string
	usage     string
	minArgs   uint
	maxArgs   uint
	showUsage bool
	fn        Func
}

// New creates a runnable Command. minArgs/maxArgs/usage default to their
// zero values (no arguments, no usage text) and usage auto-display is on;
// use NewWithArity for commands that take parameters.
func New(name, describe string, fn Func) Command {
	return &command{name: name, describe: describe, fn: fn, showUsage: true}
}

// NewWithArity creates a Command with explicit argument bounds and usage
// text, applying spec §3's normalization: when maxArgs==0 and minArgs>0,
// maxArgs is raised to minArgs.
func NewWithArity(name, describe, usage string, minArgs, maxArgs uint, fn Func) Command {
	if maxArgs == 0 && minArgs > 0 {
		maxArgs = minArgs
	}
	return &command{
		name: name, describe: describe, usage: usage,
		minArgs: minArgs, maxArgs: maxArgs, showUsage: true, fn: fn,
	}
}

// Info creates a non-runnable record used purely for listing purposes
// (e.g. documenting a command implemented by an external control client).
// It still satisfies Command; Run is a no-op.
func Info(name, describe string) Command {
	return &command{name: name, describe: describe, showUsage: true}
}

func (c *command) Name() string      { return c.name }
func (c *command) Describe() string  { return c.describe }
func (c *command) Usage() string     { return c.usage }
func (c *command) MinArgs() uint     { return c.minArgs }
func (c *command) MaxArgs() uint     { return c.maxArgs }
func (c *command) ShowUsage() bool   { return c.showUsage }

func (c *command) Run(out, err io.Writer, args []string) {
	if c.fn == nil {
		return
	}
	c.fn(out, err, args)
}
