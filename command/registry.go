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

package command

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	libval "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// helpTokens are treated as an alias for the built-in "help" command,
// per spec §4.E.
var helpTokens = map[string]bool{
	"?": true, "-h": true, "--h": true, "-help": true, "--help": true,
}

// commandSpec is the validator-tagged mirror of a registration request;
// Command itself carries no struct tags since it is an exported interface
// with a private implementation, so registration validates this shadow
// struct instead.
type commandSpec struct {
	Name     string `validate:"required,excludesall= \t\n\r"`
	Describe string `validate:"required"`
	Usage    string
	MinArgs  uint
	MaxArgs  uint
}

// Registry is the flat, growable command table of spec §4.E.
type Registry struct {
	mu             sync.RWMutex
	order          []string
	byName         map[string]Command
	allowDupHandler bool
	log            *logrus.Logger
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithAllowDuplicateHandler disables the duplicate-handler rejection rule.
func WithAllowDuplicateHandler() Option {
	return func(r *Registry) { r.allowDupHandler = true }
}

// WithLogger injects a logrus sink; nil uses logrus.StandardLogger().
func WithLogger(l *logrus.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty Registry with the built-in commands (help,
// quit, history, batch) pre-registered in that order, per spec §4.E
// ("positioned first in the table so that help output lists them before
// user commands"). local indicates whether this registry backs a
// local-TTY server, in which case "quit" is not registered (spec §4.E).
func NewRegistry(local bool, opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]Command),
		log:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	r.registerBuiltins(local)
	return r
}

func (r *Registry) registerBuiltins(local bool) {
	_ = r.add(New("help", "show help for one or all commands", nil), true)
	if !local {
		_ = r.add(New("quit", "exit the interactive session", nil), true)
	}
	_ = r.add(New("history", "show command history", nil), true)
	_ = r.add(New("batch", "run commands from a batch file", nil), true)
}

// Add validates and inserts cmd. Violations are logged as RegistrationError
// and the command is not added, per spec §4.E; this matches the teacher's
// "errors are local and do not abort" idiom (errors/interface.go).
func (r *Registry) Add(cmd Command) error {
	return r.add(cmd, false)
}

func (r *Registry) add(cmd Command, builtin bool) error {
	if cmd == nil {
		return r.regErr("nil command")
	}

	spec := commandSpec{
		Name:     cmd.Name(),
		Describe: cmd.Describe(),
		Usage:    cmd.Usage(),
		MinArgs:  cmd.MinArgs(),
		MaxArgs:  cmd.MaxArgs(),
	}

	if err := libval.New().Struct(spec); err != nil {
		return r.regErr(fmt.Sprintf("command %q failed validation: %s", cmd.Name(), err.Error()))
	}

	if spec.MaxArgs > 0 && spec.Usage == "" {
		return r.regErr(fmt.Sprintf("command %q has maxArgs>0 but no usage string", cmd.Name()))
	}

	if spec.MinArgs > spec.MaxArgs {
		return r.regErr(fmt.Sprintf("command %q has minArgs>maxArgs", cmd.Name()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[cmd.Name()]; exists {
		return r.regErr(fmt.Sprintf("command %q already registered", cmd.Name()))
	}

	if !r.allowDupHandler && !builtin {
		if dup := r.findDuplicateHandler(cmd); dup != "" {
			return r.regErr(fmt.Sprintf("command %q shares a handler with %q", cmd.Name(), dup))
		}
	}

	r.byName[cmd.Name()] = cmd
	r.order = append(r.order, cmd.Name())
	return nil
}

func (r *Registry) findDuplicateHandler(cmd Command) string {
	newPtr := funcPointer(cmd)
	if newPtr == 0 {
		return ""
	}
	for name, existing := range r.byName {
		if funcPointer(existing) == newPtr {
			return name
		}
	}
	return ""
}

func funcPointer(cmd Command) uintptr {
	c, ok := cmd.(*command)
	if !ok || c.fn == nil {
		return 0
	}
	return reflect.ValueOf(c.fn).Pointer()
}

func (r *Registry) regErr(msg string) error {
	err := liberr.New(liberr.RegistrationError, "%s", msg)
	r.log.WithField("component", "command.Registry").Warnf("%s", err.Error())
	return err
}

// Get returns the exact-name match only (used by Lookup's exact-match
// step and by callers that already resolved a name via Lookup).
func (r *Registry) Get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Desc returns the description of the exact-name match, or "" if absent.
func (r *Registry) Desc(name string) string {
	if c, ok := r.Get(name); ok {
		return c.Describe()
	}
	return ""
}

// Walk calls fn for every registered command in registration order,
// stopping early if fn returns false.
func (r *Registry) Walk(fn func(name string, item Command) bool) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()

	for _, n := range names {
		r.mu.RLock()
		c, ok := r.byName[n]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if !fn(n, c) {
			return
		}
	}
}

// LookupResult is returned by Lookup.
type LookupResult struct {
	Command  Command
	Err      error
	IsHelp   bool
}

// Lookup resolves token to a single command by spec §4.E / Testable
// Property 3: exact match wins outright; otherwise all names sharing the
// token as a prefix are collected and, absent an exact match, more than
// one candidate is AmbiguousAbbreviation and zero candidates is
// CommandNotFound. Help tokens (?, -h, --h, -help, --help) resolve to the
// built-in "help" command.
func (r *Registry) Lookup(token string) LookupResult {
	if helpTokens[token] {
		c, _ := r.Get("help")
		return LookupResult{Command: c, IsHelp: true}
	}

	if c, ok := r.Get(token); ok {
		return LookupResult{Command: c}
	}

	r.mu.RLock()
	var matches []string
	for _, n := range r.order {
		if strings.HasPrefix(n, token) {
			matches = append(matches, n)
		}
	}
	r.mu.RUnlock()

	switch len(matches) {
	case 0:
		return LookupResult{Err: liberr.New(liberr.CommandNotFound, "command %q not found", token)}
	case 1:
		c, _ := r.Get(matches[0])
		return LookupResult{Command: c}
	default:
		sort.Strings(matches)
		return LookupResult{Err: liberr.New(liberr.AmbiguousAbbreviation,
			"Ambiguous command abbreviation: '%s' (%s)", token, strings.Join(matches, ", "))}
	}
}

// Tokenize splits line on whitespace. includeName controls whether the
// command-name token itself is left at argv[0]; by default (false) it is
// stripped, matching spec §4.E's compile-time toggle expressed here as a
// call-site parameter.
func Tokenize(line string, includeName bool) (name string, argv []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	if includeName {
		return fields[0], fields
	}
	return fields[0], fields[1:]
}

// Dispatch tokenizes line, resolves the command (honoring the -t
// elapsed-time modifier and help tokens), validates argc against the
// resolved command's arity, and runs the handler, writing usage to out
// when help was requested or the argument count is out of bounds. It
// returns the resolution error, if any (CommandNotFound/Ambiguous), or an
// InvalidArgCount error when argc is out of bounds, so callers can map it
// onto the appropriate terminal msgType.
func (r *Registry) Dispatch(out, errw io.Writer, line string) error {
	elapsed := false
	if strings.HasPrefix(strings.TrimSpace(line), "-t ") || strings.TrimSpace(line) == "-t" {
		elapsed = true
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-t"))
	}

	name, argv := Tokenize(line, false)
	if name == "" {
		return nil
	}

	res := r.Lookup(name)
	if res.Err != nil {
		fmt.Fprintln(out, res.Err.Error())
		return res.Err
	}

	if res.IsHelp {
		r.runHelp(out, argv)
		return nil
	}

	if len(argv) > 0 && helpTokens[argv[len(argv)-1]] {
		r.showUsage(out, res.Command)
		return nil
	}

	if uint(len(argv)) < res.Command.MinArgs() || uint(len(argv)) > res.Command.MaxArgs() {
		r.showUsage(out, res.Command)
		return liberr.New(liberr.InvalidArgCount,
			"command %q expects %d..%d args, got %d", name, res.Command.MinArgs(), res.Command.MaxArgs(), len(argv))
	}

	start := time.Now()
	res.Command.Run(out, errw, argv)
	if elapsed {
		d := time.Since(start)
		r.log.Infof("elapsed time: %s", formatElapsed(d))
	}
	return nil
}

func formatElapsed(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	us := d.Microseconds() % 1_000_000
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, us)
}

func (r *Registry) showUsage(out io.Writer, cmd Command) {
	if cmd.Usage() != "" {
		fmt.Fprintf(out, "Usage: %s\n", cmd.Usage())
	} else {
		fmt.Fprintf(out, "Usage: %s\n", cmd.Name())
	}
}

func (r *Registry) runHelp(out io.Writer, argv []string) {
	if len(argv) == 1 {
		if c, ok := r.Get(argv[0]); ok {
			r.showUsage(out, c)
			return
		}
	}
	fmt.Fprint(out, r.FormatVerbose())
}

// FormatVerbose renders the multi-line "name - description" listing used
// by QueryCommandsVerbose, recovered from the original's command-list
// builder (PshellServer.c).
func (r *Registry) FormatVerbose() string {
	var b strings.Builder
	width := 0
	r.Walk(func(name string, _ Command) bool {
		if len(name) > width {
			width = len(name)
		}
		return true
	})
	r.Walk(func(name string, item Command) bool {
		fmt.Fprintf(&b, "%-*s  -  %s\n", width, name, item.Describe())
		return true
	})
	return b.String()
}

// FormatTerse renders names joined by the documented delimiter (a single
// space) for QueryCommandsTerse.
func (r *Registry) FormatTerse() string {
	var names []string
	r.Walk(func(name string, _ Command) bool {
		names = append(names, name)
		return true
	})
	return strings.Join(names, " ")
}

// Names returns a copy of the completion table (registered command names),
// for editor.CompletionSource.
func (r *Registry) Names() []string {
	var out []string
	r.Walk(func(name string, _ Command) bool {
		out = append(out, name)
		return true
	})
	return out
}
