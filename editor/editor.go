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

// Package editor implements the terminal-agnostic line editor of spec
// §4.D: cursor editing, a bounded history ring, TAB completion and
// Telnet option filtering, shared between interactive server sessions
// (TCP, local TTY) and the standalone client.
package editor

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// historyCapacity is the bounded ring size of spec §4.D.
const historyCapacity = 512

// maxScreenWidth bounds completion-candidate column layout, per spec §4.D.
const maxScreenWidth = 80

// Conn is the minimal transport surface the editor reads from/writes to.
// transport/local and transport/tcp each provide an implementation; the
// editor never opens or closes one itself.
type Conn interface {
	io.Writer
	// ReadByte reads a single byte, returning ErrIdleTimeout if none
	// arrives before deadline. A zero deadline means "no timeout",
	// used for the bytes following an escape/CSI introducer that must
	// complete once started.
	ReadByte(deadline time.Time) (byte, error)
}

// ErrIdleTimeout is returned by Conn.ReadByte when no input arrives
// within the configured idle window.
var ErrIdleTimeout = fmt.Errorf("idle session timeout")

// CompletionMode selects between the two TAB-completion behaviors of
// spec §4.D.
type CompletionMode uint8

const (
	// FastCompletion: a single TAB completes the longest common prefix
	// and lists candidates (or completes+space on a unique match).
	FastCompletion CompletionMode = iota
	// BashCompletion: the first TAB completes the common prefix only;
	// a second consecutive TAB lists candidates.
	BashCompletion
)

// CompletionSource supplies the current candidate table (registered
// command names plus editor built-ins).
type CompletionSource interface {
	Names() []string
}

// TelnetMode enables IAC/option swallowing and \n -> \r\n output
// translation for socket sessions; disable it for raw TTY sessions.
type TelnetMode bool

const (
	TelnetOn  TelnetMode = true
	TelnetOff TelnetMode = false
)

// Editor owns the current input line, cursor position and history for one
// session. It is not safe for concurrent use; one Editor per session.
type Editor struct {
	conn       Conn
	telnet     TelnetMode
	mode       CompletionMode
	completion CompletionSource

	history     []string
	histCursor  int // -1 means "not browsing history"
	lastTabLine string
	tabCount    int

	// telnet IAC parse state
	iacState iacState
}

type iacState uint8

const (
	iacIdle iacState = iota
	iacSeenIAC
	iacSeenOption
)

// New creates an Editor bound to conn. completion may be nil (no TAB
// completion table yet registered).
func New(conn Conn, telnet TelnetMode, mode CompletionMode, completion CompletionSource) *Editor {
	return &Editor{
		conn:       conn,
		telnet:     telnet,
		mode:       mode,
		completion: completion,
		histCursor: -1,
	}
}

// SetCompletionSource rebinds the completion table, e.g. once a server's
// command registry has finished adding built-ins and user commands.
func (e *Editor) SetCompletionSource(c CompletionSource) { e.completion = c }

const (
	ctrlA = 0x01
	ctrlB = 0x02
	ctrlE = 0x05
	ctrlF = 0x06
	ctrlH = 0x08
	ctrlK = 0x0b
	ctrlL = 0x0c
	ctrlN = 0x0e
	ctrlP = 0x10
	ctrlU = 0x15
	ctrlW = 0x17
	tab   = 0x09
	cr    = 0x0d
	lf    = 0x0a
	esc   = 0x1b
	del   = 0x7f
	bel   = 0x07
)

// line is the mutable editing buffer for one ReadLine call.
type line struct {
	buf    []rune
	cursor int
}

func (l *line) String() string { return string(l.buf) }

func (l *line) insert(r rune) {
	l.buf = append(l.buf[:l.cursor], append([]rune{r}, l.buf[l.cursor:]...)...)
	l.cursor++
}

func (l *line) deleteLeft() {
	if l.cursor == 0 {
		return
	}
	l.buf = append(l.buf[:l.cursor-1], l.buf[l.cursor:]...)
	l.cursor--
}

func (l *line) deleteUnderCursor() {
	if l.cursor >= len(l.buf) {
		return
	}
	l.buf = append(l.buf[:l.cursor], l.buf[l.cursor+1:]...)
}

func (l *line) killToEnd()  { l.buf = l.buf[:l.cursor] }
func (l *line) killAll()    { l.buf = nil; l.cursor = 0 }
func (l *line) killWord() {
	if l.cursor == 0 {
		return
	}
	i := l.cursor
	for i > 0 && l.buf[i-1] == ' ' {
		i--
	}
	for i > 0 && l.buf[i-1] != ' ' {
		i--
	}
	l.buf = append(l.buf[:i], l.buf[l.cursor:]...)
	l.cursor = i
}

func (l *line) set(s string) {
	l.buf = []rune(s)
	l.cursor = len(l.buf)
}

// ReadLine reads and edits one line of input, returning it once CR/LF
// commits it. idleTimeout<=0 disables the idle watchdog. Returns
// ErrIdleTimeout if the session goes idle without committing a line.
func (e *Editor) ReadLine(prompt string, idleTimeout time.Duration) (string, error) {
	fmt.Fprint(e.conn, e.newline(prompt))
	l := &line{}
	e.histCursor = -1

	for {
		var deadline time.Time
		if idleTimeout > 0 {
			deadline = time.Now().Add(idleTimeout)
		}

		b, err := e.conn.ReadByte(deadline)
		if err != nil {
			return "", err
		}

		if e.telnet {
			if consumed := e.filterTelnet(b); consumed {
				continue
			}
		}

		done, err := e.handleByte(b, l, prompt)
		if err != nil {
			return "", err
		}
		if done {
			result := l.String()
			e.pushHistory(result)
			return result, nil
		}
	}
}

// filterTelnet advances the IAC state machine and reports whether b was
// consumed as part of a Telnet negotiation sequence (IAC + 2 option
// bytes), per spec §4.D/§6.
func (e *Editor) filterTelnet(b byte) bool {
	const iac = 0xff
	switch e.iacState {
	case iacIdle:
		if b == iac {
			e.iacState = iacSeenIAC
			return true
		}
		return false
	case iacSeenIAC:
		e.iacState = iacSeenOption
		return true
	case iacSeenOption:
		e.iacState = iacIdle
		return true
	}
	return false
}

func (e *Editor) newline(prompt string) string {
	if e.telnet {
		return strings.ReplaceAll(prompt, "\n", "\r\n")
	}
	return prompt
}

func (e *Editor) write(s string) {
	if e.telnet {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	fmt.Fprint(e.conn, s)
}

// handleByte applies one key-binding step to l. It returns done=true once
// CR/LF commits the line.
func (e *Editor) handleByte(b byte, l *line, prompt string) (bool, error) {
	if b != tab {
		e.tabCount = 0
	}

	switch {
	case b == cr || b == lf:
		e.write("\n")
		if strings.HasPrefix(l.String(), "!") {
			if n, ok := parseHistoryRecall(l.String()); ok {
				if s, ok := e.historyAt(n); ok {
					l.set(s)
				}
			}
		}
		return true, nil

	case b >= 0x20 && b <= 0x7e:
		l.insert(rune(b))
		e.write(string(b))
		return false, nil

	case b == ctrlA:
		l.cursor = 0
	case b == ctrlE:
		l.cursor = len(l.buf)
	case b == ctrlB:
		if l.cursor > 0 {
			l.cursor--
		}
	case b == ctrlF:
		if l.cursor < len(l.buf) {
			l.cursor++
		}
	case b == ctrlP:
		e.historyPrev(l)
	case b == ctrlN:
		e.historyNext(l)
	case b == ctrlU:
		l.killAll()
	case b == ctrlK:
		l.killToEnd()
	case b == ctrlW:
		l.killWord()
	case b == ctrlH || b == del:
		l.deleteLeft()
	case b == ctrlL:
		e.write("\n")
	case b == tab:
		e.complete(l)
		return false, nil
	case b == esc:
		if err := e.handleCSI(l); err != nil {
			return false, err
		}
	}

	e.redraw(prompt, l)
	return false, nil
}

// readSeqByte reads the next byte of a multi-byte key sequence, applying
// the same Telnet IAC filtering as ReadLine's main loop so a negotiation
// sequence interleaved mid-sequence (e.g. during an arrow key) can't be
// misread as a CSI continuation byte.
func (e *Editor) readSeqByte() (byte, error) {
	for {
		b, err := e.conn.ReadByte(time.Time{})
		if err != nil {
			return 0, err
		}
		if e.telnet && e.filterTelnet(b) {
			continue
		}
		return b, nil
	}
}

// handleCSI consumes an "ESC [ ..." sequence for the arrow/home/end/delete
// keys, per spec §4.D.
func (e *Editor) handleCSI(l *line) error {
	b1, err := e.readSeqByte()
	if err != nil {
		return err
	}
	if b1 != '[' {
		return nil
	}
	b2, err := e.readSeqByte()
	if err != nil {
		return err
	}
	switch b2 {
	case 'A': // up
		e.historyPrev(l)
	case 'B': // down
		e.historyNext(l)
	case 'C': // right
		if l.cursor < len(l.buf) {
			l.cursor++
		}
	case 'D': // left
		if l.cursor > 0 {
			l.cursor--
		}
	case 'H': // home
		l.cursor = 0
	case 'F': // end
		l.cursor = len(l.buf)
	case '3': // delete, followed by '~'
		if _, err := e.readSeqByte(); err != nil {
			return err
		}
		l.deleteUnderCursor()
	}
	return nil
}

// redraw erases the current terminal line and repaints prompt+buffer,
// repositioning the cursor with a relative left-move, per spec §4.D's
// Ctrl-L ("redraw prompt + line") binding and every cursor-moving key.
func (e *Editor) redraw(prompt string, l *line) {
	content := l.String()
	e.write("\r\x1b[K" + prompt + content)
	if back := len(content) - l.cursor; back > 0 {
		e.write(fmt.Sprintf("\x1b[%dD", back))
	}
}

func parseHistoryRecall(s string) (int, bool) {
	if !strings.HasPrefix(s, "!") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "!"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// --- history -----------------------------------------------------------

// pushHistory appends result to the ring, dropping the oldest entry on
// overflow and suppressing duplicates of the immediately preceding entry,
// per spec §4.D.
func (e *Editor) pushHistory(result string) {
	if result == "" {
		return
	}
	if len(e.history) > 0 && e.history[len(e.history)-1] == result {
		return
	}
	e.history = append(e.history, result)
	if len(e.history) > historyCapacity {
		e.history = e.history[len(e.history)-historyCapacity:]
	}
}

// History returns a copy of the recorded history, oldest first.
func (e *Editor) History() []string {
	out := make([]string, len(e.history))
	copy(out, e.history)
	return out
}

// historyAt returns the 1-based n-th history entry, per the "!N" binding.
func (e *Editor) historyAt(n int) (string, bool) {
	if n < 1 || n > len(e.history) {
		return "", false
	}
	return e.history[n-1], true
}

func (e *Editor) historyPrev(l *line) {
	if len(e.history) == 0 {
		return
	}
	if e.histCursor == -1 {
		e.histCursor = len(e.history) - 1
	} else if e.histCursor > 0 {
		e.histCursor--
	}
	l.set(e.history[e.histCursor])
}

// historyNext moves forward through history; moving past the newest
// entry clears the line, per spec §4.D.
func (e *Editor) historyNext(l *line) {
	if e.histCursor == -1 {
		return
	}
	if e.histCursor >= len(e.history)-1 {
		e.histCursor = -1
		l.killAll()
		return
	}
	e.histCursor++
	l.set(e.history[e.histCursor])
}

// --- completion ----------------------------------------------------------

func (e *Editor) candidates(prefix string) []string {
	if e.completion == nil {
		return nil
	}
	var out []string
	for _, n := range e.completion.Names() {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (e *Editor) complete(l *line) {
	word := l.String()
	candidates := e.candidates(word)

	switch e.mode {
	case BashCompletion:
		e.completeBash(l, word, candidates)
	default:
		e.completeFast(l, word, candidates)
	}
}

func (e *Editor) completeFast(l *line, word string, candidates []string) {
	switch len(candidates) {
	case 0:
		e.write(string(bel))
	case 1:
		l.set(candidates[0] + " ")
	default:
		lcp := longestCommonPrefix(candidates)
		l.set(lcp)
		e.listCandidates(candidates)
	}
}

func (e *Editor) completeBash(l *line, word string, candidates []string) {
	if len(candidates) == 0 {
		e.write(string(bel))
		return
	}
	lcp := longestCommonPrefix(candidates)
	if lcp != word {
		l.set(lcp)
		e.tabCount = 1
		return
	}
	e.tabCount++
	if e.tabCount >= 2 && len(candidates) > 1 {
		e.listCandidates(candidates)
		e.tabCount = 0
	}
}

// listCandidates renders candidates column-wrapped to maxScreenWidth,
// each column sized to the longest candidate plus 2, per spec §4.D.
func (e *Editor) listCandidates(candidates []string) {
	width := 0
	for _, c := range candidates {
		if len(c) > width {
			width = len(c)
		}
	}
	width += 2
	perRow := maxScreenWidth / width
	if perRow < 1 {
		perRow = 1
	}

	var b strings.Builder
	b.WriteString("\n")
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf("%-*s", width, c))
		if (i+1)%perRow == 0 {
			b.WriteString("\n")
		}
	}
	if len(candidates)%perRow != 0 {
		b.WriteString("\n")
	}
	e.write(b.String())
}

func longestCommonPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	prefix := ss[0]
	for _, s := range ss[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}
