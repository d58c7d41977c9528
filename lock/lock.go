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

// Package lock implements the singleton-instance coordination layer of
// spec §4.B: per-server lockfiles under a well-known directory that
// prevent name/address collisions, let clients discover live servers, and
// reclaim stale resources left behind by a crashed process.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// DefaultDir is the compiled-in default lock directory, recovered from
// original_source/src/PshellServer.c.
const DefaultDir = "/tmp/.pshell"

// Kind identifies the transport a lockfile names.
type Kind string

const (
	KindUDP  Kind = "udp"
	KindUnix Kind = "unix"
	KindTCP  Kind = "tcp"
)

// maxBindAttempts bounds the port/suffix bump loop of spec §4.B.
const maxBindAttempts = 4096

// Dir manages the shared lock directory for one process. Each live
// server or control client owns exactly one Entry allocated through it.
type Dir struct {
	mu   sync.Mutex
	path string
	log  *logrus.Logger
}

// New returns a Dir rooted at path, creating it world-writable (spec §5)
// if it does not already exist. path=="" uses DefaultDir.
func New(path string, log *logrus.Logger) (*Dir, error) {
	if path == "" {
		path = DefaultDir
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	_, statErr := os.Stat(path)
	if err := os.MkdirAll(path, 0o777); err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "create lock directory %q", path)
	}
	if os.IsNotExist(statErr) {
		// MkdirAll's mode is filtered by the umask; set it explicitly.
		if err := os.Chmod(path, 0o777); err != nil {
			return nil, liberr.Wrap(liberr.BindFailure, err, "chmod lock directory %q", path)
		}
	}
	return &Dir{path: path, log: log}, nil
}

// Path returns the directory root.
func (d *Dir) Path() string { return d.path }

// Entry is one held, exclusive advisory lock asserting liveness of its
// owning server or control client.
type Entry struct {
	dir      *Dir
	name     string
	fileName string
	file     *os.File
	socket   string // paired socket node path, "" if none (UDP/TCP)
}

// filename builds the name-encoding scheme of spec §4.B.
func filename(name string, kind Kind, bindAddress string, port int) string {
	switch kind {
	case KindUnix:
		return fmt.Sprintf("%s-unix.lock", name)
	default:
		return fmt.Sprintf("%s-%s-%s-%d.lock", name, kind, bindAddress, port)
	}
}

// controlFilename builds a per-control-client lockfile name with a random
// suffix, per spec §4.B.
func controlFilename(name string) string {
	return fmt.Sprintf("%s-control%s.lock", name, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Acquire scans the directory, reclaiming stale lockfiles (§4.B steps
// 1-3), then allocates a new lockfile for (name, kind, bindAddress, port),
// bumping port (for udp/tcp) or appending a numeric suffix to name (for
// unix) up to maxBindAttempts times if the requested identity is taken.
func (d *Dir) Acquire(name string, kind Kind, bindAddress string, port int) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.reclaimStaleLocked(); err != nil {
		d.log.WithField("component", "lock.Dir").Warnf("stale reclamation incomplete: %s", err.Error())
	}

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		n, p := bumpIdentity(name, port, kind, attempt)
		fname := filename(n, kind, bindAddress, p)
		full := filepath.Join(d.path, fname)

		f, err := tryCreateExclusive(full)
		if err != nil {
			continue // identity taken by a live server (or races with another process); bump and retry
		}

		e := &Entry{dir: d, name: n, fileName: fname, file: f}
		if kind == KindUnix {
			e.socket = filepath.Join(d.path, n)
		}
		return e, nil
	}

	return nil, liberr.New(liberr.BindFailure,
		"exhausted %d attempts allocating a lockfile for %q", maxBindAttempts, name)
}

// AcquireControl allocates a control-client lockfile with a random
// suffix; spec §4.B never requires bumping these since the suffix is
// already effectively unique.
func (d *Dir) AcquireControl(name string) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		fname := controlFilename(name)
		full := filepath.Join(d.path, fname)
		f, err := tryCreateExclusive(full)
		if err != nil {
			continue
		}
		return &Entry{dir: d, name: name, fileName: fname, file: f}, nil
	}
	return nil, liberr.New(liberr.BindFailure, "exhausted attempts allocating control lockfile for %q", name)
}

func bumpIdentity(name string, port int, kind Kind, attempt int) (string, int) {
	if attempt == 0 {
		return name, port
	}
	if kind == KindUnix {
		return fmt.Sprintf("%s-%d", name, attempt), port
	}
	return name, port + attempt
}

// tryCreateExclusive implements the spec §9 clarified semantics:
// O_CREAT|O_EXCL create-if-absent, then a held exclusive advisory flock
// for the lifetime of the Entry.
func tryCreateExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return f, nil
}

// reclaimStaleLocked scans *.lock files, unlinking any whose lock is not
// held by a live process along with its paired socket node, per spec
// §4.B / Testable Property 5 and SC6.
func (d *Dir) reclaimStaleLocked() error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return liberr.Wrap(liberr.BindFailure, err, "scan lock directory %q", d.path)
	}

	var merr *multierror.Error
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".lock") {
			continue
		}
		full := filepath.Join(d.path, ent.Name())

		f, err := os.OpenFile(full, os.O_RDONLY, 0o644)
		if err != nil {
			continue
		}

		lockErr := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if lockErr != nil {
			// held by a live process: not stale, leave it and its socket alone.
			f.Close()
			continue
		}

		// we just took the lock ourselves: nobody else holds it, so it is stale.
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()

		if err := os.Remove(full); err != nil {
			merr = multierror.Append(merr, err)
		}

		if sock := pairedSocket(d.path, ent.Name()); sock != "" {
			_ = os.Remove(sock)
		}
	}

	if merr != nil {
		return merr.ErrorOrNil()
	}
	return nil
}

// pairedSocket derives the socket-node path for a "<name>-unix.lock" file;
// other lockfile shapes have no paired node.
func pairedSocket(dir, lockName string) string {
	const suffix = "-unix.lock"
	if !strings.HasSuffix(lockName, suffix) {
		return ""
	}
	return filepath.Join(dir, strings.TrimSuffix(lockName, suffix))
}

// Active describes one live server discovered by listing the lock
// directory: a file whose lock is held by another process.
type Active struct {
	Name string
	Kind Kind
}

// ListActive enumerates servers currently holding a lock, for the
// standalone client's "-s" discovery option (spec §6).
func (d *Dir) ListActive() ([]Active, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, liberr.Wrap(liberr.BindFailure, err, "scan lock directory %q", d.path)
	}

	var out []Active
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".lock") {
			continue
		}
		full := filepath.Join(d.path, ent.Name())
		f, err := os.OpenFile(full, os.O_RDONLY, 0o644)
		if err != nil {
			continue
		}
		lockErr := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if lockErr == nil {
			// nobody holds it: stale, not active; release and skip.
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			continue
		}
		f.Close()
		out = append(out, parseActive(ent.Name()))
	}
	return out, nil
}

func parseActive(lockName string) Active {
	base := strings.TrimSuffix(lockName, ".lock")
	if strings.HasSuffix(base, "-unix") {
		return Active{Name: strings.TrimSuffix(base, "-unix"), Kind: KindUnix}
	}
	parts := strings.SplitN(base, "-", 2)
	if len(parts) == 2 && (strings.HasPrefix(parts[1], "udp-") || strings.HasPrefix(parts[1], "tcp-")) {
		k := KindUDP
		if strings.HasPrefix(parts[1], "tcp-") {
			k = KindTCP
		}
		return Active{Name: parts[0], Kind: k}
	}
	return Active{Name: base}
}

// Release unlocks and removes the entry's lockfile (and paired socket
// node, if any). Errors from either step are aggregated.
func (e *Entry) Release() error {
	var merr *multierror.Error

	if e.file != nil {
		if err := unix.Flock(int(e.file.Fd()), unix.LOCK_UN); err != nil {
			merr = multierror.Append(merr, err)
		}
		full := filepath.Join(e.dir.path, e.fileName)
		if err := e.file.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, err)
		}
	}

	if e.socket != "" {
		if err := os.Remove(e.socket); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, err)
		}
	}

	if merr != nil {
		return merr.ErrorOrNil()
	}
	return nil
}

// Name returns the (possibly bumped) identity this entry actually claimed.
func (e *Entry) Name() string { return e.name }

// SocketPath returns the paired UNIX socket node path, or "" if this
// entry is not a UNIX-domain server lock.
func (e *Entry) SocketPath() string { return e.socket }
