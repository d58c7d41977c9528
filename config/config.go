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

// Package config reads the "key.subkey=value" configuration files of
// spec §6: server name-to-address bindings the interactive client uses
// for discovery, with a three-directory lookup order reused for batch
// and startup file resolution. A hand-rolled scanner is used rather
// than spf13/viper (see DESIGN.md): the format's '#' comments and the
// layered env/compiled-default/cwd lookup order don't map onto viper's
// format-sniffing model without fighting it.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	liberr "github.com/RonIovine/pshell-sub000/errors"
)

// DefaultConfigDir is the compiled-in fallback directory for pshell's
// own config file, recovered from original_source/src/PshellServer.c.
const DefaultConfigDir = "/etc/pshell/config"

// DefaultBatchDir and DefaultStartupDir are the compiled-in fallbacks
// for batch and startup file resolution, same constant in the original.
const (
	DefaultBatchDir   = "/etc/pshell/batch"
	DefaultStartupDir = "/etc/pshell/startup"
)

// File is a parsed "key.subkey=value" document: top-level keys map to
// their subkey/value pairs, e.g. "server1.host=127.0.0.1" becomes
// File.Get("server1", "host") == ("127.0.0.1", true). The zero value is
// not usable; construct via Parse/LoadConfigFile/LoadBatchFile/
// LoadStartupFile.
type File struct {
	values map[string]map[string]string
	order  []string // top-level keys, in first-appearance order
}

// Get returns the subkey's value under key, and whether it was present.
func (f File) Get(key, subkey string) (string, bool) {
	sub, ok := f.values[key]
	if !ok {
		return "", false
	}
	v, ok := sub[subkey]
	return v, ok
}

// Keys returns the top-level keys (e.g. registered server names), in
// the order they first appeared in the file.
func (f File) Keys() []string {
	return append([]string(nil), f.order...)
}

// Parse scans r line by line: blank lines and lines whose first
// non-whitespace character is '#' are comments; every other line must
// be "key.subkey=value".
func Parse(r *bufio.Scanner) (File, error) {
	out := File{values: make(map[string]map[string]string)}
	lineNo := 0
	for r.Scan() {
		lineNo++
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return File{}, liberr.New(liberr.InvalidBatchFile, "line %d: missing '=': %q", lineNo, line)
		}
		keypart, value := strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:])

		dot := strings.IndexByte(keypart, '.')
		if dot < 0 {
			return File{}, liberr.New(liberr.InvalidBatchFile, "line %d: missing '.' in key %q", lineNo, keypart)
		}
		key, subkey := keypart[:dot], keypart[dot+1:]

		if out.values[key] == nil {
			out.values[key] = make(map[string]string)
			out.order = append(out.order, key)
		}
		out.values[key][subkey] = value
	}
	if err := r.Err(); err != nil {
		return File{}, liberr.Wrap(liberr.InvalidBatchFile, err, "scan config")
	}
	return out, nil
}

// locateFile implements the three-directory lookup order shared by
// config, batch and startup file resolution: $envVar, then
// compiledDefault, then the current working directory.
func locateFile(name, envVar, compiledDefault string) (string, error) {
	candidates := []string{}
	if v := os.Getenv(envVar); v != "" {
		candidates = append(candidates, filepath.Join(v, name))
	}
	candidates = append(candidates, filepath.Join(compiledDefault, name))
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, name))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", liberr.New(liberr.InvalidBatchFile, "could not locate %q in %v", name, candidates)
}

// LoadConfigFile resolves and parses the pshell config file by name,
// using $PSHELL_CONFIG_DIR, DefaultConfigDir, then cwd.
func LoadConfigFile(name string) (File, error) {
	return loadNamed(name, "PSHELL_CONFIG_DIR", DefaultConfigDir)
}

// LoadBatchFile resolves and parses a batch file by name, using
// $PSHELL_BATCH_DIR, DefaultBatchDir, then cwd.
func LoadBatchFile(name string) (File, error) {
	return loadNamed(name, "PSHELL_BATCH_DIR", DefaultBatchDir)
}

// LoadStartupFile resolves and parses a startup file by name, using
// $PSHELL_STARTUP_DIR, DefaultStartupDir, then cwd.
func LoadStartupFile(name string) (File, error) {
	return loadNamed(name, "PSHELL_STARTUP_DIR", DefaultStartupDir)
}

func loadNamed(name, envVar, compiledDefault string) (File, error) {
	path, err := locateFile(name, envVar, compiledDefault)
	if err != nil {
		return File{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return File{}, liberr.Wrap(liberr.InvalidBatchFile, err, "open %q", path)
	}
	defer f.Close()
	return Parse(bufio.NewScanner(f))
}

// BatchLines reads a batch file's command lines in order (spec §6): the
// same comment/blank-line rules as Parse, but each remaining line is a
// whole command, not a key.subkey=value pair.
func BatchLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, liberr.Wrap(liberr.InvalidBatchFile, err, "open batch file %q", path)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, liberr.Wrap(liberr.InvalidBatchFile, err, "scan batch file")
	}
	return lines, nil
}
