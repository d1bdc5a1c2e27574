// Package config implements the sectioned configuration file format
// (spec.md §3/§6): UTF-8 text, `[section]` headers, `key=value` lines,
// `;`/`#` full-line comments, order preserved within a section. Values
// are read raw; callers expand `${param}` references against a runtime
// parameter source (typically the engine's own NamedList of live
// settings) via Resolve, using internal/namedlist.NamedList's existing
// ${}/$$ substitution rather than a second implementation of it.
//
// No example or ecosystem config library (BurntSushi/toml,
// pelletier/go-toml, spf13/viper, gopkg.in/yaml.v3) implements ${}
// interpolation against an external, mutable key-value source with $$
// escaping and ordered duplicate-key sections, so this loader is
// hand-built on bufio.Scanner.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"tallhat.dev/tonal/internal/namedlist"
)

// File is a loaded, read-only configuration: an ordered set of named
// sections, each an internal/namedlist.NamedList of raw (unexpanded)
// key=value pairs in file order.
type File struct {
	order    []string
	sections map[string]*namedlist.NamedList
}

// New creates an empty File, useful for tests or programmatically built
// configuration.
func New() *File {
	return &File{sections: make(map[string]*namedlist.NamedList)}
}

// LoadFile opens path and parses it as a config File.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load parses r as a config File. A line is a full-line comment if its
// first non-blank character is ';' or '#'; anything else is either a
// `[section]` header or a `key=value` pair. A key=value line outside any
// section header is an error: spec.md requires sections, there is no
// implicit "global" one.
func Load(r io.Reader) (*File, error) {
	f := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	current := ""
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, fmt.Errorf("config: line %d: unterminated section header", lineNo)
			}
			current = strings.TrimSpace(line[1:end])
			f.section(current)
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("config: line %d: key=value outside any [section]", lineNo)
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("config: line %d: missing '=' in %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, fmt.Errorf("config: line %d: empty key", lineNo)
		}
		f.section(current).AddParam(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// section returns the named section's NamedList, creating (and
// recording the order of) it on first reference. A section named more
// than once in the file accumulates into the same NamedList rather than
// replacing it, matching how a human re-opening "[general]" later in a
// file expects to add to it, not reset it.
func (f *File) section(name string) *namedlist.NamedList {
	if s, ok := f.sections[name]; ok {
		return s
	}
	s := namedlist.New(name)
	f.sections[name] = s
	f.order = append(f.order, name)
	return s
}

// Sections returns the section names in file order.
func (f *File) Sections() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Section returns the named section's raw parameters, if present.
func (f *File) Section(name string) (*namedlist.NamedList, bool) {
	s, ok := f.sections[name]
	return s, ok
}

// Get returns the raw (unexpanded) value of key in section, or def if
// either is absent.
func (f *File) Get(section, key, def string) string {
	s, ok := f.sections[section]
	if !ok {
		return def
	}
	return s.GetValue(key, def)
}

// GetInt returns the value of key in section parsed as an integer, or
// def if either is absent or the value does not parse.
func (f *File) GetInt(section, key string, def int) int {
	s, ok := f.sections[section]
	if !ok {
		return def
	}
	return s.GetIntValue(key, def)
}

// GetBool returns the value of key in section parsed as a boolean (see
// NamedList.GetBoolValue for the accepted spellings), or def if either
// is absent or the value does not parse.
func (f *File) GetBool(section, key string, def bool) bool {
	s, ok := f.sections[section]
	if !ok {
		return def
	}
	return s.GetBoolValue(key, def)
}

// Resolve returns the value of key in section with ${param} references
// expanded against params (nil params yields the raw value with no
// substitution, since NamedList.ReplaceParams requires a receiver to
// read from).
func (f *File) Resolve(section, key, def string, params *namedlist.NamedList) string {
	raw := f.Get(section, key, def)
	if params == nil {
		return raw
	}
	return params.ReplaceParams(raw)
}
