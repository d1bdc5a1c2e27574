// Package namedlist implements the engine's universal parameter container:
// an ordered, possibly-duplicate-keyed sequence of (name, value) pairs.
// It is the payload type underlying every Message on the dispatcher bus.
package namedlist

import (
	"strconv"
	"strings"
)

// NamedParam is one entry in a NamedList. Value carries the string payload;
// Data is an optional owned object riding alongside it (a binary blob, an
// endpoint handle, ...) addressable only by whoever holds the NamedParam.
type NamedParam struct {
	Name  string
	Value string
	Data  any
}

// NamedList is an ordered sequence of NamedParam, plus a "kind" name for
// the list itself (e.g. a Message's name). Duplicate names are allowed;
// lookups return the first match unless stated otherwise.
type NamedList struct {
	kind   string
	params []NamedParam
}

// New creates an empty NamedList with the given kind.
func New(kind string) *NamedList {
	return &NamedList{kind: kind}
}

// Kind returns the list's own name.
func (l *NamedList) Kind() string { return l.kind }

// SetKind renames the list.
func (l *NamedList) SetKind(kind string) { l.kind = kind }

// Len returns the number of parameters, including duplicates.
func (l *NamedList) Len() int { return len(l.params) }

// AddParam appends a new entry unconditionally, even if name already exists.
func (l *NamedList) AddParam(name, value string) {
	l.params = append(l.params, NamedParam{Name: name, Value: value})
}

// AddParamData appends a new entry carrying an attached payload object.
func (l *NamedList) AddParamData(name, value string, data any) {
	l.params = append(l.params, NamedParam{Name: name, Value: value, Data: data})
}

// SetParam updates the first entry named name, or appends if absent.
func (l *NamedList) SetParam(name, value string) {
	for i := range l.params {
		if l.params[i].Name == name {
			l.params[i].Value = value
			l.params[i].Data = nil
			return
		}
	}
	l.AddParam(name, value)
}

// ClearParam removes every entry named name. Returns the number removed.
func (l *NamedList) ClearParam(name string) int {
	out := l.params[:0]
	removed := 0
	for _, p := range l.params {
		if p.Name == name {
			removed++
			continue
		}
		out = append(out, p)
	}
	l.params = out
	return removed
}

// GetParam returns the first entry named name.
func (l *NamedList) GetParam(name string) (*NamedParam, bool) {
	for i := range l.params {
		if l.params[i].Name == name {
			return &l.params[i], true
		}
	}
	return nil, false
}

// At returns the entry at the given insertion-order index.
func (l *NamedList) At(index int) (*NamedParam, bool) {
	if index < 0 || index >= len(l.params) {
		return nil, false
	}
	return &l.params[index], true
}

// Params returns the live backing slice in insertion order. Callers must
// not retain it across a mutation of the list.
func (l *NamedList) Params() []NamedParam { return l.params }

// GetValue returns the first value named name, or def if absent.
func (l *NamedList) GetValue(name, def string) string {
	if p, ok := l.GetParam(name); ok {
		return p.Value
	}
	return def
}

// GetIntValue parses the first value named name as an integer, returning
// def on absence or parse failure.
func (l *NamedList) GetIntValue(name string, def int) int {
	p, ok := l.GetParam(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		return def
	}
	return n
}

// GetBoolValue parses the first value named name as a boolean. Recognises
// "true"/"yes"/"1"/"on" and "false"/"no"/"0"/"off" case-insensitively;
// anything else (including absence) returns def.
func (l *NamedList) GetBoolValue(name string, def bool) bool {
	p, ok := l.GetParam(name)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(p.Value)) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return def
	}
}

// CopyParams copies the first occurrence of each named parameter from src
// into l. Names not present in src are skipped silently.
func (l *NamedList) CopyParams(src *NamedList, names ...string) {
	for _, n := range names {
		if p, ok := src.GetParam(n); ok {
			l.SetParam(n, p.Value)
		}
	}
}

// ReplaceParams substitutes ${name} occurrences in template with the
// value of name looked up in l (empty string if absent), inserted as-is:
// no escaping is applied to it. "$$" is a literal dollar sign.
func (l *NamedList) ReplaceParams(template string) string {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(template) && template[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		if i+1 < len(template) && template[i+1] == '{' {
			end := strings.IndexByte(template[i+2:], '}')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			name := template[i+2 : i+2+end]
			b.WriteString(l.GetValue(name, ""))
			i += 2 + end
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Clone returns a deep-enough copy: a new backing slice with the same
// entries (attached Data objects are shared by reference, as with the
// original Message semantics).
func (l *NamedList) Clone() *NamedList {
	out := &NamedList{kind: l.kind, params: make([]NamedParam, len(l.params))}
	copy(out.params, l.params)
	return out
}
