package wire

import (
	"fmt"
	"strconv"
	"strings"

	"tallhat.dev/tonal/internal/namedlist"
)

// Direction distinguishes a wire-format request from a reply, per spec.md
// §6 ("Requests start %%>message:, replies %%<message:").
type Direction int

const (
	Request Direction = iota
	Reply
)

func (d Direction) prefix() string {
	if d == Reply {
		return "%%<message:"
	}
	return "%%>message:"
}

// Encode renders msg as the ASCII wire line:
// %%>message:id:sec:name:retval:k1=v1:k2=v2...
// Sub-second precision in msg.createdUs is truncated to whole seconds on
// the wire, matching spec.md §4.1.
func Encode(dir Direction, msg *Message) string {
	var b strings.Builder
	b.WriteString(dir.prefix())
	b.WriteString(namedlist.EscapeWire(msg.ID))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(msg.CreatedUs()/1_000_000, 10))
	b.WriteByte(':')
	b.WriteString(namedlist.EscapeWire(msg.Name()))
	b.WriteByte(':')
	b.WriteString(namedlist.EscapeWire(msg.RetVal()))
	for _, p := range msg.Params().Params() {
		b.WriteByte(':')
		b.WriteString(namedlist.EscapeWire(p.Name))
		b.WriteByte('=')
		b.WriteString(namedlist.EscapeWire(p.Value))
	}
	return b.String()
}

// Decode parses a wire line produced by Encode (or an equivalent
// collaborator) back into a Message. It validates the prefix and
// unescapes every field; malformed lines return an error rather than a
// partially populated Message.
func Decode(line string) (*Message, Direction, error) {
	var dir Direction
	var rest string
	switch {
	case strings.HasPrefix(line, Request.prefix()):
		dir = Request
		rest = line[len(Request.prefix()):]
	case strings.HasPrefix(line, Reply.prefix()):
		dir = Reply
		rest = line[len(Reply.prefix()):]
	default:
		return nil, 0, fmt.Errorf("wire: unrecognised message prefix")
	}

	fields, err := splitEscaped(rest, ':')
	if err != nil {
		return nil, 0, err
	}
	if len(fields) < 4 {
		return nil, 0, fmt.Errorf("wire: expected at least 4 fields, got %d", len(fields))
	}

	id, err := namedlist.UnescapeWire(fields[0])
	if err != nil {
		return nil, 0, fmt.Errorf("wire: id: %w", err)
	}
	secs, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("wire: timestamp: %w", err)
	}
	name, err := namedlist.UnescapeWire(fields[2])
	if err != nil {
		return nil, 0, fmt.Errorf("wire: name: %w", err)
	}
	retval, err := namedlist.UnescapeWire(fields[3])
	if err != nil {
		return nil, 0, fmt.Errorf("wire: retval: %w", err)
	}

	msg := New(id, name, secs*1_000_000)
	msg.SetRetVal(retval)

	for _, kv := range fields[4:] {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, 0, err
		}
		msg.Params().AddParam(k, v)
	}
	return msg, dir, nil
}

// splitEscaped splits s on sep, honoring '\'-escaping so an escaped
// separator does not produce a spurious field boundary.
func splitEscaped(s string, sep byte) ([]string, error) {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			if i+1 >= len(s) {
				return nil, fmt.Errorf("wire: trailing escape character")
			}
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if c == sep {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	fields = append(fields, cur.String())
	return fields, nil
}

// splitKV splits one "name=value" field (already de-colon-escaped) on the
// first unescaped '=' and unescapes both halves.
func splitKV(field string) (name, value string, err error) {
	idx := -1
	for i := 0; i < len(field); i++ {
		if field[i] == '\\' {
			i++
			continue
		}
		if field[i] == '=' {
			idx = i
			break
		}
	}
	if idx < 0 {
		name, err = namedlist.UnescapeWire(field)
		return name, "", err
	}
	name, err = namedlist.UnescapeWire(field[:idx])
	if err != nil {
		return "", "", err
	}
	value, err = namedlist.UnescapeWire(field[idx+1:])
	if err != nil {
		return "", "", err
	}
	return name, value, nil
}
