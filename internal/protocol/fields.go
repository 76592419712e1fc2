package protocol

import (
	"strconv"
	"strings"
)

// Fields holds the key=value arguments of a command or reply body.
type Fields map[string]string

// ParseFields extracts key=value tokens from s.
// Tokens without '=' are skipped; a duplicate key keeps the last value.
func ParseFields(s string) Fields {
	f := Fields{}
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		f[k] = v
	}
	return f
}

// Int returns the field parsed as a decimal integer.
// The second result is false when the field is absent or malformed.
func (f Fields) Int(key string) (int, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsOK reports whether a reply line carries the OK status.
func IsOK(reply string) bool {
	return reply == "OK" || strings.HasPrefix(reply, "OK ")
}

// OKFields parses the key=value payload of an OK reply.
// Returns nil, false for ERR replies and anything else.
func OKFields(reply string) (Fields, bool) {
	if !IsOK(reply) {
		return nil, false
	}
	return ParseFields(strings.TrimPrefix(reply, "OK")), true
}

// ErrKind returns the error kind of an ERR reply, or "" for any other line.
func ErrKind(reply string) string {
	rest, ok := strings.CutPrefix(reply, "ERR ")
	if !ok {
		return ""
	}
	kind, _, _ := strings.Cut(rest, " ")
	return kind
}
