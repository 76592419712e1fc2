// Package wirelog scrubs protocol payloads before they reach the logs.
// Frames carry plaintext passwords and match tokens; log sinks must never.
package wirelog

import (
	"bytes"
	"fmt"
	"strings"
)

// maxLogged bounds how much of one payload lands in a log line.
const maxLogged = 240

var secretKeys = [...]string{"pass=", "password=", "token=", "auth=", "secret="}

// Sanitize returns a log-safe copy of payload: secret key=value values and
// REGISTER/LOGIN positional passwords are masked with '*', and anything past
// 240 bytes is truncated with the original length noted.
func Sanitize(payload string) string {
	b := []byte(payload)
	maskPositional(b)
	maskKeyed(b)

	if len(b) > maxLogged {
		return fmt.Sprintf("%s...(%d bytes)", b[:maxLogged], len(payload))
	}
	return string(b)
}

// maskKeyed overwrites the value of every secret key=value token in place.
func maskKeyed(b []byte) {
	for _, key := range secretKeys {
		off := 0
		for {
			i := bytes.Index(b[off:], []byte(key))
			if i < 0 {
				break
			}
			j := off + i + len(key)
			for j < len(b) && b[j] != ' ' {
				b[j] = '*'
				j++
			}
			off = j
		}
	}
}

// maskPositional hides everything after the username in REGISTER/LOGIN lines,
// where the password is positional rather than key=value.
func maskPositional(b []byte) {
	s := string(b)
	if !strings.HasPrefix(s, "REGISTER ") && !strings.HasPrefix(s, "LOGIN ") {
		return
	}

	first := strings.IndexByte(s, ' ')
	second := strings.IndexByte(s[first+1:], ' ')
	if second < 0 {
		return
	}
	for j := first + 1 + second + 1; j < len(b); j++ {
		if b[j] != ' ' {
			b[j] = '*'
		}
	}
}
