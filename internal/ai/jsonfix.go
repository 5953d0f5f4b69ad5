// jsonfix.go - Cleanup of model output before JSON parsing

package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSON strips a markdown code fence and repairs the escaping mistakes
// models commonly make inside string values. The result is not guaranteed
// to be valid JSON.
func CleanJSON(raw string) string {
	s := stripFence(raw)
	if json.Valid([]byte(s)) {
		return s
	}

	fixed := repairEscapes(s)
	if json.Valid([]byte(fixed)) {
		return fixed
	}

	// prose around the object
	if start, end := strings.IndexByte(fixed, '{'), strings.LastIndexByte(fixed, '}'); start >= 0 && end > start {
		if inner := fixed[start : end+1]; json.Valid([]byte(inner)) {
			return inner
		}
	}
	return fixed
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairEscapes walks the text once, tracking whether it is inside a string
// literal, and escapes raw control characters and stray backslashes there.
func repairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			b.WriteByte(ch)
			continue
		}

		switch {
		case ch == '\\':
			if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
				b.WriteByte(ch)
				b.WriteByte(s[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		case ch == '"':
			inString = false
			b.WriteByte(ch)
		case ch == '\n':
			b.WriteString(`\n`)
		case ch == '\r':
			b.WriteString(`\r`)
		case ch == '\t':
			b.WriteString(`\t`)
		case ch < 0x20:
			b.WriteString(fmt.Sprintf(`\u%04x`, ch))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
