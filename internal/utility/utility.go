package utility

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// GenerateSecureToken returns length random bytes, hex encoded.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ExtractJSON pulls the first JSON object embedded in completion text. The
// model sometimes wraps its JSON in a markdown fence or surrounds it with
// prose, so fenced blocks are tried first, then the first balanced object.
func ExtractJSON(text string) (json.RawMessage, bool) {
	if fenced, ok := extractFenced(text); ok {
		return fenced, true
	}
	return extractBalanced(text)
}

func extractFenced(text string) (json.RawMessage, bool) {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(text, fence)
		if start < 0 {
			continue
		}
		rest := text[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

// extractBalanced scans for the first brace-balanced object, ignoring braces
// inside string literals.
func extractBalanced(text string) (json.RawMessage, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
