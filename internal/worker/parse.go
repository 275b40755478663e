package worker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ParseStructured parses a worker's raw textual response into T, trying
// three strategies in order: a direct parse of the whole response, the
// first fenced ```json block, and the first balanced {...} substring. The
// first strategy that parses cleanly wins.
func ParseStructured[T any](response string) (T, error) {
	var result T

	if err := json.Unmarshal([]byte(response), &result); err == nil {
		return result, nil
	}

	if m := fencedJSONBlock.FindStringSubmatch(response); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &result); err == nil {
			return result, nil
		}
	}

	if block, ok := balancedBraceSubstring(response); ok {
		if err := json.Unmarshal([]byte(block), &result); err == nil {
			return result, nil
		}
	}

	excerpt := response
	if len(excerpt) > 512 {
		excerpt = excerpt[:512]
	}
	var zero T
	return zero, fmt.Errorf("%w: %s", ErrMalformedResponse, excerpt)
}

// balancedBraceSubstring returns the first top-level balanced {...}
// substring of s, ignoring braces that occur inside string literals.
func balancedBraceSubstring(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
