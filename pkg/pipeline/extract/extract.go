// Package extract pulls structured payloads out of raw model output.
// Models asked for JSON frequently wrap it in prose or markdown fences;
// the helpers here recover the payload without caring which decoration
// a given model favors.
package extract

import (
	"encoding/json"
	"strings"
)

// Fence is one triple-backtick code block: the info string following
// the opening backticks and the body between the fences.
type Fence struct {
	Info string
	Body string
}

// Fences returns every fenced code block in text, in order of
// appearance. An unterminated fence runs to the end of the text.
func Fences(text string) []Fence {
	var fences []Fence
	var body []string
	var info string
	open := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if open {
				fences = append(fences, Fence{Info: info, Body: strings.Join(body, "\n")})
				open = false
				body = nil
				continue
			}
			open = true
			info = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	if open {
		fences = append(fences, Fence{Info: info, Body: strings.Join(body, "\n")})
	}

	return fences
}

// Object returns the first valid JSON object found in text. It tries,
// in order: the trimmed text as a whole, the body of each fenced code
// block, and balanced brace substrings of the raw text.
func Object(text string) ([]byte, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return []byte(trimmed), true
	}

	for _, fence := range Fences(text) {
		body := strings.TrimSpace(fence.Body)
		if strings.HasPrefix(body, "{") && json.Valid([]byte(body)) {
			return []byte(body), true
		}
	}

	return braceObject(text)
}

// braceObject scans text for balanced {...} substrings and returns the
// first one that is valid JSON.
func braceObject(text string) ([]byte, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end, ok := matchBrace(text, start); ok {
			candidate := []byte(text[start : end+1])
			if json.Valid(candidate) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start.
// Braces inside JSON string literals do not count.
func matchBrace(text string, start int) (int, bool) {
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
				return i, true
			}
		}
	}
	return 0, false
}
