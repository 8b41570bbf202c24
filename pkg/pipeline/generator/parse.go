package generator

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"forgehq/loom/pkg/pipeline/extract"
)

// ParseFiles extracts a path→content artifact from raw model output.
// It tries, in order: a JSON object of files, fenced code blocks with
// path headers, and markdown headers naming files paired against the
// fence sequence. The result is never nil; unusable output yields an
// empty artifact.
func ParseFiles(text string) map[string]string {
	if files := parseJSONFiles(text); len(files) > 0 {
		return files
	}
	if files := parsePathFences(text); len(files) > 0 {
		return files
	}
	if files := parseHeaderFences(text); len(files) > 0 {
		return files
	}
	return map[string]string{}
}

// parseJSONFiles decodes a direct {"path": "content"} object, or the
// same shape wrapped in a "files" key.
func parseJSONFiles(text string) map[string]string {
	payload, ok := extract.Object(text)
	if !ok {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}
	if inner, ok := raw["files"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			raw = nested
		}
	}

	files := make(map[string]string, len(raw))
	for key, value := range raw {
		var content string
		if err := json.Unmarshal(value, &content); err != nil {
			continue
		}
		if p := cleanPath(key); p != "" {
			files[p] = content
		}
	}
	return files
}

// parsePathFences collects fenced blocks whose info string or first
// line names a file.
func parsePathFences(text string) map[string]string {
	files := map[string]string{}
	for _, fence := range extract.Fences(text) {
		if p := pathFromInfo(fence.Info); p != "" {
			files[p] = fence.Body
			continue
		}

		lines := strings.SplitN(fence.Body, "\n", 2)
		if p := pathFromComment(lines[0]); p != "" {
			body := ""
			if len(lines) == 2 {
				body = lines[1]
			}
			files[p] = body
		}
	}
	return files
}

var headerRe = regexp.MustCompile(`^#{1,3}\s+(.+?)\s*$`)

// parseHeaderFences pairs markdown headers (# through ###) naming a
// file against the sequence of fenced blocks, in document order.
// Header lines inside fences do not count.
func parseHeaderFences(text string) map[string]string {
	var paths []string
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		header := strings.Trim(m[1], "`*")
		if p := cleanPath(header); p != "" && plausiblePath(p) {
			paths = append(paths, p)
		}
	}

	fences := extract.Fences(text)
	files := map[string]string{}
	for i, p := range paths {
		if i >= len(fences) {
			break
		}
		files[p] = fences[i].Body
	}
	return files
}

// pathFromInfo treats a fence info string like "src/app.ts" or
// "ts src/app.ts" as a file path. Plain language tags do not qualify.
func pathFromInfo(info string) string {
	for _, field := range strings.Fields(info) {
		if p := cleanPath(field); p != "" && plausiblePath(p) {
			return p
		}
	}
	return ""
}

// commentMarkers are stripped from a fence's first line before testing
// it as a path header.
var commentMarkers = []string{"//", "#", ";", "--", "/*", "*/", "<!--", "-->"}

// pathFromComment extracts a path from a first line like
// "// src/app.ts" or "<!-- index.html -->". Ordinary code lines come
// back empty.
func pathFromComment(line string) string {
	line = strings.TrimSpace(line)
	for changed := true; changed; {
		changed = false
		for _, marker := range commentMarkers {
			if strings.HasPrefix(line, marker) {
				line = strings.TrimSpace(strings.TrimPrefix(line, marker))
				changed = true
			}
			if strings.HasSuffix(line, marker) {
				line = strings.TrimSpace(strings.TrimSuffix(line, marker))
				changed = true
			}
		}
	}
	if line == "" || strings.ContainsAny(line, " \t") {
		return ""
	}
	p := cleanPath(line)
	if p == "" || !plausiblePath(p) {
		return ""
	}
	return p
}

// cleanPath normalizes one artifact path to a safe relative form.
// Empty return means the path is unusable.
func cleanPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "`'\"")
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.Contains(p, "..") {
		return ""
	}
	return p
}

var pathShapeRe = regexp.MustCompile(`^[\w./-]+$`)

// plausiblePath reports whether p looks like a relative file path with
// an extension rather than a stray code line or language tag.
func plausiblePath(p string) bool {
	if !pathShapeRe.MatchString(p) {
		return false
	}
	base := path.Base(p)
	i := strings.LastIndexByte(base, '.')
	return i > 0 && i < len(base)-1
}
