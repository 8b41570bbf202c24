package analyzer

import (
	"encoding/json"
	"regexp"
	"strings"

	"forgehq/loom/pkg/pipeline/extract"
	"forgehq/loom/pkg/store"
)

// Parse extracts an Analysis from raw model output. It tries strict
// JSON first, then a JSON object embedded in surrounding prose or a
// code fence, then labeled-section heuristics. Parsing never fails:
// whatever the model left out comes back as empty strings and lists.
func Parse(text string) *Analysis {
	if raw, ok := decodeJSON(text); ok {
		return raw.normalize()
	}
	return parseSections(text)
}

// rawAnalysis mirrors the model's JSON answer, tolerant of list fields
// coming back as either arrays or plain strings.
type rawAnalysis struct {
	Title                  string          `json:"title"`
	Functionality          string          `json:"functionality"`
	Components             json.RawMessage `json:"components"`
	InputsOutputs          string          `json:"inputsOutputs"`
	Dependencies           string          `json:"dependencies"`
	FileStructure          json.RawMessage `json:"fileStructure"`
	ImplementationStrategy string          `json:"implementationStrategy"`
	Priority               string          `json:"priority"`
	Constraints            []rawConstraint `json:"constraints"`
}

type rawConstraint struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// hasContent reports whether the decode recognized any field at all. A
// JSON object carrying none of the expected keys is treated as a parse
// miss so the heuristics get their turn.
func (r *rawAnalysis) hasContent() bool {
	return r.Title != "" || r.Functionality != "" ||
		len(r.Components) > 0 || len(r.FileStructure) > 0 ||
		r.ImplementationStrategy != ""
}

func (r *rawAnalysis) normalize() *Analysis {
	analysis := &Analysis{
		Title:                  strings.TrimSpace(r.Title),
		Functionality:          strings.TrimSpace(r.Functionality),
		Components:             flexList(r.Components),
		InputsOutputs:          strings.TrimSpace(r.InputsOutputs),
		Dependencies:           strings.TrimSpace(r.Dependencies),
		FileStructure:          cleanPaths(flexList(r.FileStructure)),
		ImplementationStrategy: strings.TrimSpace(r.ImplementationStrategy),
		Priority:               NormalizePriority(r.Priority),
	}
	for _, c := range r.Constraints {
		desc := strings.TrimSpace(c.Description)
		if desc == "" && strings.TrimSpace(c.Type) == "" {
			continue
		}
		analysis.Constraints = append(analysis.Constraints, Constraint{
			Type:        NormalizeConstraintType(c.Type),
			Description: desc,
		})
	}
	return fillEmpty(analysis)
}

func decodeJSON(text string) (*rawAnalysis, bool) {
	var raw rawAnalysis
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil && raw.hasContent() {
			return &raw, true
		}
	}

	payload, ok := extract.Object(text)
	if !ok {
		return nil, false
	}
	raw = rawAnalysis{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false
	}
	return &raw, raw.hasContent()
}

// flexList decodes a JSON value that should be a string array but may
// arrive as a single string or a bulleted blob.
func flexList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var items []string
		for _, entry := range list {
			if entry = strings.TrimSpace(entry); entry != "" {
				items = append(items, entry)
			}
		}
		return items
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return splitList(single)
	}
	return nil
}

// Heuristic section extraction. Each regex captures a labeled section
// through to the next known label or the end of the text; every regex
// runs independently against the full response.
const labelPattern = `title|main functionality|components|modules|inputs\s*(?:and|/|&)\s*outputs|dependencies(?:\s+or\s+constraints)?|constraints|file structure|implementation strategy`

var (
	titleRe         = sectionRegexp(`title`)
	functionalityRe = sectionRegexp(`main functionality`)
	componentsRe    = sectionRegexp(`components|modules`)
	inputsRe        = sectionRegexp(`inputs\s*(?:and|/|&)\s*outputs`)
	dependenciesRe  = sectionRegexp(`dependencies(?:\s+or\s+constraints)?|constraints`)
	fileStructureRe = sectionRegexp(`file structure`)
	strategyRe      = sectionRegexp(`implementation strategy`)
)

// sectionRegexp matches one labeled section. Labels tolerate markdown
// headers, list numbering and bold markers around them, and both ASCII
// and fullwidth colons after them.
func sectionRegexp(label string) *regexp.Regexp {
	const decoration = `\s*(?:#+\s*)?(?:\d+[.)]\s*)?(?:\*\*)?`
	return regexp.MustCompile(
		`(?is)(?:^|\n)` + decoration + `(?:` + label + `)(?:\*\*)?\s*[:：]\s*(.*?)\s*` +
			`(?:\n` + decoration + `(?:` + labelPattern + `)(?:\*\*)?\s*[:：]|\z)`,
	)
}

func parseSections(text string) *Analysis {
	return fillEmpty(&Analysis{
		Title:                  firstLine(section(titleRe, text)),
		Functionality:          section(functionalityRe, text),
		Components:             splitList(section(componentsRe, text)),
		InputsOutputs:          section(inputsRe, text),
		Dependencies:           section(dependenciesRe, text),
		FileStructure:          cleanPaths(splitList(section(fileStructureRe, text))),
		ImplementationStrategy: section(strategyRe, text),
		Priority:               store.PriorityMedium,
	})
}

func section(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// fillEmpty guarantees the list fields are non-nil so they serialize as
// [] rather than null in stored diagnostics.
func fillEmpty(analysis *Analysis) *Analysis {
	if analysis.Components == nil {
		analysis.Components = []string{}
	}
	if analysis.FileStructure == nil {
		analysis.FileStructure = []string{}
	}
	return analysis
}

var numberedItemRe = regexp.MustCompile(`\n\s*\d+\.\s+`)

// splitList breaks a free-text block into list items. Numbered lists
// split on the numbering; anything else splits on lines with bullet
// markers stripped.
func splitList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	if numberedItemRe.MatchString("\n" + text) {
		parts = numberedItemRe.Split("\n"+text, -1)
	} else {
		parts = strings.Split(text, "\n")
	}

	var items []string
	for _, part := range parts {
		item := strings.TrimSpace(part)
		item = strings.TrimLeft(item, "-*•")
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// cleanPaths normalizes file-structure entries to bare relative paths:
// markdown decorations and trailing descriptions are stripped, and
// entries that do not survive as plausible relative paths are dropped.
func cleanPaths(entries []string) []string {
	var paths []string
	for _, entry := range entries {
		p := strings.Trim(entry, "`'\" \t")
		if i := strings.IndexAny(p, " \t"); i > 0 {
			p = p[:i]
		}
		p = strings.Trim(p, "`:,")
		p = strings.ReplaceAll(p, "\\", "/")
		p = strings.TrimPrefix(p, "./")
		p = strings.TrimPrefix(p, "/")
		if p == "" || strings.Contains(p, "..") {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// priorityTokens maps substrings, English and Chinese, onto the task
// priority scale. The first match wins, so the specific tokens come
// before the general ones.
var priorityTokens = []struct {
	token    string
	priority store.Priority
}{
	{"critical", store.PriorityCritical},
	{"urgent", store.PriorityCritical},
	{"紧急", store.PriorityCritical},
	{"关键", store.PriorityCritical},
	{"high", store.PriorityHigh},
	{"高", store.PriorityHigh},
	{"low", store.PriorityLow},
	{"低", store.PriorityLow},
	{"medium", store.PriorityMedium},
	{"normal", store.PriorityMedium},
	{"中", store.PriorityMedium},
}

// NormalizePriority maps free-form priority text onto the task
// priority scale. Unrecognized values are medium.
func NormalizePriority(s string) store.Priority {
	lowered := strings.ToLower(strings.TrimSpace(s))
	for _, entry := range priorityTokens {
		if strings.Contains(lowered, entry.token) {
			return entry.priority
		}
	}
	return store.PriorityMedium
}

var constraintTokens = []struct {
	token string
	ctype ConstraintType
}{
	{"security", ConstraintSecurity},
	{"安全", ConstraintSecurity},
	{"business", ConstraintBusiness},
	{"业务", ConstraintBusiness},
	{"商业", ConstraintBusiness},
	{"technical", ConstraintTechnical},
	{"技术", ConstraintTechnical},
}

// NormalizeConstraintType maps free-form constraint categories onto the
// known constraint types. Unrecognized values are technical.
func NormalizeConstraintType(s string) ConstraintType {
	lowered := strings.ToLower(strings.TrimSpace(s))
	for _, entry := range constraintTokens {
		if strings.Contains(lowered, entry.token) {
			return entry.ctype
		}
	}
	return ConstraintTechnical
}
