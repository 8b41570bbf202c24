package quality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"forgehq/loom/pkg/pipeline/analyzer"
	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/providers/providertest"
	"forgehq/loom/pkg/store"
)

const rubricJSON = `{
	"totalScore": 90,
	"scores": {"correctness": 28, "completeness": 22, "codeQuality": 23, "errorHandling": 9, "security": 8},
	"feedback": "solid work",
	"issues": ["no input validation on the login route"]
}`

type metricsRecorder struct {
	saved []*store.QualityMetric
}

func (r *metricsRecorder) UpsertMetrics(_ context.Context, metric *store.QualityMetric) error {
	r.saved = append(r.saved, metric)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) UpsertMetrics(context.Context, *store.QualityMetric) error {
	return errors.New("database down")
}

// scriptedFake routes verdict, evaluation and coverage calls by their
// system prompts so one provider can serve a whole check.
func scriptedFake(brokenFile, rubric, coverage string) *providertest.Fake {
	return providertest.New("judge", providers.ProtocolOpenAIChat).
		Handle(func(req *providers.CompletionRequest) (string, error) {
			switch {
			case strings.Contains(req.System, "valid or invalid"):
				if brokenFile != "" && strings.Contains(req.Prompt, brokenFile) {
					return "invalid", nil
				}
				return "valid", nil
			case strings.Contains(req.System, "code reviewer"):
				return rubric, nil
			case strings.Contains(req.System, "covers its stated requirement"):
				return coverage, nil
			}
			return "", fmt.Errorf("unexpected system prompt: %s", req.System)
		})
}

func verdictCalls(fake *providertest.Fake) int {
	n := 0
	for _, req := range fake.Requests() {
		if strings.Contains(req.System, "valid or invalid") {
			n++
		}
	}
	return n
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestChecker_Check_ScoresAndPersists(t *testing.T) {
	fake := scriptedFake("broken.ts", rubricJSON, `{"coverageScore": 80, "reason": "most features present"}`)
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	result, err := checker.Check(context.Background(), Request{
		TaskID: "task-1",
		Analysis: analyzer.Analysis{
			Title:         "Login form",
			Functionality: "authenticate users",
			FileStructure: []string{"src/ok.ts", "src/missing.ts"},
		},
		Language: store.LanguageTypeScript,
		Files: map[string]string{
			"src/ok.ts":     "export const ok = 1;",
			"src/broken.ts": "export const broken =",
			"README.md":     "# readme",
		},
	})
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if !almostEqual(result.SyntaxValidity, 50) {
		t.Errorf("expected syntax validity 50, got %v", result.SyntaxValidity)
	}
	if !almostEqual(result.CodeQuality, 90) {
		t.Errorf("expected code quality 90, got %v", result.CodeQuality)
	}
	// structure coverage 0.5, functional 80
	if !almostEqual(result.RequirementCoverage, 0.3*0.5*100+0.7*80) {
		t.Errorf("expected requirement coverage 71, got %v", result.RequirementCoverage)
	}
	if result.Passed {
		t.Error("expected aggregate below threshold to fail")
	}
	if result.Feedback != "solid work" {
		t.Errorf("unexpected feedback %q", result.Feedback)
	}

	if got := verdictCalls(fake); got != 2 {
		t.Errorf("expected 2 syntax verdict calls, got %d", got)
	}

	if len(recorder.saved) != 1 {
		t.Fatalf("expected exactly one metric row, got %d", len(recorder.saved))
	}
	metric := recorder.saved[0]
	if metric.TaskID != "task-1" {
		t.Errorf("expected metric for task-1, got %q", metric.TaskID)
	}
	if !almostEqual(metric.CodeQuality, 90) || !almostEqual(metric.SyntaxValidity, 50) {
		t.Errorf("metric row scores do not match result: %+v", metric)
	}
	if got, ok := metric.StaticAnalysis["correctness"].(float64); !ok || !almostEqual(got, 28) {
		t.Errorf("expected correctness 28 in static analysis, got %v", metric.StaticAnalysis)
	}
}

func TestChecker_Check_PassesAtThreshold(t *testing.T) {
	// quality 90, coverage 100, syntax 50 aggregates to exactly 85.
	fake := scriptedFake("b.ts", rubricJSON, `{"coverageScore": 100, "reason": "fully covered"}`)
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	result, err := checker.Check(context.Background(), Request{
		TaskID:   "task-2",
		Analysis: analyzer.Analysis{Functionality: "authenticate users"},
		Language: store.LanguageTypeScript,
		Files: map[string]string{
			"src/a.ts": "export const a = 1;",
			"src/b.ts": "export const b =",
		},
	})
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if !result.Passed {
		t.Errorf("expected aggregate of exactly 85 to pass, got quality=%v coverage=%v syntax=%v",
			result.CodeQuality, result.RequirementCoverage, result.SyntaxValidity)
	}
}

func TestChecker_Check_NoCodeFiles(t *testing.T) {
	fake := scriptedFake("", rubricJSON, `{"coverageScore": 70, "reason": "docs only"}`)
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	result, err := checker.Check(context.Background(), Request{
		TaskID:   "task-3",
		Analysis: analyzer.Analysis{Functionality: "document the API"},
		Language: store.LanguageTypeScript,
		Files: map[string]string{
			"README.md":     "# readme",
			"docs/guide.md": "guide",
		},
	})
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if result.SyntaxValidity != 0 {
		t.Errorf("expected syntax validity 0 with no code files, got %v", result.SyntaxValidity)
	}
	if got := verdictCalls(fake); got != 0 {
		t.Errorf("expected no syntax verdict calls, got %d", got)
	}
}

func TestChecker_Check_UnparseableRubric(t *testing.T) {
	prose := "The code looks fine to me, nice work overall."
	fake := scriptedFake("", prose, `{"coverageScore": 100, "reason": "ok"}`)
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	result, err := checker.Check(context.Background(), Request{
		TaskID:   "task-4",
		Analysis: analyzer.Analysis{Functionality: "authenticate users"},
		Language: store.LanguageTypeScript,
		Files:    map[string]string{"src/a.ts": "export const a = 1;"},
	})
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if result.CodeQuality != 0 {
		t.Errorf("expected code quality 0 for unparseable rubric, got %v", result.CodeQuality)
	}
	if result.Feedback != prose {
		t.Errorf("expected raw reply as feedback, got %q", result.Feedback)
	}
	if len(recorder.saved) != 1 || recorder.saved[0].StaticAnalysis != nil {
		t.Errorf("expected one metric row without static analysis, got %+v", recorder.saved)
	}
}

func TestChecker_Check_EvaluationFailure(t *testing.T) {
	fake := providertest.New("judge", providers.ProtocolOpenAIChat).
		Handle(func(req *providers.CompletionRequest) (string, error) {
			if strings.Contains(req.System, "valid or invalid") {
				return "valid", nil
			}
			return "", &providers.ProviderError{Provider: "judge", StatusCode: 500, Message: "overloaded"}
		})
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	_, err := checker.Check(context.Background(), Request{
		TaskID:   "task-5",
		Language: store.LanguageTypeScript,
		Files:    map[string]string{"src/a.ts": "export const a = 1;"},
	})
	if err == nil {
		t.Fatal("expected error when evaluation call fails, got nil")
	}
	if len(recorder.saved) != 0 {
		t.Errorf("expected no metric row after failed check, got %d", len(recorder.saved))
	}
}

func TestChecker_Check_SyntaxCallFailureCountsInvalid(t *testing.T) {
	fake := providertest.New("judge", providers.ProtocolOpenAIChat).
		Handle(func(req *providers.CompletionRequest) (string, error) {
			switch {
			case strings.Contains(req.System, "valid or invalid"):
				return "", &providers.ProviderError{Provider: "judge", StatusCode: 500, Message: "flaky"}
			case strings.Contains(req.System, "code reviewer"):
				return rubricJSON, nil
			}
			return `{"coverageScore": 100, "reason": "ok"}`, nil
		})
	recorder := &metricsRecorder{}
	checker := New(providertest.Registry(t, fake), recorder, Config{})

	result, err := checker.Check(context.Background(), Request{
		TaskID:   "task-6",
		Language: store.LanguageTypeScript,
		Files: map[string]string{
			"src/a.ts": "export const a = 1;",
			"src/b.ts": "export const b = 2;",
		},
	})
	if err != nil {
		t.Fatalf("Check() should tolerate per-file verdict failures: %v", err)
	}
	if result.SyntaxValidity != 0 {
		t.Errorf("expected failed verdict calls to count invalid, got %v", result.SyntaxValidity)
	}
}

func TestChecker_Check_PersistFailure(t *testing.T) {
	fake := scriptedFake("", rubricJSON, `{"coverageScore": 100, "reason": "ok"}`)
	checker := New(providertest.Registry(t, fake), failingRecorder{}, Config{})

	_, err := checker.Check(context.Background(), Request{
		TaskID:   "task-7",
		Language: store.LanguageTypeScript,
		Files:    map[string]string{"src/a.ts": "export const a = 1;"},
	})
	if err == nil {
		t.Fatal("expected error when metrics persist fails, got nil")
	}
	if !strings.Contains(err.Error(), "persisting quality metrics") {
		t.Errorf("expected persist error, got %v", err)
	}
}

func TestStructureCoverage(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		files    map[string]string
		expected float64
	}{
		{
			name:     "no required files scores full",
			required: nil,
			files:    map[string]string{"src/a.ts": ""},
			expected: 1,
		},
		{
			name:     "directories are ignored",
			required: []string{"src/", "docs", "src/utils"},
			files:    map[string]string{},
			expected: 1,
		},
		{
			name:     "exact filename in another directory",
			required: []string{"src/index.ts"},
			files:    map[string]string{"app/index.ts": ""},
			expected: 1,
		},
		{
			name:     "stem containment",
			required: []string{"login.ts"},
			files:    map[string]string{"src/login.controller.ts": ""},
			expected: 1,
		},
		{
			name:     "case insensitive",
			required: []string{"Main.TS"},
			files:    map[string]string{"src/main.ts": ""},
			expected: 1,
		},
		{
			name:     "half matched",
			required: []string{"auth.ts", "payment.ts"},
			files:    map[string]string{"src/auth.ts": ""},
			expected: 0.5,
		},
		{
			name:     "nothing matched",
			required: []string{"auth.ts"},
			files:    map[string]string{"src/payment.ts": ""},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := structureCoverage(tt.required, tt.files); !almostEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"valid", true},
		{"Valid.", true},
		{"  VALID  ", true},
		{"This file is valid TypeScript.", true},
		{"invalid", false},
		{"The syntax is invalid because of a missing brace.", false},
		{"maybe", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := parseVerdict(tt.text); got != tt.expected {
			t.Errorf("parseVerdict(%q): expected %v, got %v", tt.text, tt.expected, got)
		}
	}
}

func TestTruncatedCorpus(t *testing.T) {
	long := strings.Repeat("x", 2*maxFileChars)
	corpus := truncatedCorpus(map[string]string{"src/big.ts": long})

	if !strings.Contains(corpus, "... (truncated)") {
		t.Error("expected oversized file to be truncated")
	}
	if len(corpus) > maxFileChars+200 {
		t.Errorf("expected corpus near the per-file cap, got %d chars", len(corpus))
	}

	files := map[string]string{}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("src/f%02d.ts", i)] = strings.Repeat("y", maxFileChars)
	}
	corpus = truncatedCorpus(files)
	if !strings.Contains(corpus, "... (remaining files omitted)") {
		t.Error("expected corpus cap to omit trailing files")
	}
}
