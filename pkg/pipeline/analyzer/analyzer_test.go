package analyzer

import (
	"context"
	"strings"
	"testing"

	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/providers/providertest"
	"forgehq/loom/pkg/store"
)

const analysisJSON = `{
	"title": "User login form",
	"functionality": "Authenticate users",
	"components": ["LoginForm"],
	"inputsOutputs": "credentials in, session out",
	"dependencies": "none",
	"fileStructure": ["src/login.ts"],
	"implementationStrategy": "form, then validation",
	"priority": "high",
	"constraints": []
}`

func TestAnalyzer_Analyze(t *testing.T) {
	fake := providertest.New("main", providers.ProtocolOpenAIChat).Respond(analysisJSON)
	a := New(providertest.Registry(t, fake), Config{})

	result, err := a.Analyze(context.Background(), Request{
		RequirementText:   "Users must be able to log in with email and password",
		Language:          store.LanguageTypeScript,
		AdditionalContext: "existing design system in place",
	})
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	if result.Provider != "main" {
		t.Errorf("expected provider main, got %q", result.Provider)
	}
	if result.Model != "main-model" {
		t.Errorf("expected model main-model, got %q", result.Model)
	}
	if result.Analysis.Title != "User login form" {
		t.Errorf("unexpected title: %q", result.Analysis.Title)
	}
	if result.Analysis.Priority != store.PriorityHigh {
		t.Errorf("expected priority high, got %q", result.Analysis.Priority)
	}

	req := fake.LastRequest()
	if req == nil {
		t.Fatal("expected a recorded request")
	}
	if !strings.Contains(req.Prompt, "log in with email and password") {
		t.Error("expected requirement text in prompt")
	}
	if !strings.Contains(req.Prompt, "typescript") {
		t.Error("expected target language in prompt")
	}
	if !strings.Contains(req.Prompt, "existing design system") {
		t.Error("expected additional context in prompt")
	}
	if req.Temperature != DefaultTemperature {
		t.Errorf("expected temperature %v, got %v", DefaultTemperature, req.Temperature)
	}
	if req.System == "" {
		t.Error("expected a system prompt")
	}
}

func TestAnalyzer_TemplateContentInPrompt(t *testing.T) {
	fake := providertest.New("main", providers.ProtocolOpenAIChat).Respond(analysisJSON)
	a := New(providertest.Registry(t, fake), Config{})

	_, err := a.Analyze(context.Background(), Request{
		RequirementText: "Add a settings page",
		Language:        store.LanguageTypeScript,
		TemplateContent: "export const Page = () => {}",
	})
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	if !strings.Contains(fake.LastRequest().Prompt, "export const Page = () => {}") {
		t.Error("expected template content in prompt")
	}
}

func TestAnalyzer_RoutesToConfiguredProvider(t *testing.T) {
	def := providertest.New("default", providers.ProtocolOpenAIChat).Respond(analysisJSON)
	dedicated := providertest.New("analysis", providers.ProtocolAnthropicMessages).Respond(analysisJSON)

	a := New(providertest.Registry(t, def, dedicated), Config{Provider: "analysis"})

	result, err := a.Analyze(context.Background(), Request{
		RequirementText: "Anything",
		Language:        store.LanguagePython,
	})
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}

	if result.Provider != "analysis" {
		t.Errorf("expected configured provider, got %q", result.Provider)
	}
	if def.Calls() != 0 {
		t.Errorf("expected default provider untouched, got %d calls", def.Calls())
	}
}

func TestAnalyzer_FallsBackWhenPreferredFails(t *testing.T) {
	primary := providertest.New("primary", providers.ProtocolOpenAIChat).
		FailWith(&providers.ProviderError{Provider: "primary", StatusCode: 503, Message: "down"})
	backup := providertest.New("backup", providers.ProtocolOllamaGenerate).Respond(analysisJSON)

	a := New(providertest.Registry(t, primary, backup), Config{})

	result, err := a.Analyze(context.Background(), Request{
		RequirementText: "Anything",
		Language:        store.LanguageGo,
	})
	if err != nil {
		t.Fatalf("Analyze() failed: %v", err)
	}
	if result.Provider != "backup" {
		t.Errorf("expected fallback provider, got %q", result.Provider)
	}
}

func TestAnalyzer_AllProvidersFail(t *testing.T) {
	down := providertest.New("down", providers.ProtocolOpenAIChat).
		FailWith(&providers.ProviderError{Provider: "down", StatusCode: 500, Message: "boom"})

	a := New(providertest.Registry(t, down), Config{})

	_, err := a.Analyze(context.Background(), Request{
		RequirementText: "Anything",
		Language:        store.LanguageJava,
	})
	if err == nil {
		t.Fatal("expected error when every provider fails, got nil")
	}
}
