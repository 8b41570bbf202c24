// Package providers defines the uniform LLM provider contract and the
// registry that routes completion calls across heterogeneous backends.
//
// # Overview
//
// Every configured backend — an OpenAI-compatible chat endpoint, an
// Anthropic messages endpoint, a Google generative endpoint, or a local
// Ollama instance — is wrapped by an adapter implementing the Provider
// interface. Adapters embed HTTPProvider, which supplies connection
// pooling, retry with exponential backoff, typed error classification,
// and health tracking.
//
// The Registry indexes adapters by name and exposes the two call paths
// the pipeline uses:
//
//	reg, _ := providers.NewRegistry(providers.RegistryOptions{
//	    Providers:       []providers.Provider{openaiP, ollamaP},
//	    FallbackOrder:   []string{"openai", "llama3"},
//	    DefaultProvider: "openai",
//	})
//
//	// Route to the default provider, falling back on failure.
//	res, err := reg.Call(ctx, prompt, system, providers.CallOptions{})
//
//	// Walk the fallback chain explicitly.
//	res, err = reg.CallWithFallback(ctx, prompt, system, providers.CallOptions{})
//
// # Error semantics
//
// Transport failures and non-2xx statuses surface as retryable errors
// (ProviderError, TimeoutError, RateLimitError); a response body missing
// the expected field surfaces as a non-retryable ParseError. IsRetryable
// reports the class of a given error so callers can decide whether to
// retry, fall back, or fail permanently.
package providers
