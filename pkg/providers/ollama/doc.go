// Package ollama implements the Provider interface for the native Ollama
// generate API.
//
// The adapter targets POST {base_url}/api/generate with streaming disabled
// and reads the completed text from the "response" field. Ollama has no
// concept of a separate system message on this endpoint, so any system
// prompt is prepended to the user prompt with a blank line between them.
// No API key is required; locally hosted runtimes accept unauthenticated
// requests.
package ollama
