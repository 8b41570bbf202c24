// Package openai implements the openai-chat protocol adapter.
//
// It speaks the OpenAI-compatible chat completions API: POST
// {base_url}/chat/completions with a messages array, bearer
// authentication, and the completion text in
// choices[0].message.content.
//
// The adapter also serves OpenAI-compatible local runtimes. The sentinel
// credential "ollama" suppresses the Authorization header for endpoints
// that do not check one.
package openai
