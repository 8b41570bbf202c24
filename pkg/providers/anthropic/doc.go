// Package anthropic implements the anthropic-messages protocol adapter.
//
// It speaks the Anthropic Messages API: POST {base_url}/v1/messages with
// x-api-key and anthropic-version headers, the system prompt as a
// top-level field, and the completion text in content[0].text.
package anthropic
