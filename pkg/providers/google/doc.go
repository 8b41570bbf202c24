// Package google implements the google-generate protocol adapter.
//
// It speaks the generateContent API: POST
// {base_url}/models/{model}:generateContent?key={api_key} with the prompt
// in contents[0].parts[0].text and the completion in
// candidates[0].content.parts[0].text. The system message, when present,
// is prepended to the prompt text.
package google
