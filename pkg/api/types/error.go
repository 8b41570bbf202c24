package types

// ErrorResponse is the envelope returned for every API failure.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and the human-readable
// message.
type ErrorDetail struct {
	// Code classifies the failure. One of the Code constants.
	Code string `json:"code"`

	// Message is a concise description safe to show to clients.
	Message string `json:"message"`
}

// Error codes of the task API. Each maps to exactly one HTTP status.
const (
	// CodeValidation indicates client input failed validation (400).
	CodeValidation = "validation"

	// CodeUnauthorized indicates a request guard rejection (401).
	CodeUnauthorized = "unauthorized"

	// CodeForbidden indicates an authorization failure (403).
	CodeForbidden = "forbidden"

	// CodeNotFound indicates an unknown task or job id (404).
	CodeNotFound = "not-found"

	// CodeConflict indicates a status transition the task lifecycle does
	// not permit (409).
	CodeConflict = "conflict"

	// CodeTooManyRequests indicates rate limiting (429).
	CodeTooManyRequests = "too-many-requests"

	// CodeTimeout indicates the request exceeded the handling deadline
	// (504).
	CodeTimeout = "timeout"

	// CodeProvider indicates an LLM or Git remote failure surfaced
	// synchronously (500). Inside the pipeline these retry in the queue
	// instead of reaching clients.
	CodeProvider = "provider"

	// CodeUnknown indicates an unclassified internal failure (500).
	CodeUnknown = "unknown"
)

// NewErrorResponse creates an envelope with the given code and message.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// NewValidationError creates a 400 envelope.
func NewValidationError(message string) *ErrorResponse {
	return NewErrorResponse(CodeValidation, message)
}

// NewNotFoundError creates a 404 envelope.
func NewNotFoundError(message string) *ErrorResponse {
	return NewErrorResponse(CodeNotFound, message)
}

// NewUnauthorizedError creates a 401 envelope.
func NewUnauthorizedError(message string) *ErrorResponse {
	return NewErrorResponse(CodeUnauthorized, message)
}

// NewServerError creates a 500 envelope.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(CodeUnknown, message)
}

// HTTPStatusCode returns the HTTP status for the error code.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Code {
	case CodeValidation:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeConflict:
		return 409
	case CodeTooManyRequests:
		return 429
	case CodeTimeout:
		return 504
	default:
		return 500
	}
}
