// Package errors defines relay error types with educational messages.
// Every error includes a Hint for operator guidance and a DocsURL for reference.
package errors

import (
	stderrors "errors"
	"fmt"
)

// RelayError is the transport-facing error type. Code is the HTTP status
// the error maps to.
type RelayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	DocsURL string `json:"docs_url,omitempty"`
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("[%d] %s (hint: %s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Predefined errors. Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrAuthRequired         = &RelayError{Code: 401, Message: "Authentication required", Hint: "Set Authorization header: 'Bearer <token>'", DocsURL: "https://skillrelay.dev/docs/auth"}
	ErrAuthInvalid          = &RelayError{Code: 401, Message: "Invalid authentication token", Hint: "Check token expiry, issuer and audience (bot app id)", DocsURL: "https://skillrelay.dev/docs/auth"}
	ErrForbidden            = &RelayError{Code: 403, Message: "Access denied", Hint: "The caller is not allowed to use this skill conversation", DocsURL: "https://skillrelay.dev/docs/auth"}
	ErrInvalidActivity      = &RelayError{Code: 400, Message: "Invalid activity", Hint: "Body must be a JSON activity with type, conversation and serviceUrl", DocsURL: "https://skillrelay.dev/docs/activities"}
	ErrInvalidArgument      = &RelayError{Code: 400, Message: "Invalid argument", Hint: "A required value was missing or empty", DocsURL: "https://skillrelay.dev/docs/activities"}
	ErrConversationNotFound = &RelayError{Code: 404, Message: "Skill conversation not found", Hint: "The conversation id was never minted or has ended (endOfConversation deletes it)", DocsURL: "https://skillrelay.dev/docs/skills"}
	ErrSkillNotFound        = &RelayError{Code: 404, Message: "Skill not registered", Hint: "Add the skill under skills.channels in skillrelay.yaml", DocsURL: "https://skillrelay.dev/docs/skills"}
	ErrNotImplemented       = &RelayError{Code: 501, Message: "Operation not supported", Hint: "Skills may only send, reply, update, delete and read members", DocsURL: "https://skillrelay.dev/docs/skills"}
	ErrRateLimited          = &RelayError{Code: 429, Message: "Rate limit exceeded", Hint: "Wait before retrying. Configure listen.global_rate_limit in skillrelay.yaml", DocsURL: "https://skillrelay.dev/docs/limits"}
	ErrGlobalLimitReached   = &RelayError{Code: 503, Message: "Relay capacity reached", Hint: "Relay is at maximum connections. Try again shortly", DocsURL: "https://skillrelay.dev/docs/limits"}
	ErrBodyTooLarge         = &RelayError{Code: 413, Message: "Request body too large", Hint: "Configure listen.max_body_size in skillrelay.yaml", DocsURL: "https://skillrelay.dev/docs/limits"}
	ErrUpstreamUnavailable  = &RelayError{Code: 502, Message: "Upstream service unavailable", Hint: "Check the channel service or skill endpoint with GET /readyz", DocsURL: "https://skillrelay.dev/docs/skills"}
)

// AsRelayError finds the first RelayError in err's chain.
func AsRelayError(err error) (*RelayError, bool) {
	var re *RelayError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}
