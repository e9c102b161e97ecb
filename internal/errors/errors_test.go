package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRelayErrorWithHint(t *testing.T) {
	err := &RelayError{Code: 401, Message: "Auth required", Hint: "Use Bearer token"}
	want := "[401] Auth required (hint: Use Bearer token)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRelayErrorWithoutHint(t *testing.T) {
	err := &RelayError{Code: 500, Message: "Internal error"}
	want := "[500] Internal error"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRelayErrorImplementsError(t *testing.T) {
	var _ error = (*RelayError)(nil)
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     *RelayError
		code    int
		wantMsg string
	}{
		{"ErrAuthRequired", ErrAuthRequired, 401, "Authentication required"},
		{"ErrAuthInvalid", ErrAuthInvalid, 401, "Invalid authentication token"},
		{"ErrForbidden", ErrForbidden, 403, "Access denied"},
		{"ErrInvalidActivity", ErrInvalidActivity, 400, "Invalid activity"},
		{"ErrInvalidArgument", ErrInvalidArgument, 400, "Invalid argument"},
		{"ErrConversationNotFound", ErrConversationNotFound, 404, "Skill conversation not found"},
		{"ErrSkillNotFound", ErrSkillNotFound, 404, "Skill not registered"},
		{"ErrNotImplemented", ErrNotImplemented, 501, "Operation not supported"},
		{"ErrRateLimited", ErrRateLimited, 429, "Rate limit exceeded"},
		{"ErrGlobalLimitReached", ErrGlobalLimitReached, 503, "Relay capacity reached"},
		{"ErrBodyTooLarge", ErrBodyTooLarge, 413, "Request body too large"},
		{"ErrUpstreamUnavailable", ErrUpstreamUnavailable, 502, "Upstream service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Hint == "" {
				t.Error("Hint should not be empty for predefined errors")
			}
			if tt.err.DocsURL == "" {
				t.Error("DocsURL should not be empty for predefined errors")
			}
		})
	}
}

func TestRelayErrorJSONOmitsEmptyHint(t *testing.T) {
	data, err := json.Marshal(&RelayError{Code: 500, Message: "Error"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, exists := raw["hint"]; exists {
		t.Error("expected 'hint' to be omitted when empty")
	}
	if _, exists := raw["docs_url"]; exists {
		t.Error("expected 'docs_url' to be omitted when empty")
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	err := fmt.Errorf("%w: conversation id is empty", ErrInvalidArgument)
	if !stderrors.Is(err, ErrInvalidArgument) {
		t.Error("errors.Is failed through wrapping")
	}
	re, ok := AsRelayError(fmt.Errorf("outer: %w", err))
	if !ok || re != ErrInvalidArgument {
		t.Errorf("AsRelayError() = %v, %v", re, ok)
	}
	if _, ok := AsRelayError(stderrors.New("plain")); ok {
		t.Error("AsRelayError matched a plain error")
	}
}

func TestWriteHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        *RelayError
		wantStatus int
	}{
		{"401 error", ErrAuthRequired, 401},
		{"404 error", ErrConversationNotFound, 404},
		{"429 error", ErrRateLimited, 429},
		{"501 error", ErrNotImplemented, 501},
		{"400 error", ErrInvalidActivity, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteHTTPError(rec, tt.err)

			resp := rec.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			var body HTTPErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if body.Error.Code != tt.err.Code {
				t.Errorf("body.Error.Code = %d, want %d", body.Error.Code, tt.err.Code)
			}
			if body.Error.Message != tt.err.Message {
				t.Errorf("body.Error.Message = %q, want %q", body.Error.Message, tt.err.Message)
			}
			if body.Error.Hint != tt.err.Hint {
				t.Errorf("body.Error.Hint = %q, want %q", body.Error.Hint, tt.err.Hint)
			}
		})
	}
}

func TestWriteHTTPErrorJSONBodyStructure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, ErrRateLimited)

	var raw map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	errObj, ok := raw["error"].(map[string]interface{})
	if !ok {
		t.Fatal("response should have 'error' object at top level")
	}
	for _, field := range []string{"code", "message", "hint", "docs_url"} {
		if _, exists := errObj[field]; !exists {
			t.Errorf("error object missing field %q", field)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("%w: id abc", ErrConversationNotFound))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, stderrors.New("database password is hunter2"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", rec.Code)
	}
	var body HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Error.Message != "Internal error" {
		t.Errorf("Message = %q, internal details must not leak", body.Error.Message)
	}
}
