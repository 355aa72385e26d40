package gateway

import (
	"encoding/json"
	"fmt"
)

// Error describes a failed gateway call. Kind is one of the domain sentinels
// (authentication or submission failure) so callers can match with errors.Is.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Body       json.RawMessage
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %s", e.Kind, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Details returns the gateway's raw error body when it sent one, otherwise the
// error text. It is meant for diagnostics in API responses.
func (e *Error) Details() any {
	if len(e.Body) > 0 {
		return e.Body
	}
	return e.Error()
}

type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (a *apiError) describe() string {
	if a == nil {
		return ""
	}
	if a.Message != "" {
		return a.Message
	}
	if a.Code != "" {
		return a.Code
	}
	return a.ErrorType
}

// rawBody keeps the gateway body as JSON when it is JSON, or as a JSON string otherwise.
func rawBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
