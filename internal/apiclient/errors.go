package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an APIError
type Kind string

const (
	// KindNetworkUnavailable means no response was received at all
	KindNetworkUnavailable Kind = "network_unavailable"
	// KindHTTP is a non-2xx response with a parsed body
	KindHTTP Kind = "http"
	// KindUnauthorized is a 401 that re-authentication could not resolve
	KindUnauthorized Kind = "unauthorized"
	// KindValidation is a 4xx carrying field-level messages
	KindValidation Kind = "validation_rejected"
	// KindUnexpected covers everything else, such as undecodable bodies
	KindUnexpected Kind = "unexpected"
)

// Sentinel errors for use with errors.Is().
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrHTTP               = errors.New("http error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidationRejected = errors.New("validation rejected")
	ErrUnexpected         = errors.New("unexpected api error")
)

var kindSentinels = map[Kind]error{
	KindNetworkUnavailable: ErrNetworkUnavailable,
	KindHTTP:               ErrHTTP,
	KindUnauthorized:       ErrUnauthorized,
	KindValidation:         ErrValidationRejected,
	KindUnexpected:         ErrUnexpected,
}

// ErrorPayload is the gateway's standard error body. It is only populated
// when the body carried a string message.
type ErrorPayload struct {
	Timestamp     string `json:"timestamp"`
	Path          string `json:"path"`
	ErrorCode     string `json:"errorCode,omitempty"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// FieldError is one field-level validation message
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// APIError is the single error type surfaced by the request pipeline.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	// CorrelationID identifies the exchange in backend logs, when known
	CorrelationID string
	Payload       *ErrorPayload
	FieldErrors   []FieldError
	// Err is the underlying cause: a transport error, a decode error, or
	// the failure of the retry issued after re-authentication.
	Err error
}

// Error returns a human-readable description of the failure.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "api error [%s]", e.Kind)
	if e.Status > 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.CorrelationID != "" {
		fmt.Fprintf(&b, " (correlationId=%s)", e.CorrelationID)
	}
	if e.Err != nil && e.Kind == KindNetworkUnavailable {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is supports errors.Is against the kind sentinels.
func (e *APIError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// AsAPIError extracts an *APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Status
	}
	return 0
}

func networkError(correlationID string, err error) *APIError {
	return &APIError{
		Kind:          KindNetworkUnavailable,
		Message:       "backend unreachable",
		CorrelationID: correlationID,
		Err:           err,
	}
}

// parseErrorResponse classifies a non-2xx response. The message is taken
// from "message", then a string "error", then the gateway envelope
// {"error":{"message"}}, then the first validation message, then the raw
// text, then the status text.
func parseErrorResponse(resp *Response) *APIError {
	text := string(resp.Body)
	apiErr := &APIError{
		Kind:          KindHTTP,
		Status:        resp.StatusCode,
		CorrelationID: resp.CorrelationID,
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body != nil {
		msg, _ := body["message"].(string)
		errorCode, _ := body["errorCode"].(string)

		if msg == "" {
			if s, ok := body["error"].(string); ok {
				msg = s
			}
		}
		if envelope, ok := body["error"].(map[string]interface{}); ok {
			if msg == "" {
				msg, _ = envelope["message"].(string)
			}
			if errorCode == "" {
				errorCode, _ = envelope["code"].(string)
			}
		}

		apiErr.FieldErrors = fieldErrors(body["errors"])
		if msg == "" && len(apiErr.FieldErrors) > 0 {
			msg = apiErr.FieldErrors[0].Message
		}

		if m, ok := body["message"].(string); ok {
			p := &ErrorPayload{
				Message:   m,
				ErrorCode: errorCode,
			}
			p.Timestamp, _ = body["timestamp"].(string)
			p.Path, _ = body["path"].(string)
			p.CorrelationID, _ = body["correlationId"].(string)
			apiErr.Payload = p
		}
		if id, ok := body["correlationId"].(string); ok && id != "" {
			apiErr.CorrelationID = id
		}

		apiErr.Message = msg
	}

	if apiErr.Message == "" {
		apiErr.Message = text
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = KindUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && len(apiErr.FieldErrors) > 0:
		apiErr.Kind = KindValidation
	}

	return apiErr
}

func fieldErrors(v interface{}) []FieldError {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var out []FieldError
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if t != "" {
				out = append(out, FieldError{Message: t})
			}
		case map[string]interface{}:
			fe := FieldError{}
			fe.Field, _ = t["field"].(string)
			fe.Message, _ = t["defaultMessage"].(string)
			if fe.Message == "" {
				fe.Message, _ = t["message"].(string)
			}
			if fe.Message != "" {
				out = append(out, fe)
			}
		}
	}
	return out
}
