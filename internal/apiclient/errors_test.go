package apiclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    Kind
		wantMessage string
		wantCorrID  string
		wantPayload bool
	}{
		{
			name:        "gateway payload",
			status:      http.StatusConflict,
			body:        `{"timestamp":"2024-01-01T00:00:00Z","path":"/api/cart/items","errorCode":"OUT_OF_STOCK","message":"not enough stock","correlationId":"corr-srv"}`,
			wantKind:    KindHTTP,
			wantMessage: "not enough stock",
			wantCorrID:  "corr-srv",
			wantPayload: true,
		},
		{
			name:        "error string",
			status:      http.StatusForbidden,
			body:        `{"error":"forbidden"}`,
			wantKind:    KindHTTP,
			wantMessage: "forbidden",
			wantCorrID:  "corr-req",
		},
		{
			name:        "envelope",
			status:      http.StatusBadRequest,
			body:        `{"success":false,"error":{"code":"BAD_REQUEST","message":"quantity must be positive"}}`,
			wantKind:    KindHTTP,
			wantMessage: "quantity must be positive",
			wantCorrID:  "corr-req",
		},
		{
			name:        "validation errors",
			status:      http.StatusBadRequest,
			body:        `{"errors":[{"field":"email","defaultMessage":"must be a well-formed email address"}]}`,
			wantKind:    KindValidation,
			wantMessage: "must be a well-formed email address",
			wantCorrID:  "corr-req",
		},
		{
			name:        "plain text",
			status:      http.StatusConflict,
			body:        `Email already registered`,
			wantKind:    KindHTTP,
			wantMessage: "Email already registered",
			wantCorrID:  "corr-req",
		},
		{
			name:        "empty body",
			status:      http.StatusInternalServerError,
			body:        ``,
			wantKind:    KindHTTP,
			wantMessage: "Internal Server Error",
			wantCorrID:  "corr-req",
		},
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"message":"Invalid refresh token"}`,
			wantKind:    KindUnauthorized,
			wantMessage: "Invalid refresh token",
			wantCorrID:  "corr-req",
			wantPayload: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := parseErrorResponse(&Response{
				StatusCode:    tt.status,
				Header:        http.Header{},
				Body:          []byte(tt.body),
				CorrelationID: "corr-req",
			})

			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCorrID, apiErr.CorrelationID)
			assert.Equal(t, tt.wantPayload, apiErr.Payload != nil)
		})
	}
}

func TestParseErrorResponse_PayloadFields(t *testing.T) {
	apiErr := parseErrorResponse(&Response{
		StatusCode: http.StatusConflict,
		Body:       []byte(`{"timestamp":"t","path":"/p","errorCode":"E1","message":"m","correlationId":"c"}`),
	})

	require.NotNil(t, apiErr.Payload)
	assert.Equal(t, ErrorPayload{Timestamp: "t", Path: "/p", ErrorCode: "E1", Message: "m", CorrelationID: "c"}, *apiErr.Payload)
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		kind     Kind
		sentinel error
	}{
		{KindNetworkUnavailable, ErrNetworkUnavailable},
		{KindHTTP, ErrHTTP},
		{KindUnauthorized, ErrUnauthorized},
		{KindValidation, ErrValidationRejected},
		{KindUnexpected, ErrUnexpected},
	}

	for _, tt := range tests {
		err := error(&APIError{Kind: tt.kind})
		assert.True(t, errors.Is(err, tt.sentinel), "kind %s", tt.kind)
		if tt.sentinel != ErrHTTP {
			assert.False(t, errors.Is(err, ErrHTTP), "kind %s", tt.kind)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Kind: KindHTTP, Status: 409, Message: "conflict", CorrelationID: "abc"}
	assert.Equal(t, "api error [http] status 409: conflict (correlationId=abc)", err.Error())
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(errors.New("plain")))
}
