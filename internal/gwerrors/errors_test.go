package gwerrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONBaseError(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrCircuitOpen.WriteJSON(rec)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	if cc := rec.Header().Get("Connection"); cc != "close" {
		t.Errorf("expected Connection: close, got %q", cc)
	}

	var body GatewayError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Code != http.StatusServiceUnavailable || body.Message != "Service Unavailable" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestWriteJSONWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrUnauthorized.WithDetails("Missing or Malformed Authorization Header").
		WithRequestID("req-1").
		WriteJSON(rec)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	var body GatewayError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Details != "Missing or Malformed Authorization Header" {
		t.Errorf("unexpected details: %q", body.Details)
	}
	if body.RequestID != "req-1" {
		t.Errorf("unexpected request id: %q", body.RequestID)
	}
}

func TestWithDetailsDoesNotMutateBase(t *testing.T) {
	derived := ErrBadGateway.WithDetails("connection reset")
	if ErrBadGateway.Details != "" {
		t.Error("base error mutated by WithDetails")
	}
	if derived == ErrBadGateway {
		t.Error("WithDetails returned the base singleton")
	}
}

func TestStatusContract(t *testing.T) {
	tests := []struct {
		err  *GatewayError
		code int
	}{
		{ErrBadRequest, 400},
		{ErrRouteNotFound, 400},
		{ErrUnauthorized, 401},
		{ErrRateLimited, 429},
		{ErrBadGateway, 502},
		{ErrCircuitOpen, 503},
		{ErrServiceUnavailable, 503},
		{ErrGatewayTimeout, 504},
		{ErrAuthConfigMissing, 511},
		{ErrInternal, 500},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.code {
			t.Errorf("%s: expected code %d, got %d", tt.err.Message, tt.code, tt.err.Code)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(cause, http.StatusServiceUnavailable, "Service Unavailable")

	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to unwrap to cause")
	}
	if wrapped.Error() != "Service Unavailable: dial tcp: connection refused" {
		t.Errorf("unexpected Error(): %s", wrapped.Error())
	}
}
