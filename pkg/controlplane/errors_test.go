package controlplane

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAPIErrorIsNotFound(t *testing.T) {
	err := newAPIError(http.StatusNotFound, "Not Found", "runner group missing", "")
	if !err.IsNotFound() {
		t.Fatalf("expected IsNotFound to be true")
	}
	if err.IsServerError() {
		t.Fatalf("expected IsServerError to be false")
	}
}

func TestAPIErrorIsServerError(t *testing.T) {
	err := newAPIError(http.StatusBadGateway, "Bad Gateway", "upstream unavailable", "")
	if !err.IsServerError() {
		t.Fatalf("expected IsServerError to be true")
	}
}

func TestAPIErrorIsRateLimited(t *testing.T) {
	err := newAPIError(http.StatusTooManyRequests, "Too Many Requests", "slow down", "")
	if !err.IsRateLimited() {
		t.Fatalf("expected IsRateLimited to be true")
	}
}

func TestIsNotFoundHelperUnwrapsWrappedError(t *testing.T) {
	err := fmt.Errorf("controlplane: %w", newAPIError(http.StatusNotFound, "Not Found", "", ""))
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound to unwrap the wrapped APIError")
	}
}

func TestIsNotFoundHelperFalseForUnrelatedError(t *testing.T) {
	if IsNotFound(fmt.Errorf("some other failure")) {
		t.Fatalf("expected IsNotFound to be false for an unrelated error")
	}
}

func TestAPIErrorMessageIncludesRequestID(t *testing.T) {
	err := newAPIError(http.StatusInternalServerError, "Internal Server Error", "details", "req-123")
	got := err.Error()
	if got == "" {
		t.Fatalf("expected a non-empty error message")
	}
	if !strings.Contains(got, "req-123") {
		t.Fatalf("expected the message to include the request ID, got %q", got)
	}
}
