package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeHelpers(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		transport bool
		format    bool
		lookup    bool
		config    bool
	}{
		{"transport", Transport("openai", 500, "oops", base), true, false, false, false},
		{"wrapped transport", fmt.Errorf("classify: %w", Transport("vertex", 0, "", base)), true, false, false, false},
		{"format", Format("no object", nil), false, true, false, false},
		{"lookup", Lookup("Work", base), false, false, true, false},
		{"config", ConfigError("missing"), false, false, false, true},
		{"plain", base, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.transport {
				t.Errorf("IsTransport() = %v, want %v", got, tt.transport)
			}
			if got := IsFormat(tt.err); got != tt.format {
				t.Errorf("IsFormat() = %v, want %v", got, tt.format)
			}
			if got := IsLookup(tt.err); got != tt.lookup {
				t.Errorf("IsLookup() = %v, want %v", got, tt.lookup)
			}
			if got := IsConfig(tt.err); got != tt.config {
				t.Errorf("IsConfig() = %v, want %v", got, tt.config)
			}
		})
	}
}

func TestTransportDetails(t *testing.T) {
	err := Transport("openai", 503, "unavailable", nil)
	if err.Details["status"] != 503 {
		t.Errorf("status detail = %v, want 503", err.Details["status"])
	}
	if GetHTTPStatus(err) != http.StatusBadGateway {
		t.Errorf("GetHTTPStatus() = %d, want %d", GetHTTPStatus(err), http.StatusBadGateway)
	}
}

func TestAsAppErrorFallsBackToInternal(t *testing.T) {
	err := AsAppError(errors.New("plain"))
	if err.Code != CodeInternalError {
		t.Errorf("Code = %s, want %s", err.Code, CodeInternalError)
	}
}
