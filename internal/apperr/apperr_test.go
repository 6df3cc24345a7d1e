package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("parse template: %w", ErrMalformedInput)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "malformed", err: ErrMalformedInput, want: "malformed_input"},
		{name: "malformed_wrapped", err: wrapped, want: "malformed_input"},
		{name: "policy", err: ErrPolicyViolation, want: "policy_violation"},
		{name: "not_found", err: ErrNotFound, want: "not_found"},
		{name: "collaborator", err: ErrCollaborator, want: "collaborator"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "unknown", err: errors.New("unknown"), want: "internal"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Kind(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("blocked vertical: %w", ErrPolicyViolation)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "malformed", err: ErrMalformedInput, want: http.StatusBadRequest},
		{name: "policy_wrapped", err: wrapped, want: http.StatusForbidden},
		{name: "not_found", err: ErrNotFound, want: http.StatusNotFound},
		{name: "collaborator", err: ErrCollaborator, want: http.StatusBadGateway},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("unknown"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
