package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrMalformedInput covers bad template shape, bad indentation and bad callback tokens.
	ErrMalformedInput = errors.New("malformed input")
	// ErrPolicyViolation means the operation would act outside the restaurant vertical.
	ErrPolicyViolation = errors.New("policy violation")
	ErrNotFound        = errors.New("not found")
	// ErrCollaborator marks failures of the browser bridge or other external services.
	ErrCollaborator = errors.New("external collaborator failure")
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"

	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrCollaborator):
		return "collaborator"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrMalformedInput):
		return http.StatusBadRequest

	case errors.Is(err, ErrPolicyViolation):
		return http.StatusForbidden

	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrCollaborator):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
