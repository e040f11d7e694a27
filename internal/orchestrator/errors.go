package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInputMissing indicates a required file or argument is absent.
	// Fatal, immediate abort.
	ErrInputMissing = errors.New("required input missing")

	// ErrServiceUnavailable indicates the trust service did not become
	// active within the bounded retry window. Fatal.
	ErrServiceUnavailable = errors.New("trust service unavailable")

	// ErrPolicyMissing indicates the configured policy document does not
	// exist. A warning only; evaluation proceeds with the resident policy.
	ErrPolicyMissing = errors.New("policy document missing")

	// ErrPolicyInvalid indicates the policy document failed validation.
	ErrPolicyInvalid = errors.New("policy document invalid")

	// ErrEvaluationFailed indicates the evaluation entrypoint rejected the
	// evidence. Fatal.
	ErrEvaluationFailed = errors.New("evidence evaluation failed")
)

// EvaluationError carries the gateway's rejection response for diagnostics.
type EvaluationError struct {
	StatusCode int
	Body       string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrEvaluationFailed, e.StatusCode, e.Body)
}

func (e *EvaluationError) Unwrap() error {
	return ErrEvaluationFailed
}
