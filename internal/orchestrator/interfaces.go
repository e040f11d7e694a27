package orchestrator

import (
	"context"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/refvalue"
)

// ServiceController ensures the attestation/trust service is running before
// any verification step touches it.
type ServiceController interface {
	// EnsureRunning starts the service if needed and polls until it is
	// active, bounded by the configured retry count.
	EnsureRunning(ctx context.Context) error
}

// PolicyInstaller places a policy document into the resident policy
// directory under a policy identifier.
type PolicyInstaller interface {
	Install(ctx context.Context, policyPath, policyID string) error
}

// Registrar registers a reference-value document with the store.
// Satisfied by store.Client.
type Registrar interface {
	Register(ctx context.Context, doc *refvalue.Document) error
}

// EvaluationResult is the product of one evidence evaluation: the trust
// vector, the signed token, and the full claims payload.
type EvaluationResult struct {
	Status  string
	Vector  claims.TrustVector
	Token   string
	Payload []byte
}

// EvidenceEvaluator runs the policy evaluation over an evidence body (the
// base64 quote-plus-event-log blob carried by the evidence document).
type EvidenceEvaluator interface {
	Evaluate(ctx context.Context, evidenceBody string, policyID string) (*EvaluationResult, error)
}
