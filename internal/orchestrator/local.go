package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/evidence"
	"github.com/enterprise/cvm-trust-verifier/internal/store"
)

// LocalEvaluator runs the claims engine in-process against a reference store
// view. It produces no signed token; token generation belongs to the
// attestation service and stays empty in local mode.
type LocalEvaluator struct {
	parser    *evidence.Parser
	evaluator *claims.Evaluator
	view      store.View
	logger    logrus.FieldLogger
}

// NewLocalEvaluator creates an in-process evaluator over view.
func NewLocalEvaluator(view store.View, metrics *claims.Metrics, logger logrus.FieldLogger) *LocalEvaluator {
	return &LocalEvaluator{
		parser:    evidence.NewParser(logger),
		evaluator: claims.NewEvaluator(logger, metrics),
		view:      view,
		logger:    logger,
	}
}

// Evaluate implements EvidenceEvaluator. The evidence body is the
// base64-encoded evidence document.
func (l *LocalEvaluator) Evaluate(ctx context.Context, evidenceBody, policyID string) (*EvaluationResult, error) {
	raw, err := base64.StdEncoding.DecodeString(evidenceBody)
	if err != nil {
		return nil, fmt.Errorf("%w: evidence body is not base64: %v", ErrEvaluationFailed, err)
	}

	ev, err := l.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	vector := l.evaluator.Evaluate(ev, l.view)

	status := "contraindicated"
	if vector.AllVerified() {
		status = "affirming"
	}

	// Mirrors the shape of the gateway token payload so report rendering
	// works the same in both modes.
	payload, err := json.MarshalIndent(map[string]interface{}{
		"submods": map[string]interface{}{
			"cpu0": map[string]interface{}{
				"ear.status":                 status,
				"ear.trustworthiness-vector": vector,
				"ear.veraison.annotated-evidence": map[string]interface{}{
					"tdx": map[string]interface{}{
						"uefi_event_logs": ev.Events(),
					},
				},
			},
		},
		"policy_id": policyID,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render claims payload: %w", err)
	}

	return &EvaluationResult{
		Status:  status,
		Vector:  vector,
		Payload: payload,
	}, nil
}
