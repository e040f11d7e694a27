package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/store"
)

func TestLocalEvaluator_EmptyEventLog(t *testing.T) {
	metrics := claims.NewMetrics(prometheus.NewRegistry())
	evaluator := NewLocalEvaluator(store.NewMemoryStore(), metrics, testLogger())

	body := base64.StdEncoding.EncodeToString([]byte(`{"tdx":{"uefi_event_logs":[]}}`))
	result, err := evaluator.Evaluate(context.Background(), body, "tapp")
	require.NoError(t, err)

	// Nothing can be verified against an empty log: every claim keeps its
	// pessimistic default.
	assert.Equal(t, "contraindicated", result.Status)
	assert.Equal(t, claims.ExecutablesUnverified, result.Vector.Executables.Code())
	assert.Equal(t, claims.ConfigurationUnverified, result.Vector.Configuration.Code())
	assert.Equal(t, claims.FileSystemUnverified, result.Vector.FileSystem.Code())
	assert.Empty(t, result.Token)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Equal(t, "tapp", payload["policy_id"])

	cpu0, ok := payload["submods"].(map[string]interface{})["cpu0"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "contraindicated", cpu0["ear.status"])
	assert.Contains(t, cpu0, "ear.trustworthiness-vector")
	assert.Contains(t, cpu0, "ear.veraison.annotated-evidence")
}

func TestLocalEvaluator_NotBase64(t *testing.T) {
	evaluator := NewLocalEvaluator(store.NewMemoryStore(), nil, testLogger())

	_, err := evaluator.Evaluate(context.Background(), "%%% not base64 %%%", "tapp")
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}

func TestLocalEvaluator_BrokenDocument(t *testing.T) {
	evaluator := NewLocalEvaluator(store.NewMemoryStore(), nil, testLogger())

	body := base64.StdEncoding.EncodeToString([]byte(`{"sgx": {}}`))
	_, err := evaluator.Evaluate(context.Background(), body, "tapp")
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}
