package orchestrator

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/config"
)

func gatewayConfigFor(t *testing.T, serverURL string) config.GatewayConfig {
	t.Helper()

	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.GatewayConfig{Host: host, Port: port, Timeout: 5 * time.Second}
}

func signedToken(t *testing.T, payload map[string]interface{}) string {
	t.Helper()

	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	token, err := jwt.Signed(signer).Claims(payload).Serialize()
	require.NoError(t, err)
	return token
}

func affirmingTokenPayload() map[string]interface{} {
	return map[string]interface{}{
		"iss": "trustiflux",
		"submods": map[string]interface{}{
			"cpu0": map[string]interface{}{
				"ear.status": "affirming",
				"ear.trustworthiness-vector": map[string]interface{}{
					"executables":   3,
					"configuration": 2,
					"file-system":   1,
				},
			},
		},
	}
}

func TestGatewayEvaluator_Evaluate(t *testing.T) {
	var gotRequest attestationRequest
	var gotInstanceInfo string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, attestationPath, r.URL.Path)
		gotInstanceInfo = r.Header.Get("AAInstanceInfo")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(signedToken(t, affirmingTokenPayload())))
	}))
	defer srv.Close()

	evaluator := NewGatewayEvaluator(gatewayConfigFor(t, srv.URL), config.InstanceConfig{}, testLogger())
	result, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	require.NoError(t, err)

	require.Len(t, gotRequest.VerificationRequests, 1)
	assert.Equal(t, "tdx", gotRequest.VerificationRequests[0].TEE)
	assert.Equal(t, "ZXZpZGVuY2U=", gotRequest.VerificationRequests[0].Evidence)
	assert.Equal(t, []string{"tapp"}, gotRequest.PolicyIDs)
	assert.Empty(t, gotInstanceInfo)

	assert.Equal(t, "affirming", result.Status)
	assert.True(t, result.Vector.AllVerified())
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, string(result.Payload), "ear.trustworthiness-vector")
}

func TestGatewayEvaluator_InstanceInfoHeader(t *testing.T) {
	var gotInstanceInfo string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInstanceInfo = r.Header.Get("AAInstanceInfo")
		w.Write([]byte(signedToken(t, affirmingTokenPayload())))
	}))
	defer srv.Close()

	instance := config.InstanceConfig{
		ImageID:        "img-123",
		InstanceID:     "i-456",
		InstanceName:   "cvm-prod-1",
		OwnerAccountID: "9000",
	}
	evaluator := NewGatewayEvaluator(gatewayConfigFor(t, srv.URL), instance, testLogger())
	_, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(gotInstanceInfo), &info))
	assert.Equal(t, map[string]string{
		"image_id":         "img-123",
		"instance_id":      "i-456",
		"instance_name":    "cvm-prod-1",
		"owner_account_id": "9000",
	}, info)
}

func TestGatewayEvaluator_ContraindicatedVector(t *testing.T) {
	payload := affirmingTokenPayload()
	payload["submods"] = map[string]interface{}{
		"cpu0": map[string]interface{}{
			"ear.status": "contraindicated",
			"ear.trustworthiness-vector": map[string]interface{}{
				"executables":   33,
				"configuration": 2,
				"file-system":   1,
			},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(signedToken(t, payload)))
	}))
	defer srv.Close()

	evaluator := NewGatewayEvaluator(gatewayConfigFor(t, srv.URL), config.InstanceConfig{}, testLogger())
	result, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	require.NoError(t, err)

	assert.Equal(t, "contraindicated", result.Status)
	assert.False(t, result.Vector.AllVerified())
	assert.Equal(t, claims.ExecutablesUnverified, result.Vector.Executables.Code())
}

func TestGatewayEvaluator_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "policy not found", http.StatusInternalServerError)
	}))
	defer srv.Close()

	evaluator := NewGatewayEvaluator(gatewayConfigFor(t, srv.URL), config.InstanceConfig{}, testLogger())
	_, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, http.StatusInternalServerError, evalErr.StatusCode)
	assert.Contains(t, evalErr.Body, "policy not found")
}

func TestGatewayEvaluator_MalformedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a jwt"))
	}))
	defer srv.Close()

	evaluator := NewGatewayEvaluator(gatewayConfigFor(t, srv.URL), config.InstanceConfig{}, testLogger())
	_, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}

func TestGatewayEvaluator_ConnectionRefused(t *testing.T) {
	evaluator := NewGatewayEvaluator(
		config.GatewayConfig{Host: "127.0.0.1", Port: 1, Timeout: time.Second},
		config.InstanceConfig{}, testLogger(),
	)
	_, err := evaluator.Evaluate(context.Background(), "ZXZpZGVuY2U=", "tapp")
	assert.ErrorIs(t, err, ErrEvaluationFailed)
}
