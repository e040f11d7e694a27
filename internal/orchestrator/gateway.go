package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/sirupsen/logrus"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/config"
)

// attestationPath is the gateway's evaluation entrypoint.
const attestationPath = "/api/attestation-service/attestation"

// tokenSignatureAlgs are the signature algorithms accepted when decoding the
// attestation token. The token signature itself is verified by relying
// parties; the orchestrator only decodes the claims.
var tokenSignatureAlgs = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.HS256,
}

// verificationRequest is one TEE evidence item submitted for evaluation.
type verificationRequest struct {
	TEE      string `json:"tee"`
	Evidence string `json:"evidence"`
}

type attestationRequest struct {
	VerificationRequests []verificationRequest `json:"verification_requests"`
	PolicyIDs            []string              `json:"policy_ids"`
}

// trustVectorClaims mirrors the EAR trustworthiness vector in the token.
type trustVectorClaims struct {
	Executables   int `json:"executables"`
	Configuration int `json:"configuration"`
	FileSystem    int `json:"file-system"`
}

type submodClaims struct {
	Status      string             `json:"ear.status"`
	TrustVector *trustVectorClaims `json:"ear.trustworthiness-vector"`
}

type tokenPayload struct {
	Submods map[string]submodClaims `json:"submods"`
}

// GatewayEvaluator submits evidence to the attestation-service gateway and
// decodes the returned token.
type GatewayEvaluator struct {
	baseURL    string
	httpClient *http.Client
	instance   config.InstanceConfig
	logger     logrus.FieldLogger
}

// NewGatewayEvaluator creates a gateway-backed evaluator.
func NewGatewayEvaluator(gw config.GatewayConfig, instance config.InstanceConfig, logger logrus.FieldLogger) *GatewayEvaluator {
	return &GatewayEvaluator{
		baseURL:    gw.BaseURL(),
		httpClient: &http.Client{Timeout: gw.Timeout},
		instance:   instance,
		logger:     logger,
	}
}

// Evaluate implements EvidenceEvaluator. A non-200 gateway response is a
// terminal EvaluationError carrying the response body; there are no retries.
func (g *GatewayEvaluator) Evaluate(ctx context.Context, evidenceBody, policyID string) (*EvaluationResult, error) {
	reqBody, err := json.Marshal(attestationRequest{
		VerificationRequests: []verificationRequest{{TEE: "tdx", Evidence: evidenceBody}},
		PolicyIDs:            []string{policyID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation request: %w", err)
	}

	url := g.baseURL + attestationPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if !g.instance.Empty() {
		info, err := instanceInfoHeader(g.instance)
		if err != nil {
			return nil, err
		}
		req.Header.Set("AAInstanceInfo", info)
	}

	g.logger.WithFields(logrus.Fields{
		"url":       url,
		"policy_id": policyID,
	}).Info("Submitting evidence for evaluation")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, &EvaluationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	token := string(bytes.TrimSpace(body))
	result, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"status":   result.Status,
		"duration": time.Since(start),
	}).Info("Evidence evaluation completed")

	return result, nil
}

// decodeToken extracts the claims payload and trust vector from the
// attestation token without verifying its signature.
func decodeToken(token string) (*EvaluationResult, error) {
	parsed, err := jwt.ParseSigned(token, tokenSignatureAlgs)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrEvaluationFailed, err)
	}

	var payload tokenPayload
	var raw map[string]interface{}
	if err := parsed.UnsafeClaimsWithoutVerification(&payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: undecodable token payload: %v", ErrEvaluationFailed, err)
	}

	rawJSON, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render claims payload: %w", err)
	}

	result := &EvaluationResult{Token: token, Payload: rawJSON}

	// The per-CPU submod carries the verdict; cpu0 is the boot processor.
	if sub, ok := payload.Submods["cpu0"]; ok {
		result.Status = sub.Status
		if sub.TrustVector != nil {
			result.Vector = claims.FromCodes(
				sub.TrustVector.Executables,
				sub.TrustVector.Configuration,
				sub.TrustVector.FileSystem,
			)
		}
	}

	return result, nil
}

func instanceInfoHeader(instance config.InstanceConfig) (string, error) {
	info := map[string]string{}
	if instance.ImageID != "" {
		info["image_id"] = instance.ImageID
	}
	if instance.InstanceID != "" {
		info["instance_id"] = instance.InstanceID
	}
	if instance.InstanceName != "" {
		info["instance_name"] = instance.InstanceName
	}
	if instance.OwnerAccountID != "" {
		info["owner_account_id"] = instance.OwnerAccountID
	}
	encoded, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode instance info: %w", err)
	}
	return string(encoded), nil
}
