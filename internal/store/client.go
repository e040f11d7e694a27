package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/enterprise/cvm-trust-verifier/internal/refvalue"
)

// ErrRegistrationFailed indicates the store rejected a reference-value
// registration. Fatal to the verification run.
var ErrRegistrationFailed = errors.New("reference value registration failed")

// RegistrationError carries the store's response for diagnostics.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrRegistrationFailed, e.StatusCode, e.Body)
}

func (e *RegistrationError) Unwrap() error {
	return ErrRegistrationFailed
}

// Client registers reference-value documents with the remote store. The
// store guarantees idempotent registration; the client performs no retries,
// a failed call is terminal for the run.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewClient creates a store client for baseURL with a caller-supplied
// request timeout.
func NewClient(baseURL string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Register posts the provenance document to the store. Any non-200 response
// is a hard failure carrying the response body.
func (c *Client) Register(ctx context.Context, doc *refvalue.Document) error {
	body, err := doc.Message()
	if err != nil {
		return fmt.Errorf("failed to encode registration request: %w", err)
	}

	url := c.baseURL + "/api/reference-values/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"url":     url,
		"version": doc.Version,
		"type":    doc.Type,
	}).Info("Registering reference values")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(respBody),
		}).Error("Reference value registration rejected")
		return &RegistrationError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Info("Reference values registered")
	return nil
}
