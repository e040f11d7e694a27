// Package orchestrator sequences a full verification run: trust service
// startup, reference-value extraction and registration, policy installation,
// and evidence evaluation, with fatal short-circuit between steps.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
	"github.com/enterprise/cvm-trust-verifier/internal/config"
	"github.com/enterprise/cvm-trust-verifier/internal/refvalue"
)

// Artifact file names written into the output directory.
const (
	ResultFileName  = "verification_result.txt"
	TokenFileName   = "jwt_token.txt"
	PayloadFileName = "jwt_payload.json"
)

// Result is the terminal outcome of a verification run.
type Result struct {
	RunID    string
	Status   string
	Vector   claims.TrustVector
	Token    string
	Payload  []byte
	ExitCode int

	ResultPath  string
	TokenPath   string
	PayloadPath string
}

// Orchestrator wires the verification pipeline. Each step blocks until
// complete or failed; later steps depend on the side effects of earlier
// ones.
type Orchestrator struct {
	cfg        *config.Config
	fs         afero.Fs
	controller ServiceController
	extractor  *refvalue.Extractor
	registrar  Registrar
	installer  PolicyInstaller
	evaluator  EvidenceEvaluator
	logger     logrus.FieldLogger
}

// New creates an orchestrator from its collaborators.
func New(cfg *config.Config, fs afero.Fs, controller ServiceController, extractor *refvalue.Extractor,
	registrar Registrar, installer PolicyInstaller, evaluator EvidenceEvaluator, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		fs:         fs,
		controller: controller,
		extractor:  extractor,
		registrar:  registrar,
		installer:  installer,
		evaluator:  evaluator,
		logger:     logger,
	}
}

// Run executes the verification sequence. Any fatal step aborts immediately
// with its own error; a missing custom policy only logs a warning.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	log := o.logger.WithField("run_id", runID)

	// Step 1: trust service must be up before anything talks to it.
	if err := o.controller.EnsureRunning(ctx); err != nil {
		return nil, err
	}

	// Step 2: extract reference values from the trusted image.
	if o.cfg.Reference.ImagePath == "" {
		return nil, fmt.Errorf("%w: reference image path", ErrInputMissing)
	}
	doc, err := o.extractor.Extract(o.cfg.Reference.ImagePath)
	if err != nil {
		return nil, err
	}

	// Step 3: register them with the store.
	if err := o.registrar.Register(ctx, doc); err != nil {
		return nil, err
	}

	// Step 4: install the custom policy when one is supplied.
	if o.cfg.Policy.Path != "" {
		if err := o.installer.Install(ctx, o.cfg.Policy.Path, o.cfg.Policy.ID); err != nil {
			if errors.Is(err, ErrPolicyMissing) {
				log.WithError(err).Warn("Policy document missing, using resident policy")
			} else {
				return nil, err
			}
		}
	}

	// Step 5: evaluate the evidence and persist the artifacts.
	evidenceBody, err := o.readEvidenceBody()
	if err != nil {
		return nil, err
	}

	eval, err := o.evaluator.Evaluate(ctx, evidenceBody, o.cfg.Policy.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		RunID:   runID,
		Status:  eval.Status,
		Vector:  eval.Vector,
		Token:   eval.Token,
		Payload: eval.Payload,
	}
	if !eval.Vector.AllVerified() {
		result.ExitCode = 1
	}

	if err := o.persist(result, eval); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status":    result.Status,
		"exit_code": result.ExitCode,
	}).Info("Verification run completed")

	return result, nil
}

// readEvidenceBody reads the evidence document and extracts its base64
// evidence field.
func (o *Orchestrator) readEvidenceBody() (string, error) {
	data, err := afero.ReadFile(o.fs, o.cfg.Evidence.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: evidence file %s", ErrInputMissing, o.cfg.Evidence.Path)
		}
		return "", fmt.Errorf("failed to read evidence file: %w", err)
	}

	var envelope struct {
		Evidence string `json:"evidence"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("%w: evidence file is not valid JSON: %v", ErrInputMissing, err)
	}
	if envelope.Evidence == "" {
		return "", fmt.Errorf("%w: evidence field in %s", ErrInputMissing, o.cfg.Evidence.Path)
	}
	return envelope.Evidence, nil
}

func (o *Orchestrator) persist(result *Result, eval *EvaluationResult) error {
	outDir := o.cfg.Output.Dir
	if err := o.fs.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	summary := fmt.Sprintf(
		"run_id: %s\nstatus: %s\nexecutables: %d\nconfiguration: %d\nfile-system: %d\n",
		result.RunID, result.Status,
		result.Vector.Executables.Code(),
		result.Vector.Configuration.Code(),
		result.Vector.FileSystem.Code(),
	)
	result.ResultPath = filepath.Join(outDir, ResultFileName)
	if err := afero.WriteFile(o.fs, result.ResultPath, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", result.ResultPath, err)
	}

	if eval.Token != "" {
		result.TokenPath = filepath.Join(outDir, TokenFileName)
		if err := afero.WriteFile(o.fs, result.TokenPath, []byte(eval.Token), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", result.TokenPath, err)
		}
	}

	if len(eval.Payload) > 0 {
		result.PayloadPath = filepath.Join(outDir, PayloadFileName)
		if err := afero.WriteFile(o.fs, result.PayloadPath, eval.Payload, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", result.PayloadPath, err)
		}
	}

	return nil
}
