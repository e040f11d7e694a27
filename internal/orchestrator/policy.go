package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-policy-agent/opa/ast"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DirInstaller installs rego policy documents into the resident policy
// directory, keyed by policy identifier. Documents are parsed before
// installation so a broken policy never replaces a working one.
type DirInstaller struct {
	fs     afero.Fs
	dir    string
	logger logrus.FieldLogger
}

// NewDirInstaller creates an installer writing into dir.
func NewDirInstaller(fs afero.Fs, dir string, logger logrus.FieldLogger) *DirInstaller {
	return &DirInstaller{fs: fs, dir: dir, logger: logger}
}

// Install implements PolicyInstaller. A missing policy file yields
// ErrPolicyMissing, which callers treat as a warning; an unparsable policy
// is an error.
func (i *DirInstaller) Install(ctx context.Context, policyPath, policyID string) error {
	data, err := afero.ReadFile(i.fs, policyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPolicyMissing, policyPath)
		}
		return fmt.Errorf("failed to read policy %s: %w", policyPath, err)
	}

	if _, err := ast.ParseModule(policyPath, string(data)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPolicyInvalid, policyPath, err)
	}

	if err := i.fs.MkdirAll(i.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create policy directory %s: %w", i.dir, err)
	}

	target := filepath.Join(i.dir, policyID+".rego")
	if err := afero.WriteFile(i.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("failed to install policy %s: %w", target, err)
	}

	i.logger.WithFields(logrus.Fields{
		"policy_id": policyID,
		"target":    target,
	}).Info("Policy installed")

	return nil
}
