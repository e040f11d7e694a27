package orchestrator

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPolicy = `package policy

default allow = false

allow {
	input.tdx.rtmr1 != ""
}
`

func TestDirInstaller_Install(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/policies/tapp.rego", []byte(validPolicy), 0o644))

	installer := NewDirInstaller(fs, "/opt/attestation/policies", testLogger())
	err := installer.Install(context.Background(), "/policies/tapp.rego", "tapp")
	require.NoError(t, err)

	installed, err := afero.ReadFile(fs, "/opt/attestation/policies/tapp.rego")
	require.NoError(t, err)
	assert.Equal(t, validPolicy, string(installed))
}

func TestDirInstaller_MissingPolicy(t *testing.T) {
	installer := NewDirInstaller(afero.NewMemMapFs(), "/opt/attestation/policies", testLogger())

	err := installer.Install(context.Background(), "/policies/nope.rego", "tapp")
	assert.ErrorIs(t, err, ErrPolicyMissing)
}

func TestDirInstaller_InvalidPolicy(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/policies/broken.rego", []byte("this is not rego {"), 0o644))

	installer := NewDirInstaller(fs, "/opt/attestation/policies", testLogger())
	err := installer.Install(context.Background(), "/policies/broken.rego", "tapp")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPolicyInvalid)

	// A broken document never lands in the policy directory.
	exists, statErr := afero.Exists(fs, "/opt/attestation/policies/tapp.rego")
	require.NoError(t, statErr)
	assert.False(t, exists)
}
