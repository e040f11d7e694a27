// Package claims implements the trust-decision engine: it evaluates parsed
// attestation evidence against the reference store and produces the
// AR4SI-style trustworthiness vector.
package claims

import (
	"encoding/json"
)

// AR4SI trustworthiness codes. The numeric values are fixed by the taxonomy
// shared with downstream relying parties and must not change.
const (
	// Pass codes, set only when every required sub-check succeeds.
	ExecutablesApproved   = 3
	ConfigurationApproved = 2
	FileSystemApproved    = 1

	// Pessimistic defaults reported when a claim cannot be verified.
	ExecutablesUnverified   = 33
	ConfigurationUnverified = 36
	FileSystemUnverified    = 35
)

// Claim is the verdict for one trust dimension: either the pessimistic
// default or the verified pass code. There is no partial-credit state.
type Claim struct {
	code     int
	verified bool
}

// Unverified returns a claim holding its pessimistic default code.
func Unverified(code int) Claim {
	return Claim{code: code}
}

// Verified returns a claim holding its pass code.
func Verified(code int) Claim {
	return Claim{code: code, verified: true}
}

// Code returns the AR4SI code of the claim.
func (c Claim) Code() int { return c.code }

// IsVerified reports whether the claim carries its pass code.
func (c Claim) IsVerified() bool { return c.verified }

// MarshalJSON encodes the claim as its bare numeric code.
func (c Claim) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.code)
}

// TrustVector is the three-dimensional trust verdict of a verification run.
// The claims are independent: each is computed on its own and a failure in
// one never affects the others.
type TrustVector struct {
	Executables   Claim `json:"executables"`
	Configuration Claim `json:"configuration"`
	FileSystem    Claim `json:"file-system"`
}

// AllVerified reports whether every claim carries its pass code.
func (v TrustVector) AllVerified() bool {
	return v.Executables.IsVerified() && v.Configuration.IsVerified() && v.FileSystem.IsVerified()
}

// FromCodes rebuilds a trust vector from bare AR4SI codes, e.g. as decoded
// from an attestation token payload.
func FromCodes(executables, configuration, fileSystem int) TrustVector {
	return TrustVector{
		Executables:   fromCode(executables, ExecutablesApproved),
		Configuration: fromCode(configuration, ConfigurationApproved),
		FileSystem:    fromCode(fileSystem, FileSystemApproved),
	}
}

func fromCode(code, pass int) Claim {
	if code == pass {
		return Verified(code)
	}
	return Unverified(code)
}
