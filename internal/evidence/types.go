package evidence

import (
	"strings"
)

// EventType identifies the kind of a boot event log entry.
type EventType string

const (
	EventTypeBootServicesApp EventType = "EV_EFI_BOOT_SERVICES_APPLICATION"
	EventTypeIPL             EventType = "EV_IPL"
	EventTypeTag             EventType = "EV_EVENT_TAG"
)

// DigestAlg identifies a supported digest algorithm.
type DigestAlg string

const (
	AlgSHA1   DigestAlg = "sha1"
	AlgSHA256 DigestAlg = "sha256"
	AlgSHA384 DigestAlg = "sha384"
	AlgSHA512 DigestAlg = "sha512"
)

// SupportedAlg reports whether name is a known digest algorithm.
func SupportedAlg(name string) bool {
	switch DigestAlg(strings.ToLower(name)) {
	case AlgSHA1, AlgSHA256, AlgSHA384, AlgSHA512:
		return true
	}
	return false
}

// Digest is a single algorithm-tagged measurement value. Immutable once parsed.
type Digest struct {
	Alg   DigestAlg `json:"alg"`
	Value string    `json:"digest"`
}

// TaggedData is the payload of an AAEL-tagged event.
type TaggedData struct {
	Domain    string `json:"domain"`
	Operation string `json:"operation"`
	Content   string `json:"content"`
}

// EventDetails is the type-dependent payload of an event log entry.
// Boot-application events carry DevicePaths, IPL events carry String,
// tagged events carry UnicodeName and Data.
type EventDetails struct {
	DevicePaths []string    `json:"device_paths,omitempty"`
	String      string      `json:"string,omitempty"`
	UnicodeName string      `json:"unicode_name,omitempty"`
	Data        *TaggedData `json:"data,omitempty"`
}

// EventLogEntry is one record of the boot event log. The log is an ordered,
// append-only sequence captured once per boot; entries are never mutated.
type EventLogEntry struct {
	TypeName string       `json:"type_name"`
	Details  EventDetails `json:"details"`
	Digests  []Digest     `json:"digests"`
}

// PrimaryDigest returns the reported digest of the entry (digests[0]).
func (e *EventLogEntry) PrimaryDigest() (Digest, bool) {
	if len(e.Digests) == 0 {
		return Digest{}, false
	}
	return e.Digests[0], true
}

// TDXEvidence holds the TDX-specific portion of the evidence document.
type TDXEvidence struct {
	UEFIEventLogs []EventLogEntry `json:"uefi_event_logs"`
}

// Evidence is the root attestation evidence document; one per verification
// run, immutable after parsing.
type Evidence struct {
	TDX TDXEvidence `json:"tdx"`

	// SkippedEntries counts event log entries that could not be decoded
	// and were dropped during parsing.
	SkippedEntries int `json:"-"`
}

// Events returns the ordered boot event log.
func (e *Evidence) Events() []EventLogEntry {
	return e.TDX.UEFIEventLogs
}
