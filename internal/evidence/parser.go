package evidence

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Parser converts a raw attestation evidence document into its typed form.
type Parser struct {
	logger logrus.FieldLogger
}

// NewParser creates an evidence parser.
func NewParser(logger logrus.FieldLogger) *Parser {
	return &Parser{logger: logger}
}

// rawEntry defers details decoding so that a single malformed entry cannot
// fail the whole parse.
type rawEntry struct {
	TypeName string          `json:"type_name"`
	Details  json.RawMessage `json:"details"`
	Digests  []Digest        `json:"digests"`
}

type rawTDX struct {
	UEFIEventLogs []rawEntry `json:"uefi_event_logs"`
}

type rawEvidence struct {
	TDX *rawTDX `json:"tdx"`
}

// Parse decodes the evidence document. Entries of unrecognized type or with
// undecodable details are skipped and counted, preserving the order of the
// remaining sequence; only a structurally broken document is an error.
func (p *Parser) Parse(data []byte) (*Evidence, error) {
	var raw rawEvidence
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseIncomplete, err)
	}
	if raw.TDX == nil {
		return nil, fmt.Errorf("%w: missing tdx section", ErrParseIncomplete)
	}

	ev := &Evidence{}
	for i, re := range raw.TDX.UEFIEventLogs {
		entry := EventLogEntry{
			TypeName: re.TypeName,
			Digests:  re.Digests,
		}
		if len(re.Details) > 0 {
			if err := json.Unmarshal(re.Details, &entry.Details); err != nil {
				ev.SkippedEntries++
				if p.logger != nil {
					p.logger.WithFields(logrus.Fields{
						"index":     i,
						"type_name": re.TypeName,
					}).WithError(err).Debug("Skipping undecodable event log entry")
				}
				continue
			}
		}
		ev.TDX.UEFIEventLogs = append(ev.TDX.UEFIEventLogs, entry)
	}

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"events":  len(ev.TDX.UEFIEventLogs),
			"skipped": ev.SkippedEntries,
		}).Debug("Parsed evidence document")
	}

	return ev, nil
}
