package refvalue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DocumentVersion is the provenance document version accepted by the
// reference store.
const DocumentVersion = "0.1.0"

// DocumentType tags the provenance payload format.
const DocumentType = "sample"

// Reference maps a measurement key (e.g. "measurement.kernel.sha384") to the
// set of accepted digest values. Membership is the only operation relying
// parties perform; insertion order is irrelevant.
type Reference map[string][]string

// Document is the reference-value provenance document registered with the
// store: a versioned envelope around the base64-encoded raw reference bytes.
type Document struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// NewDocument wraps a reference mapping into a provenance document.
func NewDocument(ref Reference) (*Document, error) {
	raw, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reference values: %w", err)
	}
	return &Document{
		Version: DocumentVersion,
		Type:    DocumentType,
		Payload: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// Reference decodes the payload back into the reference mapping.
func (d *Document) Reference() (Reference, error) {
	raw, err := base64.StdEncoding.DecodeString(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	var ref Reference
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("failed to decode reference values: %w", err)
	}
	return ref, nil
}

// Message renders the registration request body expected by the store:
// the document JSON nested as a string under "message".
func (d *Document) Message() ([]byte, error) {
	doc, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"message": string(doc)})
}
