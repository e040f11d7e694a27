package orchestrator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/enterprise/cvm-trust-verifier/internal/claims"
)

// opStartApp marks the tagged events recorded when the guest workload is
// launched; they are listed in every report.
const opStartApp = "start_app"

// WriteReport renders the human-readable verification report for a completed
// run. The base report carries the verification status, the trust vector,
// the quote report data and the start_app event listing; verbose adds the
// decoded token header, the full claims payload and the cryptpilot-domain
// event listing.
func WriteReport(w io.Writer, result *Result, verbose bool) {
	if verbose {
		writeTokenHeader(w, result.Token)
		if len(result.Payload) > 0 {
			fmt.Fprintln(w, "========== JWT Payload (full) ==========")
			fmt.Fprintln(w, string(result.Payload))
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "========== verification result ==========")
	fmt.Fprintf(w, "verification status: %s\n", result.Status)
	fmt.Fprintln(w, "\ntrustworthiness vector:")
	fmt.Fprintf(w, "  - configuration: %d\n", result.Vector.Configuration.Code())
	fmt.Fprintf(w, "  - executables: %d\n", result.Vector.Executables.Code())
	fmt.Fprintf(w, "  - file-system: %d\n", result.Vector.FileSystem.Code())

	var payload map[string]interface{}
	if err := json.Unmarshal(result.Payload, &payload); err != nil {
		return
	}
	tdx := childMap(payload, "submods", "cpu0", "ear.veraison.annotated-evidence", "tdx")
	if tdx == nil {
		return
	}

	if reportData, ok := childMap(tdx, "quote", "body")["report_data"].(string); ok {
		fmt.Fprintf(w, "\nReport Data: %s\n", reportData)
	}

	logs, _ := tdx["uefi_event_logs"].([]interface{})
	if logs == nil {
		return
	}

	fmt.Fprintln(w, "\n========== Start App logs ==========")
	found := false
	for _, log := range logs {
		entry, _ := log.(map[string]interface{})
		data := childMap(entry, "details", "data")
		if data["operation"] != opStartApp {
			continue
		}
		details, err := json.MarshalIndent(entry["details"], "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintln(w, string(details))
		found = true
	}
	if !found {
		fmt.Fprintln(w, "start_app log not found")
	}

	if !verbose {
		return
	}

	fmt.Fprintln(w, "\n========== Cryptpilot logs ==========")
	found = false
	for _, log := range logs {
		entry, _ := log.(map[string]interface{})
		data := childMap(entry, "details", "data")
		if data["domain"] != claims.CryptpilotDomain {
			continue
		}
		fmt.Fprintf(w, "Operation: %v\n", data["operation"])
		fmt.Fprintf(w, "Content: %v\n\n", data["content"])
		found = true
	}
	if !found {
		fmt.Fprintln(w, "cryptpilot log not found")
	}
}

// writeTokenHeader decodes and prints the JOSE header of the attestation
// token. Skipped silently when the token is absent or not in compact form.
func writeTokenHeader(w io.Writer, token string) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[0], "="))
	if err != nil {
		return
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return
	}
	fmt.Fprintln(w, "========== JWT Header ==========")
	fmt.Fprintln(w, indented.String())
	fmt.Fprintln(w)
}

// childMap walks nested JSON objects, returning nil when any step is missing
// or not an object. Indexing a nil result is safe.
func childMap(m map[string]interface{}, keys ...string) map[string]interface{} {
	for _, key := range keys {
		next, ok := m[key].(map[string]interface{})
		if !ok {
			return nil
		}
		m = next
	}
	return m
}
