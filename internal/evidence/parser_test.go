package evidence

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		wantEvents  int
		wantSkipped int
	}{
		{
			name: "valid document",
			input: `{"tdx": {"uefi_event_logs": [
				{"type_name": "EV_IPL", "details": {"string": "Kernel"}, "digests": [{"alg": "sha384", "digest": "ab"}]},
				{"type_name": "EV_EFI_BOOT_SERVICES_APPLICATION", "details": {"device_paths": ["/grubx64.efi"]}, "digests": [{"alg": "sha384", "digest": "cd"}]}
			]}}`,
			wantEvents: 2,
		},
		{
			name: "unrecognized type name is kept, not fatal",
			input: `{"tdx": {"uefi_event_logs": [
				{"type_name": "EV_NO_ACTION", "details": {}, "digests": []},
				{"type_name": "EV_IPL", "details": {"string": "Initrd"}, "digests": [{"alg": "sha384", "digest": "ef"}]}
			]}}`,
			wantEvents: 2,
		},
		{
			name: "undecodable details are skipped",
			input: `{"tdx": {"uefi_event_logs": [
				{"type_name": "EV_IPL", "details": "not an object", "digests": []},
				{"type_name": "EV_IPL", "details": {"string": "Kernel"}, "digests": [{"alg": "sha384", "digest": "ab"}]}
			]}}`,
			wantEvents:  1,
			wantSkipped: 1,
		},
		{
			name:    "missing tdx section",
			input:   `{"other": {}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `garbage`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(testLogger())
			ev, err := parser.Parse([]byte(tt.input))

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParseIncomplete)
				return
			}

			require.NoError(t, err)
			assert.Len(t, ev.Events(), tt.wantEvents)
			assert.Equal(t, tt.wantSkipped, ev.SkippedEntries)
		})
	}
}

func TestParser_PreservesEventOrder(t *testing.T) {
	input := `{"tdx": {"uefi_event_logs": [
		{"type_name": "EV_IPL", "details": {"string": "first"}, "digests": []},
		{"type_name": "EV_IPL", "details": {"string": "second"}, "digests": []},
		{"type_name": "EV_IPL", "details": {"string": "third"}, "digests": []}
	]}}`

	ev, err := NewParser(testLogger()).Parse([]byte(input))
	require.NoError(t, err)

	var got []string
	for _, entry := range ev.Events() {
		got = append(got, entry.Details.String)
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestParser_TaggedEventDetails(t *testing.T) {
	input := `{"tdx": {"uefi_event_logs": [
		{"type_name": "EV_EVENT_TAG",
		 "details": {"unicode_name": "AAEL", "data": {"domain": "cryptpilot.alibabacloud.com", "operation": "load_config", "content": "abc"}},
		 "digests": [{"alg": "sha384", "digest": "00"}]}
	]}}`

	ev, err := NewParser(testLogger()).Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, ev.Events(), 1)

	entry := ev.Events()[0]
	require.NotNil(t, entry.Details.Data)
	assert.Equal(t, "AAEL", entry.Details.UnicodeName)
	assert.Equal(t, "cryptpilot.alibabacloud.com", entry.Details.Data.Domain)
	assert.Equal(t, "load_config", entry.Details.Data.Operation)
	assert.Equal(t, "abc", entry.Details.Data.Content)
}

func TestSupportedAlg(t *testing.T) {
	for _, alg := range []string{"sha1", "sha256", "sha384", "sha512", "SHA384"} {
		assert.True(t, SupportedAlg(alg), alg)
	}
	for _, alg := range []string{"", "md5", "sha3-256"} {
		assert.False(t, SupportedAlg(alg), alg)
	}
}
