package evidence

import (
	"strings"
)

// AAELUnicodeName is the unicode_name carried by attestation-agent event
// log entries.
const AAELUnicodeName = "AAEL"

// CmdlinePrefixes is the prioritized list of EV_IPL string prefixes that mark
// a kernel command line measurement. The first prefix with any match wins,
// even if a later prefix matches an earlier-positioned entry; callers must
// not reorder it.
var CmdlinePrefixes = []string{
	"grub_cmd linux",
	"kernel_cmdline",
	"grub_kernel_cmdline",
}

// Component pairs a matched event log entry with its reported digest.
type Component struct {
	Entry  EventLogEntry
	Digest Digest
}

// FindBootComponent returns the first EV_EFI_BOOT_SERVICES_APPLICATION entry
// whose device paths contain labelSubstring (e.g. "grub", "shim"), paired
// with its reported digest.
func (e *Evidence) FindBootComponent(labelSubstring string) (*Component, error) {
	for _, entry := range e.Events() {
		if EventType(entry.TypeName) != EventTypeBootServicesApp {
			continue
		}
		for _, path := range entry.Details.DevicePaths {
			if strings.Contains(path, labelSubstring) {
				d, ok := entry.PrimaryDigest()
				if !ok {
					return nil, ErrNoDigest
				}
				return &Component{Entry: entry, Digest: d}, nil
			}
		}
	}
	return nil, &NotFoundError{Query: "boot component", Want: labelSubstring}
}

// FindIPLComponent returns the first EV_IPL entry whose string field contains
// textSubstring (e.g. "Kernel", "Initrd"), paired with its reported digest.
func (e *Evidence) FindIPLComponent(textSubstring string) (*Component, error) {
	for _, entry := range e.Events() {
		if EventType(entry.TypeName) != EventTypeIPL {
			continue
		}
		if strings.Contains(entry.Details.String, textSubstring) {
			d, ok := entry.PrimaryDigest()
			if !ok {
				return nil, ErrNoDigest
			}
			return &Component{Entry: entry, Digest: d}, nil
		}
	}
	return nil, &NotFoundError{Query: "ipl component", Want: textSubstring}
}

// FindCmdlineEntry returns the first EV_IPL entry whose string field starts
// with a prefix from CmdlinePrefixes. Prefixes are tried in priority order;
// the scan over the event sequence restarts for each prefix.
func (e *Evidence) FindCmdlineEntry() (*Component, error) {
	for _, prefix := range CmdlinePrefixes {
		for _, entry := range e.Events() {
			if EventType(entry.TypeName) != EventTypeIPL {
				continue
			}
			if strings.HasPrefix(entry.Details.String, prefix) {
				d, ok := entry.PrimaryDigest()
				if !ok {
					return nil, ErrNoDigest
				}
				return &Component{Entry: entry, Digest: d}, nil
			}
		}
	}
	return nil, &NotFoundError{Query: "cmdline entry", Want: strings.Join(CmdlinePrefixes, "|")}
}

// FindTaggedEvent returns the first AAEL-tagged EV_EVENT_TAG entry whose data
// matches domain and operation exactly.
func (e *Evidence) FindTaggedEvent(domain, operation string) (*EventLogEntry, error) {
	for _, entry := range e.Events() {
		if EventType(entry.TypeName) != EventTypeTag {
			continue
		}
		if entry.Details.UnicodeName != AAELUnicodeName || entry.Details.Data == nil {
			continue
		}
		if entry.Details.Data.Domain == domain && entry.Details.Data.Operation == operation {
			return &entry, nil
		}
	}
	return nil, &NotFoundError{Query: "tagged event", Want: domain + "/" + operation}
}
