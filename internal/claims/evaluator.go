package claims

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/enterprise/cvm-trust-verifier/internal/evidence"
	"github.com/enterprise/cvm-trust-verifier/internal/store"
)

// CryptpilotDomain is the tagged-event domain recorded by the disk
// encryption agent during boot.
const CryptpilotDomain = "cryptpilot.alibabacloud.com"

const (
	opLoadConfig    = "load_config"
	opFDERootfsHash = "fde_rootfs_hash"
)

// bootComponents are the measured boot stages required for the executables
// claim. Grub and shim appear as UEFI boot applications; kernel and initrd
// as IPL events.
var bootComponents = []struct {
	name string
	ipl  bool
	text string
}{
	{name: "grub"},
	{name: "shim"},
	{name: "kernel", ipl: true, text: "Kernel"},
	{name: "initrd", ipl: true, text: "Initrd"},
}

// Evaluator computes the trust vector for parsed evidence against a
// reference store view. It is state-free; the same inputs always produce
// the same vector.
type Evaluator struct {
	logger  logrus.FieldLogger
	metrics *Metrics
}

// NewEvaluator creates a claims evaluator.
func NewEvaluator(logger logrus.FieldLogger, metrics *Metrics) *Evaluator {
	return &Evaluator{logger: logger, metrics: metrics}
}

// Evaluate computes the three trust claims. Missing evidence components and
// unmatched digests degrade only the affected claim to its pessimistic
// default; nothing here aborts the run.
func (e *Evaluator) Evaluate(ev *evidence.Evidence, view store.View) TrustVector {
	vector := TrustVector{
		Executables:   e.evaluateExecutables(ev, view),
		Configuration: e.evaluateConfiguration(ev, view),
		FileSystem:    e.evaluateFileSystem(ev, view),
	}

	if e.metrics != nil {
		e.metrics.RecordEvaluation(vector)
	}

	e.logger.WithFields(logrus.Fields{
		"executables":   vector.Executables.Code(),
		"configuration": vector.Configuration.Code(),
		"file_system":   vector.FileSystem.Code(),
	}).Info("Trust claims evaluated")

	return vector
}

// evaluateExecutables passes iff every boot component is present in the
// event log and its reported digest is accepted by the reference store.
func (e *Evaluator) evaluateExecutables(ev *evidence.Evidence, view store.View) Claim {
	for _, comp := range bootComponents {
		var found *evidence.Component
		var err error
		if comp.ipl {
			found, err = ev.FindIPLComponent(comp.text)
		} else {
			found, err = ev.FindBootComponent(comp.name)
		}
		if err != nil {
			e.logger.WithField("component", comp.name).WithError(err).Warn("Boot component not found")
			return Unverified(ExecutablesUnverified)
		}
		key := measurementKey(comp.name, string(found.Digest.Alg))
		if !view.Contains(key, found.Digest.Value) {
			e.logger.WithFields(logrus.Fields{
				"component": comp.name,
				"key":       key,
			}).Warn("Boot component digest not accepted")
			return Unverified(ExecutablesUnverified)
		}
	}
	return Verified(ExecutablesApproved)
}

// evaluateConfiguration passes iff the kernel command line digest, the
// cryptpilot load_config content, and the fde_rootfs_hash content are all
// accepted by the reference store.
func (e *Evaluator) evaluateConfiguration(ev *evidence.Evidence, view store.View) Claim {
	cmdline, err := ev.FindCmdlineEntry()
	if err != nil {
		e.logger.WithError(err).Warn("Kernel command line entry not found")
		return Unverified(ConfigurationUnverified)
	}
	key := measurementKey("kernel_cmdline", string(cmdline.Digest.Alg))
	if !view.Contains(key, cmdline.Digest.Value) {
		e.logger.WithField("key", key).Warn("Kernel command line digest not accepted")
		return Unverified(ConfigurationUnverified)
	}

	if !e.taggedContentAccepted(ev, view, opLoadConfig) {
		return Unverified(ConfigurationUnverified)
	}
	if !e.taggedContentAccepted(ev, view, opFDERootfsHash) {
		return Unverified(ConfigurationUnverified)
	}
	return Verified(ConfigurationApproved)
}

// evaluateFileSystem passes iff the fde_rootfs_hash check succeeds. The
// check is shared with the configuration claim on purpose: filesystem
// integrity and configuration are distinct dimensions of the output
// taxonomy even when backed by the same raw evidence.
func (e *Evaluator) evaluateFileSystem(ev *evidence.Evidence, view store.View) Claim {
	if !e.taggedContentAccepted(ev, view, opFDERootfsHash) {
		return Unverified(FileSystemUnverified)
	}
	return Verified(FileSystemApproved)
}

func (e *Evaluator) taggedContentAccepted(ev *evidence.Evidence, view store.View, operation string) bool {
	entry, err := ev.FindTaggedEvent(CryptpilotDomain, operation)
	if err != nil {
		e.logger.WithField("operation", operation).WithError(err).Warn("Tagged event not found")
		return false
	}
	key := eventLogKey(CryptpilotDomain, operation)
	if !view.Contains(key, entry.Details.Data.Content) {
		e.logger.WithFields(logrus.Fields{
			"operation": operation,
			"key":       key,
		}).Warn("Tagged event content not accepted")
		return false
	}
	return true
}

func measurementKey(component, alg string) string {
	return fmt.Sprintf("measurement.%s.%s", component, alg)
}

func eventLogKey(domain, operation string) string {
	return fmt.Sprintf("AA.eventlog.%s.%s", domain, operation)
}
