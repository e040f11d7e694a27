package refvalue

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	// ErrImageUnreadable indicates the image path does not resolve to a
	// readable image tree.
	ErrImageUnreadable = errors.New("image unreadable")

	// ErrEmptyOutput indicates extraction produced no measurements.
	// Always fatal; an empty reference document must never be registered.
	ErrEmptyOutput = errors.New("extraction produced no measurements")

	// ErrUnsupportedAlgorithm indicates the digest algorithm is unknown.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)

// DefaultAlgorithm is used when no digest algorithm is configured.
const DefaultAlgorithm = "sha384"

// bootArtifacts maps measurement component names to the glob patterns that
// locate them under a mounted image root. A pattern list is searched in
// order; every match contributes an accepted digest for the component.
var bootArtifacts = map[string][]string{
	"grub": {
		"boot/efi/EFI/*/grubx64.efi",
		"boot/efi/EFI/*/grubaa64.efi",
	},
	"shim": {
		"boot/efi/EFI/BOOT/BOOTX64.EFI",
		"boot/efi/EFI/*/shimx64.efi",
	},
	"kernel": {
		"boot/vmlinuz-*",
	},
	"initrd": {
		"boot/initramfs-*.img",
		"boot/initrd.img-*",
	},
}

// cmdlineSources are candidate locations of the kernel command line inside
// the image, tried in order; the first readable one is measured.
var cmdlineSources = []string{
	"boot/grub2/kernel_cmdline",
	"etc/kernel/cmdline",
	"proc/cmdline",
}

// Extractor computes the expected measurements of a trusted disk image and
// produces the reference-value provenance document.
type Extractor struct {
	fs     afero.Fs
	alg    string
	logger logrus.FieldLogger
}

// NewExtractor creates an extractor over fs using the given digest
// algorithm (DefaultAlgorithm when alg is empty).
func NewExtractor(fs afero.Fs, alg string, logger logrus.FieldLogger) (*Extractor, error) {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	if _, err := newHash(alg); err != nil {
		return nil, err
	}
	return &Extractor{fs: fs, alg: strings.ToLower(alg), logger: logger}, nil
}

// Algorithm returns the digest algorithm used for extraction.
func (e *Extractor) Algorithm() string {
	return e.alg
}

// Extract walks the mounted image at imageRoot and returns the provenance
// document holding the reference measurements. Fails with ErrImageUnreadable
// when the root is missing and ErrEmptyOutput when nothing was measured.
func (e *Extractor) Extract(imageRoot string) (*Document, error) {
	start := time.Now()

	info, err := e.fs.Stat(imageRoot)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrImageUnreadable, imageRoot)
	}

	ref := Reference{}

	for _, name := range sortedComponents() {
		digests, err := e.measureArtifact(imageRoot, bootArtifacts[name])
		if err != nil {
			return nil, err
		}
		if len(digests) == 0 {
			e.logger.WithField("component", name).Warn("No artifact found for component")
			continue
		}
		key := fmt.Sprintf("measurement.%s.%s", name, e.alg)
		ref[key] = digests
	}

	if digest, ok := e.measureCmdline(imageRoot); ok {
		ref[fmt.Sprintf("measurement.kernel_cmdline.%s", e.alg)] = []string{digest}
	}

	if len(ref) == 0 {
		return nil, fmt.Errorf("%w: image %s", ErrEmptyOutput, imageRoot)
	}

	e.logger.WithFields(logrus.Fields{
		"image":    imageRoot,
		"alg":      e.alg,
		"keys":     len(ref),
		"duration": time.Since(start),
	}).Info("Reference value extraction completed")

	return NewDocument(ref)
}

func (e *Extractor) measureArtifact(imageRoot string, patterns []string) ([]string, error) {
	var digests []string
	for _, pattern := range patterns {
		matches, err := afero.Glob(e.fs, filepath.Join(imageRoot, pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %s: %v", ErrImageUnreadable, pattern, err)
		}
		sort.Strings(matches)
		for _, match := range matches {
			digest, err := e.hashFile(match)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrImageUnreadable, match, err)
			}
			digests = appendUnique(digests, digest)
		}
	}
	return digests, nil
}

func (e *Extractor) measureCmdline(imageRoot string) (string, bool) {
	for _, source := range cmdlineSources {
		data, err := afero.ReadFile(e.fs, filepath.Join(imageRoot, source))
		if err != nil {
			continue
		}
		h, _ := newHash(e.alg)
		h.Write([]byte(strings.TrimSpace(string(data))))
		return hex.EncodeToString(h.Sum(nil)), true
	}
	e.logger.Warn("No kernel command line source found in image")
	return "", false
}

func (e *Extractor) hashFile(path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := newHash(e.alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(alg string) (hash.Hash, error) {
	switch strings.ToLower(alg) {
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func sortedComponents() []string {
	names := make([]string, 0, len(bootArtifacts))
	for name := range bootArtifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
