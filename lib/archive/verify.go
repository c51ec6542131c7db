package archive

import (
	"errors"
	"io"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/onkernel/archiveguard/lib/archive/config"
	"github.com/onkernel/archiveguard/lib/archive/format"
	"github.com/onkernel/archiveguard/lib/archive/format/sevenzipfmt"
	"github.com/onkernel/archiveguard/lib/archive/link"
	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

// List reads every entry's metadata through the same format reader Extract
// uses. It does not validate entries and writes nothing to disk.
func List(archivePath string, cfg *config.SecurityConfig) (*ArchiveManifest, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	fr, detectedFormat, err := openFormatReader(archivePath, cfg)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	manifest := &ArchiveManifest{Format: detectedFormat.String()}

	for {
		raw, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, sevenzipfmt.ErrEncrypted) {
				return manifest, newErr(ErrEncryptedArchive, archivePath, err)
			}
			return manifest, newErr(ErrInvalidArchive, archivePath, err)
		}

		manifest.Entries = append(manifest.Entries, ManifestEntry{
			Path:             raw.RawPath,
			Kind:             raw.Kind.String(),
			UncompressedSize: raw.UncompressedSize,
			CompressedSize:   raw.CompressedSize,
			Mode:             raw.Mode,
			ModTime:          raw.ModTime,
			LinkTarget:       raw.LinkTarget,
		})
		manifest.TotalUncompressed += raw.UncompressedSize
		manifest.TotalCompressed += raw.CompressedSize

		if raw.Body != nil {
			io.Copy(io.Discard, raw.Body)
		}
	}

	return manifest, nil
}

// Verify runs the entry validator (without ever writing to disk) and
// collects a VerificationReport, per spec §4.8. Unlike Extract, a single
// entry failing validation does not stop the scan — every entry is
// checked so the caller sees the complete issue list in one pass.
func Verify(archivePath string, cfg *config.SecurityConfig) (*VerificationReport, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	fr, detectedFormat, err := openFormatReader(archivePath, cfg)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	root := safepath.VirtualRoot()
	cache := safepath.NewVirtualDirCache(root)
	resolver := link.NewResolver(root, caseInsensitiveSymlinkCheck())

	report := &VerificationReport{Format: detectedFormat.String()}

	for {
		raw, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			category := "invalid-archive"
			if errors.Is(err, sevenzipfmt.ErrEncrypted) {
				category = "encrypted-archive"
			}
			report.Issues = append(report.Issues, VerificationIssue{
				Severity: SeverityCritical,
				Category: category,
				Message:  err.Error(),
			})
			break
		}

		report.EntryCount++
		report.TotalUncompressed += raw.UncompressedSize
		report.TotalCompressed += raw.CompressedSize

		if raw.Body != nil {
			io.Copy(io.Discard, raw.Body)
		}

		validated, verr := validateEntry(raw, cfg, root, cache, resolver)
		if verr != nil {
			report.Issues = append(report.Issues, issueFor(raw.RawPath, verr))
			continue
		}

		if validated.Kind == format.File {
			if os.FileMode(raw.Mode).Perm()&worldWritableBit != 0 {
				report.Issues = append(report.Issues, VerificationIssue{
					Severity: SeverityWarning,
					Category: "suspicious-permissions",
					Path:     raw.RawPath,
					Message:  "entry is world-writable",
				})
			}
			if raw.Mode&0o7000 != 0 {
				report.Issues = append(report.Issues, VerificationIssue{
					Severity: SeverityWarning,
					Category: "suspicious-permissions",
					Path:     raw.RawPath,
					Message:  "entry carries setuid/setgid/sticky bits",
				})
			}
			if raw.CompressedSize > 0 {
				ratio := float64(raw.UncompressedSize) / float64(raw.CompressedSize)
				if ratio > cfg.MaxCompressionRatio*0.5 && ratio <= cfg.MaxCompressionRatio {
					report.Issues = append(report.Issues, VerificationIssue{
						Severity: SeverityWarning,
						Category: "unusual-compression-ratio",
						Path:     raw.RawPath,
						Message:  "compression ratio is high but under the configured threshold",
						Context:  map[string]string{"ratio": humanize.Ftoa(ratio)},
					})
				}
			}
			resolver.RecordExtracted(validated.SafePath)
		}
		if validated.Kind == format.Symlink {
			resolver.RecordSymlink(validated.SafePath.Rel())
			resolver.RecordExtracted(validated.SafePath)
		}
	}

	return report, nil
}

// issueFor classifies a validation error into a VerificationIssue per the
// severity mapping in spec §4.8: quota/path-traversal/link-escape/zip-bomb
// are Critical, everything else (permission/extension denials) is High.
func issueFor(path string, err error) VerificationIssue {
	var ae *Error
	severity := SeverityHigh
	category := "security-violation"

	if errors.As(err, &ae) {
		switch {
		case errors.Is(ae.Kind, ErrPathTraversal):
			severity, category = SeverityCritical, "path-traversal"
		case errors.Is(ae.Kind, ErrSymlinkEscape):
			severity, category = SeverityCritical, "symlink-escape"
		case errors.Is(ae.Kind, ErrHardlinkEscape):
			severity, category = SeverityCritical, "hardlink-escape"
		case errors.Is(ae.Kind, ErrQuotaExceeded):
			severity, category = SeverityCritical, "quota-exceeded"
		case errors.Is(ae.Kind, ErrZipBomb):
			severity, category = SeverityCritical, "zip-bomb"
		case errors.Is(ae.Kind, ErrInvalidPermissions):
			severity, category = SeverityHigh, "invalid-permissions"
		case errors.Is(ae.Kind, ErrSecurityViolation):
			severity, category = SeverityHigh, "security-violation"
		}
	}

	return VerificationIssue{
		Severity: severity,
		Category: category,
		Path:     path,
		Message:  err.Error(),
	}
}
