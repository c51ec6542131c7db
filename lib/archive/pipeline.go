// Package archive implements the extraction and creation pipeline (C9),
// tying the path/link validators (C2-C4, C7) to the streaming writer (C8)
// with running quotas (C5), per spec §4.7.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/nrednav/cuid2"
	"go.opentelemetry.io/otel/metric"

	"github.com/onkernel/archiveguard/lib/archive/config"
	"github.com/onkernel/archiveguard/lib/archive/format"
	"github.com/onkernel/archiveguard/lib/archive/format/sevenzipfmt"
	"github.com/onkernel/archiveguard/lib/archive/format/tarfmt"
	"github.com/onkernel/archiveguard/lib/archive/format/zipfmt"
	"github.com/onkernel/archiveguard/lib/archive/link"
	"github.com/onkernel/archiveguard/lib/archive/quota"
	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

// ProgressFunc is invoked synchronously on the extraction thread between
// entries, per spec §5. It must not block.
type ProgressFunc func(path string, kind format.EntryKind)

// ExtractOptions carries the optional collaborators Extract accepts beyond
// the archive path, output directory and security policy.
type ExtractOptions struct {
	Logger   *slog.Logger
	Meter    metric.Meter
	Progress ProgressFunc
	// Abort is consulted at entry boundaries only: closing it stops the
	// extraction before the next entry is read. The copy loop does not
	// consult it, so an entry being copied when it closes is written in
	// full first.
	Abort <-chan struct{}
}

// Extract runs the pipeline described in spec §4.7: it opens a format
// reader over archivePath, validates and dispatches every entry into
// outputDir, and returns a report of what was done. cfg may be nil, in
// which case config.Default() is used.
func Extract(archivePath, outputDir string, cfg *config.SecurityConfig, opts ExtractOptions) (*ExtractionReport, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := newMetrics(opts.Meter)

	start := time.Now()
	report := &ExtractionReport{RunID: cuid2.Generate()}

	root, err := safepath.Root(outputDir)
	if err != nil {
		return report, newErr(ErrInvalidArchive, outputDir, err)
	}

	fr, detectedFormat, err := openFormatReader(archivePath, cfg)
	if err != nil {
		return report, err
	}
	defer fr.Close()

	cache := safepath.NewDirCache(root)
	acct := quota.New(int64(cfg.MaxFileSize), int64(cfg.MaxTotalSize), int64(cfg.MaxFileCount), cfg.MaxCompressionRatio)
	resolver := link.NewResolver(root, caseInsensitiveSymlinkCheck())
	writer := newStreamingWriter()

	logger = logger.With("run_id", report.RunID)
	logger.Info("extraction started", "archive", archivePath, "format", detectedFormat.String(), "root", root)

	for {
		select {
		case <-opts.Abort:
			report.DurationMs = time.Since(start).Milliseconds()
			return report, newErr(ErrInvalidArchive, archivePath, errors.New("extraction aborted"))
		default:
		}

		raw, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.DurationMs = time.Since(start).Milliseconds()
			metrics.recordExtraction(report, false)
			if errors.Is(err, sevenzipfmt.ErrEncrypted) {
				return report, newErr(ErrEncryptedArchive, archivePath, err)
			}
			return report, newErr(ErrInvalidArchive, archivePath, err)
		}

		validated, err := validateEntry(raw, cfg, root, cache, resolver)
		if err != nil {
			report.DurationMs = time.Since(start).Milliseconds()
			metrics.recordExtraction(report, false)
			logger.Warn("extraction aborted by validation failure", "path", raw.RawPath, "error", err)
			return report, err
		}

		if err := dispatch(validated, raw, cache, resolver, acct, writer, report); err != nil {
			report.DurationMs = time.Since(start).Milliseconds()
			metrics.recordExtraction(report, false)
			logger.Warn("extraction aborted during dispatch", "path", raw.RawPath, "error", err)
			return report, err
		}

		if opts.Progress != nil {
			opts.Progress(validated.SafePath.Rel(), validated.Kind)
		}
	}

	report.DurationMs = time.Since(start).Milliseconds()
	metrics.recordExtraction(report, true)
	logger.Info("extraction completed", "files", report.FilesExtracted, "bytes", report.BytesWritten, "duration_ms", report.DurationMs)
	return report, nil
}

// dispatch implements the kind switch in spec §4.7's pipeline algorithm.
func dispatch(v ValidatedEntry, raw format.RawEntry, cache *safepath.DirCache, resolver *link.Resolver, acct *quota.Accountant, writer *streamingWriter, report *ExtractionReport) error {
	switch v.Kind {
	case format.Directory:
		if err := cache.Ensure(v.SafePath.Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}
		report.DirectoriesCreated++
		return nil

	case format.File:
		if violation := acct.PreCheck(v.UncompressedSize); violation != quota.ViolationNone {
			return newQuotaErr(mapQuotaViolation(violation), raw.RawPath, nil)
		}
		if err := cache.Ensure(v.SafePath.Dir().Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}

		written, violation, err := writer.writeFile(v.SafePath, raw.Body, v.Mode, acct, v.CompressedSize)
		if violation == quota.ViolationRatio {
			return &Error{Kind: ErrZipBomb, Path: raw.RawPath}
		}
		if violation != quota.ViolationNone {
			return newQuotaErr(mapQuotaViolation(violation), raw.RawPath, nil)
		}
		if err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}

		acct.CommitFile(written)
		resolver.RecordExtracted(v.SafePath)
		report.FilesExtracted++
		report.BytesWritten += written
		return nil

	case format.Symlink:
		if err := cache.Ensure(v.SafePath.Dir().Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}
		os.Remove(v.SafePath.Abs())
		if err := os.Symlink(v.LinkTarget, v.SafePath.Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}
		resolver.RecordSymlink(v.SafePath.Rel())
		resolver.RecordExtracted(v.SafePath)
		report.SymlinksCreated++
		return nil

	case format.Hardlink:
		sourceSp, ok := resolver.ResolveHardlinkTarget(v.LinkTarget)
		if !ok {
			return newErr(ErrHardlinkEscape, raw.RawPath, nil)
		}
		if err := cache.Ensure(v.SafePath.Dir().Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}
		os.Remove(v.SafePath.Abs())
		if err := os.Link(sourceSp.Abs(), v.SafePath.Abs()); err != nil {
			return newErr(ErrInvalidArchive, raw.RawPath, err)
		}
		report.HardlinksCreated++
		return nil

	default:
		return newErr(ErrInvalidArchive, raw.RawPath, fmt.Errorf("unhandled entry kind %v", v.Kind))
	}
}

func mapQuotaViolation(v quota.Violation) Resource {
	switch v {
	case quota.ViolationFiles:
		return ResourceFiles
	case quota.ViolationPerFileBytes:
		return ResourcePerFileBytes
	case quota.ViolationTotalBytes:
		return ResourceTotalBytes
	default:
		return ResourceTotalBytes
	}
}

// openFormatReader detects archivePath's format/codec by suffix and opens
// the matching format.Reader, per spec §6.
func openFormatReader(archivePath string, cfg *config.SecurityConfig) (format.Reader, format.Format, error) {
	fmtKind, codec, ok := format.Detect(archivePath)
	if !ok {
		return nil, format.FormatUnknown, newErr(ErrUnsupportedFormat, archivePath, nil)
	}

	switch fmtKind {
	case format.FormatTar:
		f, err := os.Open(archivePath)
		if err != nil {
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		r, err := tarfmt.Open(f, codec)
		if err != nil {
			f.Close()
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		return wrapCloser(r, f), fmtKind, nil

	case format.FormatZip:
		f, err := os.Open(archivePath)
		if err != nil {
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		r, err := zipfmt.Open(f, info.Size(), f)
		if err != nil {
			f.Close()
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		return r, fmtKind, nil

	case format.Format7z:
		r, err := sevenzipfmt.Open(archivePath, int64(cfg.MaxTotalSize))
		if err != nil {
			return nil, fmtKind, newErr(ErrInvalidArchive, archivePath, err)
		}
		return r, fmtKind, nil

	default:
		return nil, fmtKind, newErr(ErrUnsupportedFormat, archivePath, nil)
	}
}

// closerWrap adds an extra io.Closer (the underlying *os.File) to a
// format.Reader whose own Close doesn't own the file handle.
type closerWrap struct {
	format.Reader
	extra io.Closer
}

func (c closerWrap) Close() error {
	err := c.Reader.Close()
	if cerr := c.extra.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func wrapCloser(r format.Reader, extra io.Closer) format.Reader {
	return closerWrap{Reader: r, extra: extra}
}

// caseInsensitiveSymlinkCheck mirrors spec §9's platform split: case-
// insensitive symlink-prefix matching is needed on filesystems that fold
// case, which on this engine's supported build targets means non-Unix.
func caseInsensitiveSymlinkCheck() bool { return caseInsensitiveFS }
