package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	kpflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/pgzip"
	"github.com/nrednav/cuid2"
	"github.com/samber/lo"

	"github.com/onkernel/archiveguard/lib/archive/config"
	"github.com/onkernel/archiveguard/lib/archive/format"
	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

func init() {
	// Prefer klauspost/compress's faster flate implementation for ZIP
	// deflate entries over the standard library's compress/flate.
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kpflate.NewWriter(w, flate.DefaultCompression)
	})
}

// Create implements the `create_archive` operation named in spec §6: walk
// sources, and write an uncompressed or gzip TAR, or a ZIP archive, to dest.
// Format/codec is selected by dest's filename suffix via format.Detect, same
// as Extract; TAR suffixes for bzip2, xz and zstd are rejected with
// ErrUnsupportedFormat.
func Create(dest string, sources []string, cfg *config.CreationConfig) (*CreationReport, error) {
	if cfg == nil {
		cfg = config.DefaultCreationConfig()
	}

	fmtKind, codec, ok := format.Detect(dest)
	if !ok {
		return nil, newErr(ErrUnsupportedFormat, dest, nil)
	}
	if fmtKind == format.FormatTar && codec != format.CodecNone && codec != format.CodecGzip {
		return nil, newErr(ErrUnsupportedFormat, dest, fmt.Errorf("creation supports only uncompressed and gzip TAR"))
	}

	out, err := os.Create(dest)
	if err != nil {
		return nil, newErr(ErrInvalidArchive, dest, err)
	}
	defer out.Close()

	start := time.Now()
	report := &CreationReport{RunID: cuid2.Generate()}

	switch fmtKind {
	case format.FormatTar:
		if err := createTar(out, codec, sources, cfg, report); err != nil {
			return report, err
		}
	case format.FormatZip:
		if err := createZip(out, sources, cfg, report); err != nil {
			return report, err
		}
	default:
		return nil, newErr(ErrUnsupportedFormat, dest, fmt.Errorf("creation only supports TAR family and ZIP"))
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report, nil
}

func createTar(out io.Writer, codec format.Codec, sources []string, cfg *config.CreationConfig, report *CreationReport) error {
	w := io.Writer(out)
	var closers []io.Closer

	if codec == format.CodecGzip {
		gw := pgzip.NewWriter(out)
		w = gw
		closers = append(closers, gw)
	}

	tw := tar.NewWriter(w)
	closers = append(closers, tw)

	err := walkSources(sources, cfg, func(relName string, info fs.FileInfo, link string, body io.Reader) error {
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = relName
		if info.IsDir() {
			hdr.Name += "/"
		}
		if !cfg.PreservePermissions {
			hdr.Mode = defaultMode(info.IsDir())
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		countEntry(report, info, link)

		if body != nil {
			n, err := io.Copy(tw, body)
			if err != nil {
				return err
			}
			report.BytesWritten += n
			report.UncompressedBytes += n
		}
		return nil
	})

	closeErr := closeAll(closers)
	if err != nil {
		return newErr(ErrInvalidArchive, "", err)
	}
	if closeErr != nil {
		return newErr(ErrInvalidArchive, "", closeErr)
	}
	return nil
}

func createZip(out io.Writer, sources []string, cfg *config.CreationConfig, report *CreationReport) error {
	zw := zip.NewWriter(out)

	err := walkSources(sources, cfg, func(relName string, info fs.FileInfo, link string, body io.Reader) error {
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = relName
		if info.IsDir() {
			hdr.Name += "/"
			hdr.Method = zip.Store
		} else {
			hdr.Method = zip.Deflate
		}
		if !cfg.PreservePermissions {
			hdr.SetMode(defaultMode(info.IsDir()))
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		countEntry(report, info, link)

		if link != "" {
			n, err := w.Write([]byte(link))
			report.BytesWritten += int64(n)
			return err
		}
		if body != nil {
			n, err := io.Copy(w, body)
			if err != nil {
				return err
			}
			report.BytesWritten += n
			report.UncompressedBytes += n
		}
		return nil
	})

	closeErr := zw.Close()
	if err != nil {
		return newErr(ErrInvalidArchive, "", err)
	}
	if closeErr != nil {
		return newErr(ErrInvalidArchive, "", closeErr)
	}
	return nil
}

func countEntry(report *CreationReport, info fs.FileInfo, link string) {
	switch {
	case info.IsDir():
		report.DirectoriesAdded++
	case link != "":
		report.SymlinksAdded++
	default:
		report.FilesAdded++
	}
}

func defaultMode(isDir bool) int64 {
	if isDir {
		return 0o755
	}
	return 0o644
}

// entryVisitor receives one filesystem entry during the source walk:
// relName is its archive-relative name, info its fs.FileInfo, link its
// symlink target (empty for non-symlinks), and body its content reader
// (nil for directories and symlinks).
type entryVisitor func(relName string, info fs.FileInfo, link string, body io.Reader) error

// walkSources implements the directory-traversal + glob-exclusion walker
// spec §1 names as the creation side's external collaborator, supplied
// here directly since archive creation is a named core operation (§6).
// Every stored name is run through normalizeStoredName, which rejects
// names this engine's extractor would refuse as traversal (see its doc for
// what it does not check) — toward the round-trip property in spec §8.
func walkSources(sources []string, cfg *config.CreationConfig, visit entryVisitor) error {
	excluded := lo.Filter(cfg.Exclude, func(pattern string, _ int) bool { return pattern != "" })

	for _, src := range sources {
		base := filepath.Base(filepath.Clean(src))
		if _, err := os.Lstat(src); err != nil {
			return err
		}

		walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			relName := base
			if rel != "." {
				relName = filepath.ToSlash(filepath.Join(base, rel))
			}
			normalized, ok := normalizeStoredName(relName)
			if !ok {
				return fmt.Errorf("source path %q would not round-trip through extraction: invalid component", relName)
			}
			relName = normalized

			if matchesAny(relName, excluded) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}

			if info.Mode()&os.ModeSymlink != 0 {
				if cfg.FollowSymlinks {
					target, err := os.Stat(path)
					if err != nil {
						return err
					}
					return emitFile(path, relName, target, visit)
				}
				link, err := os.Readlink(path)
				if err != nil {
					return err
				}
				return visit(relName, info, link, nil)
			}

			if info.IsDir() {
				return visit(relName, info, "", nil)
			}

			return emitFile(path, relName, info, visit)
		})
		if walkErr != nil {
			return walkErr
		}
	}
	return nil
}

func emitFile(path, relName string, info fs.FileInfo, visit entryVisitor) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return visit(relName, info, "", f)
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(name)); ok {
			return true
		}
	}
	return false
}

func closeAll(closers []io.Closer) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// normalizeStoredName guards against a pathological source tree producing
// a name that would fail this engine's own extraction-side validation: it
// rejects NUL bytes, absolute prefixes and empty, "." or ".." components.
// Path depth and banned components are not checked here (MaxPathDepth 0
// and no IsBanned func disable both). It is not a security boundary the
// way safepath.Normalize is on extraction, since sources are trusted local
// files.
func normalizeStoredName(name string) (string, bool) {
	res, violation := safepath.Normalize(name, safepath.NormalizeOptions{AllowAbsolutePaths: false, MaxPathDepth: 0})
	return res.Rel, violation == safepath.ViolationNone
}
