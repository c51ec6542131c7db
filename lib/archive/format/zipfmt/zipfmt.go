// Package zipfmt adapts archive/zip to the format.Reader interface. The
// standard library only decodes Store and Deflate natively; this package
// registers additional decompressors for Bzip2 and Zstd. No Deflate64
// (method 9) decompressor is registered, so opening such an entry fails
// with zip.ErrAlgorithm.
package zipfmt

import (
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/zstd"

	"github.com/onkernel/archiveguard/lib/archive/format"
)

// Method IDs beyond what archive/zip natively decodes (APPNOTE.TXT §4.4.5).
const (
	methodBzip2 = 12
	methodZstd  = 93
)

func init() {
	zip.RegisterDecompressor(methodBzip2, func(r io.Reader) io.ReadCloser {
		return io.NopCloser(bzip2.NewReader(r))
	})
	zip.RegisterDecompressor(methodZstd, func(r io.Reader) io.ReadCloser {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return io.NopCloser(errReader{err})
		}
		return zstdReadCloser{zr}
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error { z.Decoder.Close(); return nil }

type reader struct {
	zr      *zip.Reader
	closer  io.Closer
	entries []*zip.File
	idx     int
	cur     io.ReadCloser
}

// Open builds a format.Reader over a ZIP container. ra+size must expose the
// whole archive for random access to the central directory; closer (may be
// nil) is released when the Reader is closed, e.g. the *os.File backing ra.
func Open(ra io.ReaderAt, size int64, closer io.Closer) (format.Reader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("zip reader: %w", err)
	}
	return &reader{zr: zr, closer: closer, entries: zr.File}, nil
}

func (r *reader) Next() (format.RawEntry, error) {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	if r.idx >= len(r.entries) {
		return format.RawEntry{}, io.EOF
	}
	f := r.entries[r.idx]
	r.idx++

	kind := format.File
	mode := f.Mode()
	isDir := f.FileInfo().IsDir()
	linkTarget := ""

	switch {
	case isDir:
		kind = format.Directory
	case mode&fs.ModeSymlink != 0: // Unix external attrs decoded by archive/zip into fs.ModeSymlink
		kind = format.Symlink
		rc, err := f.Open()
		if err != nil {
			return format.RawEntry{}, fmt.Errorf("open symlink entry %s: %w", f.Name, err)
		}
		target, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return format.RawEntry{}, fmt.Errorf("read symlink target %s: %w", f.Name, err)
		}
		linkTarget = string(target)
	}

	// Permission bits are trusted only from Unix-origin entries; every other
	// producer gets the default 0644/0755.
	const creatorUnix = 3
	perm := uint32(0o644)
	if isDir {
		perm = 0o755
	}
	if f.CreatorVersion>>8 == creatorUnix {
		perm = uint32(mode.Perm())
	}

	var body io.Reader
	if kind == format.File {
		rc, err := f.Open()
		if err != nil {
			return format.RawEntry{}, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		r.cur = rc
		body = rc
	}

	return format.RawEntry{
		RawPath:          f.Name,
		Kind:             kind,
		UncompressedSize: int64(f.UncompressedSize64),
		CompressedSize:   int64(f.CompressedSize64),
		Mode:             perm,
		ModTime:          f.Modified,
		LinkTarget:       linkTarget,
		Body:             body,
	}, nil
}

func (r *reader) Close() error {
	if r.cur != nil {
		r.cur.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
