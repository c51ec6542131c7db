package archive

import (
	"io"
	"os"

	"github.com/onkernel/archiveguard/lib/archive/quota"
	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

// copyBufferSize is the shared reusable buffer size for streaming entry
// bodies to disk, per spec §4.6.
const copyBufferSize = 64 * 1024

// streamingWriter copies one entry's bytes through the pipeline's shared
// buffer into an atomically-permissioned file, enforcing quotas during the
// copy. Its only state is that buffer, allocated once by newStreamingWriter
// and reused for every entry of the run.
type streamingWriter struct {
	buf []byte
}

func newStreamingWriter() *streamingWriter {
	return &streamingWriter{buf: make([]byte, copyBufferSize)}
}

// writeFile creates sp.Abs() and streams body into it, checking acct after
// every buffer. declaredCompressedSize is the entry's known (or declared)
// compressed size, used as the ratio check's denominator throughout the
// copy — this is what lets a zip bomb abort before the whole body is
// written, per spec §3 invariant I6. Formats that don't report a
// per-entry compressed size (TAR) pass 0, which makes the accountant skip
// the ratio check for that entry and fall back to the total-bytes quota.
// On any quota violation the partially written file is removed and the
// violation is returned.
func (w *streamingWriter) writeFile(sp safepath.SafePath, body io.Reader, mode os.FileMode, acct *quota.Accountant, declaredCompressedSize int64) (int64, quota.Violation, error) {
	f, err := createFile(sp.Abs(), mode)
	if err != nil {
		return 0, quota.ViolationNone, err
	}

	var written int64
	for {
		n, readErr := body.Read(w.buf)
		if n > 0 {
			if _, writeErr := f.Write(w.buf[:n]); writeErr != nil {
				f.Close()
				os.Remove(sp.Abs())
				return written, quota.ViolationNone, writeErr
			}
			written += int64(n)

			if v := acct.CheckDuringCopy(written, declaredCompressedSize); v != quota.ViolationNone {
				f.Close()
				os.Remove(sp.Abs())
				return written, v, nil
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			os.Remove(sp.Abs())
			return written, quota.ViolationNone, readErr
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(sp.Abs())
		return written, quota.ViolationNone, err
	}
	return written, quota.ViolationNone, nil
}
