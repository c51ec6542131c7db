// Package quota implements the running-total accountant that enforces
// spec invariant I5: totals never exceed their configured maxima at the
// point of any write, and I6: the compression ratio never exceeds its
// configured maximum.
package quota

import "math"

// Accountant tracks per-archive running totals. It is owned exclusively by
// one pipeline run; no locking is needed.
type Accountant struct {
	maxFileSize  int64
	maxTotalSize int64
	maxFileCount int64
	maxRatio     float64

	filesSeen  int64
	bytesTotal int64
}

// New creates an Accountant for the given quotas. Pass math.MaxInt64 (or
// config.Unlimited) / math.Inf(1) to disable a given check.
func New(maxFileSize, maxTotalSize, maxFileCount int64, maxRatio float64) *Accountant {
	return &Accountant{
		maxFileSize:  maxFileSize,
		maxTotalSize: maxTotalSize,
		maxFileCount: maxFileCount,
		maxRatio:     maxRatio,
	}
}

// Violation identifies which quota a check failed against.
type Violation string

const (
	ViolationNone         Violation = ""
	ViolationFiles        Violation = "files"
	ViolationPerFileBytes Violation = "per_file_bytes"
	ViolationTotalBytes   Violation = "total_bytes"
	ViolationRatio        Violation = "ratio"
)

// PreCheck validates a file entry before it is opened: the file count
// ceiling, the entry's declared size against the per-file cap, and the
// declared size against the remaining total budget.
func (a *Accountant) PreCheck(declaredSize int64) Violation {
	if a.filesSeen+1 > a.maxFileCount {
		return ViolationFiles
	}
	if declaredSize > a.maxFileSize {
		return ViolationPerFileBytes
	}
	if a.bytesTotal+declaredSize > a.maxTotalSize {
		return ViolationTotalBytes
	}
	return ViolationNone
}

// CheckDuringCopy is called after each buffer is written to disk. It
// recomputes the running total and, when compressedSoFar is known and
// positive, the current entry's compression ratio so far (writtenSoFar
// over compressedSoFar; earlier files do not count). A compressedSoFar of
// 0 or less means the format does not report a per-entry compressed size
// (e.g. TAR, where compression applies to the whole stream, not a single
// entry) — the ratio check is skipped in that case and the total-bytes
// quota above is the only defense against that entry's body.
func (a *Accountant) CheckDuringCopy(writtenSoFar, compressedSoFar int64) Violation {
	if a.bytesTotal+writtenSoFar > a.maxTotalSize {
		return ViolationTotalBytes
	}
	if math.IsInf(a.maxRatio, 1) || compressedSoFar <= 0 {
		return ViolationNone
	}
	ratio := float64(writtenSoFar) / float64(compressedSoFar)
	if ratio > a.maxRatio {
		return ViolationRatio
	}
	return ViolationNone
}

// CommitFile records a successfully extracted file's final size and
// increments the file counter. Call once per file, after the copy loop
// completes without a quota violation.
func (a *Accountant) CommitFile(finalSize int64) {
	a.filesSeen++
	a.bytesTotal += finalSize
}

// FilesSeen returns the number of files committed so far.
func (a *Accountant) FilesSeen() int64 { return a.filesSeen }

// BytesTotal returns the cumulative committed bytes so far.
func (a *Accountant) BytesTotal() int64 { return a.bytesTotal }
