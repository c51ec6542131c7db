package archive

import "time"

// ExtractionReport summarizes one Extract call, per spec §6. RunID
// identifies the call for correlation with log lines and metrics, the same
// way hypeman's volume operations are tagged with a cuid2 identifier.
type ExtractionReport struct {
	RunID               string
	FilesExtracted      int
	DirectoriesCreated  int
	SymlinksCreated     int
	HardlinksCreated    int
	BytesWritten        int64
	DurationMs          int64
	FilesSkipped        int
	Warnings            []string
}

// CreationReport summarizes one Create call.
type CreationReport struct {
	RunID              string
	FilesAdded         int
	DirectoriesAdded   int
	SymlinksAdded      int
	BytesWritten       int64
	UncompressedBytes  int64
	DurationMs         int64
}

// ManifestEntry is one entry in an ArchiveManifest, produced by List.
type ManifestEntry struct {
	Path             string
	Kind             string
	UncompressedSize int64
	CompressedSize   int64
	Mode             uint32
	ModTime          time.Time
	LinkTarget       string
}

// ArchiveManifest is the output of List: every entry plus format/totals,
// with no bytes written to disk.
type ArchiveManifest struct {
	Format            string
	Entries           []ManifestEntry
	TotalUncompressed int64
	TotalCompressed   int64
}

// Severity classifies a VerificationIssue per spec §4.8.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// VerificationIssue is one finding from Verify.
type VerificationIssue struct {
	Severity Severity
	Category string
	Path     string
	Message  string
	Context  map[string]string
}

// VerificationReport is the output of Verify: a manifest-equivalent view
// plus the issue list and an overall safety verdict.
type VerificationReport struct {
	Format            string
	TotalUncompressed int64
	TotalCompressed   int64
	EntryCount        int
	Issues            []VerificationIssue
}

// IsSafe reports whether no issue at High severity or above was found.
func (r *VerificationReport) IsSafe() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityHigh || issue.Severity == SeverityCritical {
			return false
		}
	}
	return true
}
