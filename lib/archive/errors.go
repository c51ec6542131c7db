package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the taxonomy from spec — match against these
// with errors.Is, or against the wrapping *Error with errors.As to recover
// Kind, Path and Resource.
var (
	ErrPathTraversal      = errors.New("path traversal")
	ErrSymlinkEscape      = errors.New("symlink escape")
	ErrHardlinkEscape     = errors.New("hardlink escape")
	ErrZipBomb            = errors.New("compression ratio exceeded")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInvalidPermissions = errors.New("invalid permissions")
	ErrSecurityViolation  = errors.New("security violation")
	ErrUnsupportedFormat  = errors.New("unsupported archive format")
	ErrInvalidArchive     = errors.New("invalid archive")
	ErrEncryptedArchive   = errors.New("encrypted archive entries are not supported")
)

// Resource identifies which quota a QuotaExceeded error refers to.
type Resource string

const (
	ResourceFiles        Resource = "files"
	ResourcePerFileBytes Resource = "per_file_bytes"
	ResourceTotalBytes   Resource = "total_bytes"
	ResourceDepth        Resource = "depth"
)

// Error wraps one of the sentinel errors above with the entry path and,
// for quota errors, the offending Resource. Callers that need the taxonomy
// should use errors.As with a **archive.Error target (var ae *archive.Error;
// errors.As(err, &ae)) or errors.Is against the sentinels.
type Error struct {
	Kind     error
	Path     string
	Resource Resource
	Err      error // underlying cause, if any (e.g. an os.PathError)
}

func (e *Error) Error() string {
	switch {
	case e.Resource != "" && e.Path != "":
		return fmt.Sprintf("%s: %s (resource=%s, path=%q)", e.Kind, e.causeText(), e.Resource, e.Path)
	case e.Resource != "":
		return fmt.Sprintf("%s: %s (resource=%s)", e.Kind, e.causeText(), e.Resource)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (path=%q)", e.Kind, e.causeText(), e.Path)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.causeText())
	}
}

func (e *Error) causeText() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func newErr(kind error, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Err: cause}
}

func newQuotaErr(resource Resource, path string, cause error) *Error {
	return &Error{Kind: ErrQuotaExceeded, Path: path, Resource: resource, Err: cause}
}
