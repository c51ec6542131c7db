// Package config defines the declarative security policy that governs
// archive extraction and creation: quotas, allow-flags, and deny-lists.
// A SecurityConfig is built once by the caller and lives for the whole
// extraction; it carries no mutable state of its own.
package config

import (
	"math"
	"strings"

	"github.com/c2h5oh/datasize"
)

// defaultBannedComponents are path components that are refused regardless
// of where they appear in an archive, independent of traversal checks.
var defaultBannedComponents = []string{
	".git", ".ssh", ".gnupg", ".aws", ".kube", ".docker", ".env",
}

// SecurityConfig is the immutable policy consulted by every stage of the
// extraction pipeline. Construct one with Default or Permissive, or build a
// literal directly — all fields are exported and have sane zero values
// except the unlimited-sentinel quotas, which Default sets explicitly.
type SecurityConfig struct {
	MaxFileSize         datasize.ByteSize
	MaxTotalSize        datasize.ByteSize
	MaxFileCount        int
	MaxPathDepth        int
	MaxCompressionRatio float64

	AllowSymlinks      bool
	AllowHardlinks     bool
	AllowAbsolutePaths bool
	AllowWorldWritable bool
	PreservePermissions bool

	// AllowedExtensions restricts regular-file entries by final extension
	// (case-insensitive, dot-inclusive, e.g. ".txt"). Empty means allow all.
	AllowedExtensions map[string]struct{}

	// BannedPathComponents is matched case-insensitively against every
	// normalized path component.
	BannedPathComponents map[string]struct{}
}

// Unlimited is the sentinel used for quotas with no configured ceiling. The
// quota accountant compares against it like any other ceiling; only the
// ratio check has a fast path, for UnlimitedRatio.
const Unlimited = math.MaxInt64

// UnlimitedRatio is the sentinel for an unconstrained compression ratio.
// math.Inf(1) is a function call, not a constant expression, so this must
// be a var.
var UnlimitedRatio = math.Inf(1)

// Default returns the deny-all preset: no symlinks, no hardlinks, no
// absolute paths, no world-writable bits, conservative quotas. This is the
// preset every caller should start from unless the source is fully trusted.
func Default() *SecurityConfig {
	return &SecurityConfig{
		MaxFileSize:          10 * datasize.MB,
		MaxTotalSize:         1 * datasize.GB,
		MaxFileCount:         10000,
		MaxPathDepth:         32,
		MaxCompressionRatio:  100,
		AllowSymlinks:        false,
		AllowHardlinks:       false,
		AllowAbsolutePaths:   false,
		AllowWorldWritable:   false,
		PreservePermissions:  true,
		AllowedExtensions:    map[string]struct{}{},
		BannedPathComponents: bannedSet(defaultBannedComponents),
	}
}

// Permissive returns a preset with every allow-flag turned on and every
// quota set to its unlimited sentinel. Reserved for trusted inputs —
// extracting an untrusted archive with this preset defeats the engine's
// security guarantees entirely.
func Permissive() *SecurityConfig {
	return &SecurityConfig{
		MaxFileSize:          datasize.ByteSize(Unlimited),
		MaxTotalSize:         datasize.ByteSize(Unlimited),
		MaxFileCount:         Unlimited,
		MaxPathDepth:         Unlimited,
		MaxCompressionRatio:  UnlimitedRatio,
		AllowSymlinks:        true,
		AllowHardlinks:       true,
		AllowAbsolutePaths:   true,
		AllowWorldWritable:   true,
		PreservePermissions:  true,
		AllowedExtensions:    map[string]struct{}{},
		BannedPathComponents: map[string]struct{}{},
	}
}

func bannedSet(components []string) map[string]struct{} {
	set := make(map[string]struct{}, len(components))
	for _, c := range components {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

// IsBannedComponent reports whether name matches a banned component under
// case-folded comparison.
func (c *SecurityConfig) IsBannedComponent(name string) bool {
	_, ok := c.BannedPathComponents[strings.ToLower(name)]
	return ok
}

// ExtensionAllowed reports whether name's extension passes the allow-list.
// An empty allow-list permits everything.
func (c *SecurityConfig) ExtensionAllowed(name string) bool {
	if len(c.AllowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(extOf(name))
	_, ok := c.AllowedExtensions[ext]
	return ok
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i:]
}

// CreationConfig governs archive creation. Unlike SecurityConfig it has no
// deny-list: creation reads trusted local files, it does not ingest
// untrusted archive bytes.
type CreationConfig struct {
	// PreservePermissions copies the source file's mode bits into the
	// archive header; otherwise entries are written with 0644/0755.
	PreservePermissions bool
	// FollowSymlinks stores the symlink target's content instead of a
	// symlink entry when true. Default false: symlinks are stored as
	// symlink entries so extraction can round-trip them.
	FollowSymlinks bool
	// Exclude is a set of glob patterns to skip during the directory walk.
	// Each pattern is matched against the stored name (which begins with
	// the source's own base name) and against that name's last element.
	Exclude []string
}

// DefaultCreationConfig returns a CreationConfig that preserves permissions
// and stores symlinks as symlinks.
func DefaultCreationConfig() *CreationConfig {
	return &CreationConfig{PreservePermissions: true}
}
