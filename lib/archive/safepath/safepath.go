// Package safepath implements the path normalizer, the SafePath invariant,
// and the directory cache that backs the canonicalization fast path. No
// filesystem mutation anywhere else in the engine takes a raw string — it
// takes a SafePath, which can only be produced here.
package safepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Violation is the reason a candidate path was rejected by Normalize. The
// caller (lib/archive) maps these onto the taxonomy's sentinel errors so
// this package stays independent of the error package's types.
type Violation int

const (
	// ViolationNone indicates Normalize succeeded.
	ViolationNone Violation = iota
	ViolationNullByte
	ViolationAbsolute
	ViolationEmptyComponent
	ViolationDotComponent
	ViolationDotDotComponent
	ViolationBannedComponent
	ViolationTooDeep
	ViolationExtension
)

// NormalizeOptions carries the policy knobs Normalize needs; it is
// deliberately a narrow subset of config.SecurityConfig so this package has
// no import-time dependency on the config package.
type NormalizeOptions struct {
	AllowAbsolutePaths bool
	MaxPathDepth        int
	IsBanned            func(component string) bool
	// ExtensionAllowed is consulted only when IsRegularFile is true.
	ExtensionAllowed func(name string) bool
	IsRegularFile    bool
}

// NormalizeResult is the outcome of normalizing one archive-supplied path.
type NormalizeResult struct {
	// Rel is the cleaned, slash-separated, root-relative path.
	Rel string
	// IsDir records whether the raw input had a trailing separator.
	IsDir bool
}

// Normalize implements spec §4.1: component-wise validation of a raw
// archive path, operating purely on the textual form.
func Normalize(raw string, opt NormalizeOptions) (NormalizeResult, Violation) {
	if strings.IndexByte(raw, 0) >= 0 {
		return NormalizeResult{}, ViolationNullByte
	}

	isDir := strings.HasSuffix(raw, "/") || strings.HasSuffix(raw, "\\")

	normalized := strings.ReplaceAll(raw, "\\", "/")
	if isAbsolutePath(normalized) {
		if !opt.AllowAbsolutePaths {
			return NormalizeResult{}, ViolationAbsolute
		}
		normalized = stripAbsolutePrefix(normalized)
	}

	for strings.Contains(normalized, "//") {
		normalized = strings.ReplaceAll(normalized, "//", "/")
	}
	normalized = strings.TrimSuffix(normalized, "/")
	normalized = strings.TrimPrefix(normalized, "/")

	var components []string
	if normalized != "" {
		components = strings.Split(normalized, "/")
	}

	for _, c := range components {
		switch {
		case c == "":
			return NormalizeResult{}, ViolationEmptyComponent
		case c == ".":
			return NormalizeResult{}, ViolationDotComponent
		case c == "..":
			return NormalizeResult{}, ViolationDotDotComponent
		case opt.IsBanned != nil && opt.IsBanned(c):
			return NormalizeResult{}, ViolationBannedComponent
		}
	}

	if opt.MaxPathDepth > 0 && len(components) > opt.MaxPathDepth {
		return NormalizeResult{}, ViolationTooDeep
	}

	if opt.IsRegularFile && len(components) > 0 && opt.ExtensionAllowed != nil {
		if !opt.ExtensionAllowed(components[len(components)-1]) {
			return NormalizeResult{}, ViolationExtension
		}
	}

	return NormalizeResult{Rel: strings.Join(components, "/"), IsDir: isDir}, ViolationNone
}

func isAbsolutePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// drive letter (C:) or UNC prefix (\\server\share, already / normalized to //)
	if len(p) >= 2 && p[1] == ':' {
		return true
	}
	if strings.HasPrefix(p, "//") {
		return true
	}
	return false
}

func stripAbsolutePrefix(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		p = p[2:]
	}
	return strings.TrimLeft(p, "/")
}

// SafePath is a path proven at construction time to canonicalize inside the
// extraction root. It is the only type any filesystem-mutating function in
// the engine accepts.
type SafePath struct {
	rel string // original, root-relative, slash-separated
	abs string // canonical absolute path inside root
}

// Rel returns the root-relative path this SafePath was built from.
func (p SafePath) Rel() string { return p.rel }

// Abs returns the canonical absolute filesystem path.
func (p SafePath) Abs() string { return p.abs }

// Dir returns a SafePath for this entry's parent directory. The parent of a
// validated SafePath is always itself inside root, since canonicalization
// is prefix-stable.
func (p SafePath) Dir() SafePath {
	return SafePath{rel: filepath.Dir(p.rel), abs: filepath.Dir(p.abs)}
}

// DirCache memoises directories already created or proven inside root,
// eliminating redundant mkdir calls and canonicalization work. It is owned
// exclusively by one pipeline run; no locking is needed.
type DirCache struct {
	root      string // canonical extraction root
	known     map[string]struct{}
	insertion []string // insertion order, kept for parity with a small ordered set
	dryRun    bool
}

// NewDirCache creates a DirCache rooted at root, which must already be
// canonicalized (see Root).
func NewDirCache(canonicalRoot string) *DirCache {
	c := &DirCache{root: canonicalRoot, known: make(map[string]struct{})}
	c.known[canonicalRoot] = struct{}{}
	c.insertion = append(c.insertion, canonicalRoot)
	return c
}

// NewVirtualDirCache creates a DirCache that tracks the same "known inside
// root" bookkeeping as NewDirCache but never calls mkdir — used by the
// Lister/Verifier (spec §4.8, C10), which must produce the same path
// decisions as extraction without touching the filesystem.
func NewVirtualDirCache(canonicalRoot string) *DirCache {
	c := NewDirCache(canonicalRoot)
	c.dryRun = true
	return c
}

// VirtualRoot returns a stable, never-created absolute path for Lister and
// Verifier to validate against (spec §4.8 C10): they need the same
// path-safety arithmetic extraction uses, but must not touch the
// filesystem, so there is no real extraction root to canonicalize.
func VirtualRoot() string {
	return filepath.Join(os.TempDir(), "archiveguard-verify-root")
}

// Root canonicalizes dir (the caller-supplied extraction root) once at the
// start of extraction, creating it if missing.
func Root(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create extraction root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("canonicalize extraction root: %w", err)
	}
	return canon, nil
}

// Contains reports whether abs is already known to be inside root.
func (c *DirCache) Contains(abs string) bool {
	_, ok := c.known[abs]
	return ok
}

// Ensure walks the missing ancestors of dir (an absolute path that must
// already be proven inside root by the caller) and creates them with mode
// 0o755, inserting each into the cache. Idempotent: calling it again for
// the same path is a cache hit and performs no syscalls.
func (c *DirCache) Ensure(dir string) error {
	if c.Contains(dir) {
		return nil
	}

	var missing []string
	cur := dir
	for !c.Contains(cur) {
		missing = append(missing, cur)
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	for i := len(missing) - 1; i >= 0; i-- {
		d := missing[i]
		if !c.dryRun {
			if err := os.Mkdir(d, 0o755); err != nil && !os.IsExist(err) {
				return fmt.Errorf("mkdir %s: %w", d, err)
			}
		}
		c.known[d] = struct{}{}
		c.insertion = append(c.insertion, d)
	}
	return nil
}

// FromRelative constructs a SafePath for rel beneath root, per spec §4.2.
// When the parent directory is already known-safe in cache, canonicalization
// is skipped (the fast path); otherwise the parent's ancestors are created
// via DirCache and the canonical parent is required to start with the
// canonical root.
func FromRelative(rel string, root string, cache *DirCache) (SafePath, error) {
	candidate := filepath.Join(root, filepath.FromSlash(rel))
	parent := filepath.Dir(candidate)

	if cache.Contains(parent) {
		return SafePath{rel: rel, abs: candidate}, nil
	}

	if err := cache.Ensure(parent); err != nil {
		return SafePath{}, err
	}

	canonParent, err := securejoin.SecureJoin(root, filepath.Dir(filepath.FromSlash(rel)))
	if err != nil {
		return SafePath{}, fmt.Errorf("resolve parent of %q: %w", rel, err)
	}
	if !isWithinRoot(canonParent, root) {
		return SafePath{}, fmt.Errorf("parent of %q escapes root", rel)
	}

	abs := filepath.Join(canonParent, filepath.Base(candidate))
	return SafePath{rel: rel, abs: abs}, nil
}

// isWithinRoot reports whether abs is root itself or a descendant of it.
func isWithinRoot(abs, root string) bool {
	if abs == root {
		return true
	}
	return strings.HasPrefix(abs, root+string(filepath.Separator))
}

// WithinRoot is exported for callers (link resolver) that need the same
// check against an arbitrary resolved path rather than a SafePath.
func WithinRoot(abs, root string) bool { return isWithinRoot(abs, root) }
