package archive

import (
	"os"

	"github.com/onkernel/archiveguard/lib/archive/config"
	"github.com/onkernel/archiveguard/lib/archive/format"
	"github.com/onkernel/archiveguard/lib/archive/link"
	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

// ValidatedEntry is the outcome of running a RawEntry through the
// validator: a typed, trustworthy path ready for the dispatcher, per
// spec §4.4.
type ValidatedEntry struct {
	Kind             format.EntryKind
	SafePath         safepath.SafePath
	Mode             os.FileMode
	UncompressedSize int64
	CompressedSize   int64
	LinkTarget       string // textual target, for Symlink/Hardlink
}

const worldWritableBit = 0o002
const setuidSetgidSticky = os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// validateEntry implements spec §4.4: normalizes the path, classifies the
// entry, and dispatches symlink/hardlink entries to the link resolver.
func validateEntry(raw format.RawEntry, cfg *config.SecurityConfig, root string, cache *safepath.DirCache, resolver *link.Resolver) (ValidatedEntry, error) {
	norm, violation := safepath.Normalize(raw.RawPath, safepath.NormalizeOptions{
		AllowAbsolutePaths: cfg.AllowAbsolutePaths,
		MaxPathDepth:       cfg.MaxPathDepth,
		IsBanned:           cfg.IsBannedComponent,
		ExtensionAllowed:   cfg.ExtensionAllowed,
		IsRegularFile:      raw.Kind == format.File,
	})
	if violation != safepath.ViolationNone {
		return ValidatedEntry{}, mapViolation(violation, raw.RawPath)
	}

	if resolver.ThroughSymlink(norm.Rel) {
		return ValidatedEntry{}, newErr(ErrSymlinkEscape, raw.RawPath, nil)
	}

	sp, err := safepath.FromRelative(norm.Rel, root, cache)
	if err != nil {
		return ValidatedEntry{}, newErr(ErrPathTraversal, raw.RawPath, err)
	}

	mode := sanitizeMode(raw.Mode, cfg)

	switch raw.Kind {
	case format.Directory:
		return ValidatedEntry{Kind: format.Directory, SafePath: sp, Mode: mode | os.ModeDir}, nil

	case format.File:
		if !cfg.AllowWorldWritable && mode.Perm()&worldWritableBit != 0 {
			return ValidatedEntry{}, newErr(ErrInvalidPermissions, raw.RawPath, nil)
		}
		return ValidatedEntry{
			Kind:             format.File,
			SafePath:         sp,
			Mode:             mode,
			UncompressedSize: raw.UncompressedSize,
			CompressedSize:   raw.CompressedSize,
		}, nil

	case format.Symlink:
		if !cfg.AllowSymlinks {
			return ValidatedEntry{}, newErr(ErrSecurityViolation, raw.RawPath, nil)
		}
		if _, err := resolver.ResolveSymlinkTarget(raw.LinkTarget, sp.Dir(), cfg.AllowAbsolutePaths); err != nil {
			return ValidatedEntry{}, newErr(ErrSymlinkEscape, raw.RawPath, err)
		}
		return ValidatedEntry{Kind: format.Symlink, SafePath: sp, LinkTarget: raw.LinkTarget}, nil

	case format.Hardlink:
		if !cfg.AllowHardlinks {
			return ValidatedEntry{}, newErr(ErrSecurityViolation, raw.RawPath, nil)
		}
		if _, ok := resolver.ResolveHardlinkTarget(raw.LinkTarget); !ok {
			return ValidatedEntry{}, newErr(ErrHardlinkEscape, raw.RawPath, nil)
		}
		return ValidatedEntry{Kind: format.Hardlink, SafePath: sp, LinkTarget: raw.LinkTarget}, nil

	default:
		return ValidatedEntry{}, newErr(ErrInvalidArchive, raw.RawPath, nil)
	}
}

// sanitizeMode strips setuid/setgid/sticky bits unconditionally (spec
// §4.4) and, when PreservePermissions is false, forces 0644 for every kind
// (spec §4.6). Directories are created by DirCache with 0o755 whatever
// mode this returns.
func sanitizeMode(raw uint32, cfg *config.SecurityConfig) os.FileMode {
	if !cfg.PreservePermissions {
		return 0o644
	}
	return os.FileMode(raw) &^ setuidSetgidSticky
}

func mapViolation(v safepath.Violation, path string) error {
	switch v {
	case safepath.ViolationTooDeep:
		return newQuotaErr(ResourceDepth, path, nil)
	case safepath.ViolationExtension:
		return newErr(ErrSecurityViolation, path, nil)
	case safepath.ViolationNullByte, safepath.ViolationBannedComponent:
		return newErr(ErrSecurityViolation, path, nil)
	default:
		return newErr(ErrPathTraversal, path, nil)
	}
}
