//go:build unix

package archive

// caseInsensitiveFS is false on every Unix build, macOS included:
// ext4/xfs/btrfs are case-sensitive by default. Extraction onto a
// case-insensitive mount (e.g. exFAT, or a default macOS volume) still uses
// case-sensitive symlink-prefix matching.
const caseInsensitiveFS = false
