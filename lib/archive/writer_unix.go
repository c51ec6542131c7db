//go:build unix

package archive

import (
	"os"
	"syscall"
)

// createFile opens path for writing with mode set atomically at open time
// (one syscall instead of open-then-chmod) and O_NOFOLLOW so a symlink
// planted at path between validation and creation is refused rather than
// followed — defense in depth against the residual TOCTOU risk documented
// in spec §7.
func createFile(path string, mode os.FileMode) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC | syscall.O_NOFOLLOW
	return os.OpenFile(path, flags, mode)
}
