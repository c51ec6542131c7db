//go:build !unix

package archive

import "os"

// createFile is the non-Unix fallback: platforms without O_NOFOLLOW and
// POSIX mode bits get mode applied at create time via os.OpenFile's mode
// argument, which the runtime maps to "readable-by-owner" / read-only as
// best it can, per spec §9's platform-split permission model.
func createFile(path string, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
}
