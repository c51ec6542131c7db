//go:build !unix

package archive

// caseInsensitiveFS is true on non-Unix builds such as Windows, whose
// filesystems fold case; the symlink-prefix check compares lower-cased
// paths there.
const caseInsensitiveFS = true
