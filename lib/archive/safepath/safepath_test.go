package safepath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CleanRelativePath(t *testing.T) {
	res, violation := Normalize("dir/file.txt", NormalizeOptions{})
	require.Equal(t, ViolationNone, violation)
	assert.Equal(t, "dir/file.txt", res.Rel)
	assert.False(t, res.IsDir)
}

func TestNormalize_TrailingSlashMarksDir(t *testing.T) {
	res, violation := Normalize("dir/sub/", NormalizeOptions{})
	require.Equal(t, ViolationNone, violation)
	assert.Equal(t, "dir/sub", res.Rel)
	assert.True(t, res.IsDir)
}

func TestNormalize_DotDotRejected(t *testing.T) {
	_, violation := Normalize("../../../etc/passwd", NormalizeOptions{})
	assert.Equal(t, ViolationDotDotComponent, violation)
}

func TestNormalize_AbsolutePathRejectedByDefault(t *testing.T) {
	_, violation := Normalize("/etc/passwd", NormalizeOptions{})
	assert.Equal(t, ViolationAbsolute, violation)
}

func TestNormalize_AbsolutePathAllowedWhenPermitted(t *testing.T) {
	res, violation := Normalize("/etc/passwd", NormalizeOptions{AllowAbsolutePaths: true})
	require.Equal(t, ViolationNone, violation)
	assert.Equal(t, "etc/passwd", res.Rel)
}

func TestNormalize_NullByteRejected(t *testing.T) {
	_, violation := Normalize("file\x00.txt", NormalizeOptions{})
	assert.Equal(t, ViolationNullByte, violation)
}

func TestNormalize_BannedComponentRejected(t *testing.T) {
	isBanned := func(c string) bool { return c == ".git" }
	_, violation := Normalize(".git/config", NormalizeOptions{IsBanned: isBanned})
	assert.Equal(t, ViolationBannedComponent, violation)
}

func TestNormalize_TooDeepRejected(t *testing.T) {
	_, violation := Normalize("a/b/c/d", NormalizeOptions{MaxPathDepth: 3})
	assert.Equal(t, ViolationTooDeep, violation)
}

func TestNormalize_ExtensionDenied(t *testing.T) {
	allowed := func(name string) bool { return filepath.Ext(name) == ".txt" }
	_, violation := Normalize("payload.exe", NormalizeOptions{IsRegularFile: true, ExtensionAllowed: allowed})
	assert.Equal(t, ViolationExtension, violation)
}

func TestNormalize_ExtensionOnlyCheckedForRegularFiles(t *testing.T) {
	allowed := func(name string) bool { return filepath.Ext(name) == ".txt" }
	_, violation := Normalize("somedir", NormalizeOptions{IsRegularFile: false, ExtensionAllowed: allowed})
	assert.Equal(t, ViolationNone, violation)
}

func TestFromRelative_BuildsPathInsideRoot(t *testing.T) {
	root := t.TempDir()
	canon, err := Root(root)
	require.NoError(t, err)

	cache := NewDirCache(canon)
	sp, err := FromRelative("dir/file.txt", canon, cache)
	require.NoError(t, err)

	assert.Equal(t, "dir/file.txt", sp.Rel())
	assert.Equal(t, filepath.Join(canon, "dir", "file.txt"), sp.Abs())
	assert.True(t, WithinRoot(sp.Abs(), canon))
}

func TestDirCache_EnsureIsIdempotentAndCreatesDirs(t *testing.T) {
	root := t.TempDir()
	canon, err := Root(root)
	require.NoError(t, err)

	cache := NewDirCache(canon)
	target := filepath.Join(canon, "a", "b", "c")

	require.NoError(t, cache.Ensure(target))
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second call is a cache hit; must not error even though the directory
	// already exists.
	require.NoError(t, cache.Ensure(target))
}

func TestVirtualDirCache_NeverTouchesDisk(t *testing.T) {
	root := VirtualRoot()
	cache := NewVirtualDirCache(root)

	target := filepath.Join(root, "a", "b")
	require.NoError(t, cache.Ensure(target))

	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err), "virtual root must never be created on disk")
}

func TestRoot_CanonicalizesSymlinkedDir(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(real, link))

	canon, err := Root(link)
	require.NoError(t, err)

	expected, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)
	assert.Equal(t, expected, canon)
}
