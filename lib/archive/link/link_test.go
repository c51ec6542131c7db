package link

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/archiveguard/lib/archive/safepath"
)

func TestThroughSymlink_DetectsNestedPath(t *testing.T) {
	r := NewResolver("/root", false)
	r.RecordSymlink("dir/link")

	assert.True(t, r.ThroughSymlink("dir/link/evil.txt"))
	assert.False(t, r.ThroughSymlink("dir/other.txt"))
	assert.False(t, r.ThroughSymlink("dir/link")) // the symlink entry itself, not a descendant
}

func TestThroughSymlink_CaseInsensitive(t *testing.T) {
	r := NewResolver("/root", true)
	r.RecordSymlink("Dir/Link")

	assert.True(t, r.ThroughSymlink("dir/link/evil.txt"))
}

func TestResolveSymlinkTarget_RelativeWithinRoot(t *testing.T) {
	root := t.TempDir()
	canon, err := safepath.Root(root)
	require.NoError(t, err)

	r := NewResolver(canon, false)
	cache := safepath.NewDirCache(canon)
	dirSP, err := safepath.FromRelative("sub", canon, cache)
	require.NoError(t, err)

	resolved, err := r.ResolveSymlinkTarget("target.txt", dirSP.Dir(), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(canon, "target.txt"), resolved)
}

func TestResolveSymlinkTarget_EscapingTargetRejected(t *testing.T) {
	root := t.TempDir()
	canon, err := safepath.Root(root)
	require.NoError(t, err)

	r := NewResolver(canon, false)
	cache := safepath.NewDirCache(canon)
	dirSP, err := safepath.FromRelative("sub", canon, cache)
	require.NoError(t, err)

	_, err = r.ResolveSymlinkTarget("../../../etc/passwd", dirSP.Dir(), false)
	assert.Error(t, err)
}

func TestResolveSymlinkTarget_AbsoluteRejectedUnlessAllowed(t *testing.T) {
	root := t.TempDir()
	canon, err := safepath.Root(root)
	require.NoError(t, err)

	r := NewResolver(canon, false)
	cache := safepath.NewDirCache(canon)
	dirSP, err := safepath.FromRelative("sub", canon, cache)
	require.NoError(t, err)

	_, err = r.ResolveSymlinkTarget("/etc/passwd", dirSP.Dir(), false)
	assert.Error(t, err)
}

func TestHardlinkTarget_MustHaveBeenExtractedEarlier(t *testing.T) {
	root := t.TempDir()
	canon, err := safepath.Root(root)
	require.NoError(t, err)

	r := NewResolver(canon, false)
	cache := safepath.NewDirCache(canon)

	_, ok := r.ResolveHardlinkTarget("target.txt")
	assert.False(t, ok, "no entry extracted yet, hardlink target must be unresolvable")

	sp, err := safepath.FromRelative("target.txt", canon, cache)
	require.NoError(t, err)
	r.RecordExtracted(sp)

	resolved, ok := r.ResolveHardlinkTarget("target.txt")
	require.True(t, ok)
	assert.Equal(t, sp.Abs(), resolved.Abs())
}
