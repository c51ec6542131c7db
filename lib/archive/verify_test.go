package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/archiveguard/lib/archive/config"
)

func buildVerifyFixture(t *testing.T, headers []tar.Header, bodies map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for _, hdr := range headers {
		body := bodies[hdr.Name]
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if len(body) > 0 {
			_, err := tw.Write(body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return path
}

func TestList_ReportsEveryEntryWithoutValidation(t *testing.T) {
	path := buildVerifyFixture(t, []tar.Header{
		{Name: "a.txt", Typeflag: tar.TypeReg, Mode: 0644},
		{Name: "../escape.txt", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"a.txt": []byte("hi"), "../escape.txt": []byte("nope")})

	manifest, err := List(path, config.Default())
	require.NoError(t, err)
	assert.Len(t, manifest.Entries, 2, "List enumerates every entry regardless of safety")
	assert.Equal(t, "tar", manifest.Format)
}

func TestVerify_FlagsPathTraversalAsCritical(t *testing.T) {
	path := buildVerifyFixture(t, []tar.Header{
		{Name: "../../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"../../../etc/passwd": []byte("malicious")})

	report, err := Verify(path, config.Default())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, SeverityCritical, report.Issues[0].Severity)
	assert.Equal(t, "path-traversal", report.Issues[0].Category)
	assert.False(t, report.IsSafe())
}

func TestVerify_FlagsWorldWritableAsWarning(t *testing.T) {
	path := buildVerifyFixture(t, []tar.Header{
		{Name: "bad.txt", Typeflag: tar.TypeReg, Mode: 0666},
	}, map[string][]byte{"bad.txt": []byte("data")})

	cfg := config.Default()
	cfg.AllowWorldWritable = true
	cfg.PreservePermissions = true

	report, err := Verify(path, cfg)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, SeverityWarning, report.Issues[0].Severity)
	assert.Equal(t, "suspicious-permissions", report.Issues[0].Category)
	assert.True(t, report.IsSafe(), "warnings alone do not make a report unsafe")
}

func TestVerify_CleanArchiveIsSafe(t *testing.T) {
	path := buildVerifyFixture(t, []tar.Header{
		{Name: "hello.txt", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"hello.txt": []byte("Hello, World!")})

	report, err := Verify(path, config.Default())
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.True(t, report.IsSafe())
	assert.Equal(t, 1, report.EntryCount)
}

func TestVerify_NeverTouchesDisk(t *testing.T) {
	path := buildVerifyFixture(t, []tar.Header{
		{Name: "a/b/c.txt", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"a/b/c.txt": []byte("data")})

	cwd, err := os.Getwd()
	require.NoError(t, err)
	before, err := os.ReadDir(cwd)
	require.NoError(t, err)

	_, err = Verify(path, config.Default())
	require.NoError(t, err)

	after, err := os.ReadDir(cwd)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after), "Verify must not create any file or directory")
}
