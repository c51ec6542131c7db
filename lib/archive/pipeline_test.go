package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/archiveguard/lib/archive/config"
)

// writeTarGz builds a .tar.gz fixture with one header per entry, mirroring
// the teacher's createTestTarGz helper.
func writeTarGz(t *testing.T, dest string, headers []tar.Header, bodies map[string][]byte) {
	t.Helper()
	f, err := os.Create(dest)
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
}

func TestExtract_PathTraversal(t *testing.T) {
	// CVE-2025-4517: an entry whose name walks above the output directory.
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "../../../etc/passwd", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"../../../etc/passwd": []byte("malicious content")})

	outDir := t.TempDir()
	report, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathTraversal)
	assert.Equal(t, 0, report.FilesExtracted)

	matches, _ := filepath.Glob(filepath.Join(outDir, "*", "passwd"))
	assert.Empty(t, matches, "no entry may land outside the output directory")
}

func TestExtract_SymlinkEscape_DefaultConfigDenies(t *testing.T) {
	// CVE-2024-12905, default config: symlinks are disabled outright.
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "evil_link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd", Mode: 0777},
	}, nil)

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecurityViolation)
}

func TestExtract_SymlinkEscape_AllowedButTargetEscapes(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "evil_link", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd", Mode: 0777},
	}, nil)

	cfg := config.Default()
	cfg.AllowSymlinks = true

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, cfg, ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymlinkEscape)
}

func TestExtract_HardlinkEscape_DefaultConfigDenies(t *testing.T) {
	// CVE-2025-48387, default config: hardlinks are disabled outright.
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "evil_hardlink", Typeflag: tar.TypeLink, Linkname: "/etc/passwd", Mode: 0644},
	}, nil)

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecurityViolation)
}

func TestExtract_HardlinkEscape_AllowedButTargetNeverExtracted(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "evil_hardlink", Typeflag: tar.TypeLink, Linkname: "/etc/passwd", Mode: 0644},
	}, nil)

	cfg := config.Default()
	cfg.AllowHardlinks = true

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, cfg, ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHardlinkEscape)
}

func TestExtract_ZipBomb_AbortsDuringStreamingCopy(t *testing.T) {
	// A highly compressible entry whose declared compressed size is known
	// up front; the streaming ratio check must abort well before the full
	// body streams out, and the partial file must not be left behind.
	archivePath := filepath.Join(t.TempDir(), "bomb.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "zeros.bin", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte{0}, 2_000_000))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.MaxCompressionRatio = 100

	outDir := t.TempDir()
	report, err := Extract(archivePath, outDir, cfg, ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrZipBomb)
	assert.Equal(t, 0, report.FilesExtracted)

	_, statErr := os.Stat(filepath.Join(outDir, "zeros.bin"))
	assert.True(t, os.IsNotExist(statErr), "partially written file must be removed")
}

func TestExtract_QuotaFileCountExceeded(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "many.tar")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	for i := 0; i < 10001; i++ {
		hdr := &tar.Header{Name: fmt.Sprintf("file-%05d.txt", i), Typeflag: tar.TypeReg, Mode: 0644, Size: 1}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	outDir := t.TempDir()
	report, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 10000, report.FilesExtracted)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, ResourceFiles, ae.Resource)
}

func TestExtract_HappyPath_TarGzRoundTrip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "hello.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "hello.txt", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"hello.txt": []byte("Hello, World!")})

	outDir := t.TempDir()
	report, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesExtracted)
	assert.GreaterOrEqual(t, report.BytesWritten, int64(13))
	assert.NotEmpty(t, report.RunID)

	content, err := os.ReadFile(filepath.Join(outDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(content))
}

func TestExtract_DirectoriesAndNestedFiles(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "nested.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0755},
		{Name: "dir/nested.txt", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{"dir/nested.txt": []byte("nested content")})

	outDir := t.TempDir()
	report, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesExtracted)
	assert.Equal(t, 1, report.DirectoriesCreated)

	content, err := os.ReadFile(filepath.Join(outDir, "dir", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(content))
}

func TestExtract_BannedComponentRejected(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "dotgit.tar.gz")
	writeTarGz(t, archivePath, []tar.Header{
		{Name: ".git/config", Typeflag: tar.TypeReg, Mode: 0644},
	}, map[string][]byte{".git/config": []byte("[core]")})

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecurityViolation)
}

func TestExtract_UnsupportedFormatRejected(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive.unknownext")
	require.NoError(t, os.WriteFile(archivePath, []byte("not an archive"), 0644))

	outDir := t.TempDir()
	_, err := Extract(archivePath, outDir, config.Default(), ExtractOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
