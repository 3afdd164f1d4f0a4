package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanLogs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFiles(t, dir, "ok_out.log", "image.nrrd", "orphan_err.log")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok_err.log"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan_err.log"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed_out.log"), []byte("out"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed_err.log"), []byte("boom"), 0o644))

	removed, err := CleanLogs(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "ok_out.log"),
		filepath.Join(dir, "ok_err.log"),
		filepath.Join(dir, "orphan_err.log"),
	}, removed)
	assert.ElementsMatch(t, []string{"failed_err.log", "failed_out.log", "image.nrrd"}, listDir(t, dir))
}

func TestRemoveIntermediates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := writeFiles(t, dir, "flipped.nrrd", "keep_out.log", "drop_out.log")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep_err.log"), []byte("error"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drop_err.log"), nil, 0o644))
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	require.NoError(t, os.Mkdir(empty, 0o755))
	writeFiles(t, full, "inner.txt")

	err := RemoveIntermediates(append(files,
		filepath.Join(dir, "keep_err.log"),
		filepath.Join(dir, "missing.nii.gz"),
		empty,
		full,
	), zerolog.Nop())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"full", "keep_err.log", "keep_out.log"}, listDir(t, dir))
}
