package stage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testWorkers is the largest worker count up to 2 valid on this machine.
var testWorkers = min(2, runtime.NumCPU())

var testNow = time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)

func testEnv(runner CommandRunner) Env {
	return Env{
		Runner: runner,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte(name), 0o644))
	}

	return paths
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}

const testMetadata = `Clean Name,Egocentric Leaning,Skip Affine,Refinement Inclusion
a.nrrd,left,0,1
b.nrrd,right,0,0
c.nrrd,sym,0,1
d.nrrd,right,1,yes
`

func writeMetadata(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "metadata.csv")
	require.NoError(t, os.WriteFile(path, []byte(testMetadata), 0o644))

	return path
}
