package verify_test

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/nrrd"
	"github.com/askiada/antstemplate/internal/stage"
)

var testWorkers = min(2, runtime.NumCPU())

func testEnv(runner stage.CommandRunner) stage.Env {
	return stage.Env{Runner: runner, Logger: zerolog.Nop()}
}

func geometry(sizes ...int) nrrd.Header {
	strs := make([]string, len(sizes))
	for i, size := range sizes {
		strs[i] = strconv.Itoa(size)
	}

	return nrrd.Header{Fields: []nrrd.Field{
		{Key: "dimension", Value: strconv.Itoa(len(sizes))},
		{Key: "sizes", Value: strings.Join(strs, " ")},
		{Key: "space", Value: "left-posterior-superior"},
		{Key: "space directions", Value: "(1,0,0) (0,1,0) (0,0,1)"},
	}}
}

func writeVolume(t *testing.T, path string, data []float64, sizes ...int) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, nrrd.WriteFile(path, geometry(sizes...), data))
}

// labelFile encodes a raw unsigned char segmentation.
func labelFile(directions string, data []uint8) []byte {
	var buf bytes.Buffer
	buf.WriteString("NRRD0004\ntype: unsigned char\ndimension: 3\n")
	buf.WriteString("sizes: " + strconv.Itoa(len(data)) + " 1 1\n")
	buf.WriteString("space directions: " + directions + "\n")
	buf.WriteString("encoding: raw\n\n")
	buf.Write(data)

	return buf.Bytes()
}

func writeLabel(t *testing.T, path, directions string, data []uint8) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, labelFile(directions, data), 0o644))
}

func readVolume(t *testing.T, path string) []float64 {
	t.Helper()

	vol, err := nrrd.ReadFile(path)
	require.NoError(t, err)

	return vol.Data
}
