package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/config"
)

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join(t.TempDir(), "antstemplate.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Zero(t, cfg.Processing.Workers)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content string
		check   func(t *testing.T, cfg *config.Config)
		err     error
	}{
		"partial": {
			content: "ants:\n  binDir: /opt/ants/bin\nlog:\n  level: debug\n",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "/opt/ants/bin", cfg.ANTs.BinDir)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "console", cfg.Log.Format)
				assert.Equal(t, "obiroi_", cfg.Results.Prefix)
			},
		},
		"results": {
			content: "results:\n  root: runs\n  prefix: ant_\nmetadata: meta.csv\n",
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				assert.Equal(t, "runs", cfg.Results.Root)
				assert.Equal(t, "ant_", cfg.Results.Prefix)
				assert.Equal(t, "meta.csv", cfg.Metadata)
			},
		},
		"negative workers": {
			content: "processing:\n  workers: -1\n",
			err:     config.ErrInvalidConfig,
		},
		"unknown format": {
			content: "log:\n  format: xml\n",
			err:     config.ErrInvalidConfig,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "antstemplate.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o644))

			cfg, err := config.Load(path)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "antstemplate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestSave(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ANTs.BinDir = "/usr/local/ants"
	cfg.Processing.Workers = 3
	path := filepath.Join(t.TempDir(), "nested", "antstemplate.yaml")

	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
