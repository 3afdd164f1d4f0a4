package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		level  string
		format string
		want   zerolog.Level
		err    bool
	}{
		"console info":   {level: "info", format: "console", want: zerolog.InfoLevel},
		"json debug":     {level: "debug", format: "json", want: zerolog.DebugLevel},
		"empty level":    {level: "", format: "json", want: zerolog.InfoLevel},
		"unknown level":  {level: "loud", format: "json", err: true},
		"unknown format": {level: "info", format: "xml", err: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l, err := logger.New(&bytes.Buffer{}, tc.level, tc.format)
			if tc.err {
				require.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, l.GetLevel())
		})
	}
}

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := logger.New(&buf, "warn", "json")
	require.NoError(t, err)

	l.Info().Msg("hidden")
	l.Warn().Str("component", "mirror").Msg("output already exists")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "mirror", line["component"])
	assert.Equal(t, "output already exists", line["message"])
}
