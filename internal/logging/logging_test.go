package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)
	log.Debug("parsed", "records", 3)
	assert.Contains(t, buf.String(), `"msg":"parsed"`)
	assert.Contains(t, buf.String(), `"records":3`)

	buf.Reset()
	log, err = New("warn", "", &buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "file", "a.csv")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown file=a.csv")

	_, err = New("info", "xml", &buf)
	assert.ErrorIs(t, err, ErrInvalid)
}
