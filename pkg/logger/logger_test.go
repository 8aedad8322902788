package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("debug")
	assert.Equal(t, zerolog.DebugLevel, Log.GetLevel())

	SetLevel("not-a-level")
	assert.Equal(t, zerolog.InfoLevel, Log.GetLevel())
}

func TestNewWritesConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Info().Str("file", "L2_20200115.zip").Msg("staged")

	assert.Contains(t, buf.String(), "staged")
	assert.Contains(t, buf.String(), "L2_20200115.zip")
}
