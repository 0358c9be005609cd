package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("tipd", "info", &buf)

	log.WithField("tip_id", "abc").Info("tip settled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tip settled", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "tipd", line["service"])
	assert.Equal(t, "abc", line["tip_id"])
	assert.Contains(t, line, "timestamp")
}

func TestNewWithOutput_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("tipd", "warn", &buf)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"INFO":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	l := Discard()
	assert.Same(t, l, OrDiscard(l))
}
