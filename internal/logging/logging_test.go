package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("component", "engine").Debug("Opened database")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Opened database", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", "", &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "text", nil)
	assert.Error(t, err)

	_, err = New("info", "xml", nil)
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.Equal(t, logrus.PanicLevel, log.GetLevel())
}
