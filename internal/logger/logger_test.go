package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("debug", true, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("task_id", "t1").Debug("started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "t1", entry["task_id"])
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	log, err := Setup("warn", false, &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "\x1b[", "no colors off a terminal")
}

func TestSetupInvalidLevel(t *testing.T) {
	_, err := Setup("chatty", false, &bytes.Buffer{})
	assert.Error(t, err)
}
