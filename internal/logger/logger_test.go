package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "optimizer.log")

	log, err := NewLogger(LoggerConfig{
		Level:    "debug",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	WithFileOperation(log, "a.png", "encode").Info("file optimized")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "file optimized", entry["message"])
	assert.Equal(t, "a.png", entry["file"])
	assert.Equal(t, "encode", entry["operation"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "chatty"})
	require.Error(t, err)
}

func TestNewLoggerWithoutWritersDiscards(t *testing.T) {
	log, err := NewLogger(LoggerConfig{Level: "info"})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		WithFile(log, "x.jpg").Info("dropped")
		WithOperation(log, "scan").Warn("dropped")
	})
}
