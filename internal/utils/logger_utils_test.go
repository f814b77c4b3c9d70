package utils

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"orchestrationapi/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loggerState struct {
	output    io.Writer
	level     logrus.Level
	formatter logrus.Formatter
}

func saveLoggerState() *loggerState {
	return &loggerState{
		output:    logrus.StandardLogger().Out,
		level:     logrus.GetLevel(),
		formatter: logrus.StandardLogger().Formatter,
	}
}

func (s *loggerState) restore() {
	CloseLogger()
	logrus.SetOutput(s.output)
	logrus.SetLevel(s.level)
	logrus.SetFormatter(s.formatter)
}

func newTestConfig(logConfig config.LogConfig) *config.MockConfig {
	cfg := config.NewMockConfig()
	cfg.Log = logConfig
	return cfg
}

func TestSetupLogger_DefaultsToInfoOnInvalidLevel(t *testing.T) {
	saved := saveLoggerState()
	defer saved.restore()

	SetupLogger(newTestConfig(config.LogConfig{Level: "not-a-level", Format: "text"}))
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestSetupLogger_JSONFormat(t *testing.T) {
	saved := saveLoggerState()
	defer saved.restore()

	SetupLogger(newTestConfig(config.LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestSetupLogger_FileOutput(t *testing.T) {
	saved := saveLoggerState()
	defer saved.restore()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	SetupLogger(newTestConfig(config.LogConfig{
		Level: "info", Format: "text", EnableFile: true, FilePath: logPath,
	}))

	logrus.Info("hello from test")
	CloseLogger()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello from test"))
}

func TestCloseLogger(t *testing.T) {
	saved := saveLoggerState()
	defer saved.restore()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	SetupLogger(newTestConfig(config.LogConfig{
		Level: "info", Format: "text", EnableFile: true, FilePath: logPath,
	}))

	CloseLogger()
	// Calling CloseLogger again should be safe (idempotent).
	CloseLogger()
}

func TestSyncWriter_ThreadSafe(t *testing.T) {
	var buf bytes.Buffer
	sw := &syncWriter{writer: &buf}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_, _ = sw.Write([]byte("x"))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 10, buf.Len())
}
