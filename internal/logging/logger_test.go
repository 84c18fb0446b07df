package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewWithCore(core), logs
}

func TestSecretRedaction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "secret is redacted",
			input:    "my-secret-password",
			expected: "[REDACTED]",
		},
		{
			name:     "empty secret is still redacted",
			input:    "",
			expected: "[REDACTED]",
		},
		{
			name:     "complex secret is redacted",
			input:    "password123!@#",
			expected: "[REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Secret(tt.input).String())
			assert.Equal(t, tt.expected, Secret(tt.input).GoString())
		})
	}
}

func TestSecretRedactedInLogOutput(t *testing.T) {
	logger, logs := newObserved(zapcore.DebugLevel)

	secretValue := "super-secret-password-12345"
	logger.Info("Retrieved secret: %s", Secret(secretValue))
	logger.Debug("Processing secret: %v", Secret(secretValue))
	logger.Warn("Dump: %#v", Secret(secretValue))

	require.Equal(t, 3, logs.Len())
	for _, entry := range logs.All() {
		assert.Contains(t, entry.Message, "[REDACTED]")
		assert.NotContains(t, entry.Message, secretValue)
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, logs := newObserved(zapcore.DebugLevel)

	logger.Info("formatted %s message", "info")
	logger.Warn("formatted %s message", "warn")
	logger.Error("formatted %s message", "error")
	logger.Debug("formatted %s message", "debug")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "formatted info message", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
}

func TestDebugSuppressedAtInfoLevel(t *testing.T) {
	logger, logs := newObserved(zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestNamedAndWith(t *testing.T) {
	logger, logs := newObserved(zapcore.DebugLevel)

	logger.Named("coordinator").With("round", "abc").Info("notified %d adapters", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "coordinator", entries[0].LoggerName)
	assert.Equal(t, "abc", entries[0].ContextMap()["round"])
}

func TestSetLevel(t *testing.T) {
	logger := New(false, true)
	require.NoError(t, logger.SetLevel("debug"))
	require.NoError(t, logger.SetLevel("WARN"))

	err := logger.SetLevel("chatty")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Info("info")
		logger.Error("error %v", fmt.Errorf("boom"))
	})
}

// TestRedactFunction tests the Redact utility function
func TestRedactFunction(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		secrets  []string
		expected string
	}{
		{
			name:     "single secret redacted",
			input:    "The password is secret123",
			secrets:  []string{"secret123"},
			expected: "The password is [REDACTED]",
		},
		{
			name:     "multiple secrets redacted",
			input:    "User admin with password secret123 and key abc123",
			secrets:  []string{"admin", "secret123", "abc123"},
			expected: "User [REDACTED] with password [REDACTED] and key [REDACTED]",
		},
		{
			name:     "no secrets to redact",
			input:    "This has no secrets",
			secrets:  []string{},
			expected: "This has no secrets",
		},
		{
			name:     "empty secret ignored",
			input:    "This has no secrets",
			secrets:  []string{""},
			expected: "This has no secrets",
		},
		{
			name:     "short secret ignored",
			input:    "Short secret: ab",
			secrets:  []string{"ab"},
			expected: "Short secret: ab", // Too short to redact
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Redact(tt.input, tt.secrets))
		})
	}
}
