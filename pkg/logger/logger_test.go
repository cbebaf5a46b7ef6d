package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNewWithWriter_ServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("auth-service", "debug", &buf)
	l.Debug("visible at debug")

	out := decodeLine(t, &buf)
	assert.Equal(t, "auth-service", out["service"])
	assert.Contains(t, out, "source")
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("auth-service", "warn", &buf)
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Equal(t, "kept", decodeLine(t, &buf)["msg"])
}

func TestNewWithWriter_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("auth-service", "info", &buf)
	l.Info("login",
		slog.String("email", "alice@example.com"),
		slog.String("password", "hunter22"),
		slog.String("Refresh_Token", "eyJ..."),
		slog.String("code", "123456"),
	)

	out := decodeLine(t, &buf)
	assert.Equal(t, "alice@example.com", out["email"])
	assert.Equal(t, Redacted, out["password"])
	assert.Equal(t, Redacted, out["Refresh_Token"])
	assert.Equal(t, Redacted, out["code"])
	assert.NotContains(t, buf.String(), "hunter22")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"b@x.io":            "b***@x.io",
		"no-at-sign":        "***",
		"@example.com":      "***",
		"":                  "***",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}
