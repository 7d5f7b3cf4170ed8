package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/log"
)

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewLogger(log.LoggerConfig{Version: "1.2.3", Out: &buf})

	lg.Info("hello", "sample", "A")
	out := buf.String()
	require.Contains(t, out, "hello")
	require.Contains(t, out, "sample=A")
	require.Contains(t, out, "version=1.2.3")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewLogger(log.LoggerConfig{Out: &buf, JSON: true})

	lg.Info("hello")
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewLogger(log.LoggerConfig{Out: &buf, Level: slog.LevelWarn})

	lg.Info("quiet")
	require.Empty(t, buf.String())
	lg.Warn("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestContextRoundtrip(t *testing.T) {
	lg, th := log.NewTestLogger()
	ctx := log.ContextWithLogger(context.Background(), lg)

	log.FromContext(ctx).Info("captured", "k", 1)
	require.Len(t, th.Entries, 1)
	require.Equal(t, "captured", th.Entries[0].Msg)
	require.Equal(t, int64(1), th.Entries[0].Attrs["k"])
}

func TestFromContextFallsBackToNop(t *testing.T) {
	// must not panic, must not write anywhere
	log.FromContext(context.Background()).Info("dropped")
	log.FromContext(nil).Info("dropped") //nolint:staticcheck
}

func TestFindEntries(t *testing.T) {
	lg, th := log.NewTestLogger()
	lg.Info("one")
	lg.Warn("two")
	lg.Info("three")

	warns := th.FindEntries(func(e log.LoggedEntry) bool {
		return e.Level == slog.LevelWarn
	})
	require.Len(t, warns, 1)
	require.Equal(t, "two", warns[0].Msg)
}
