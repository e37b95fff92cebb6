package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "level %q", in)
	}
}

func TestFilteringHandler_BlocksBelowMinLevel(t *testing.T) {
	h := &filteringHandler{
		handler:  slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}),
		minLevel: slog.LevelWarn,
	}
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
