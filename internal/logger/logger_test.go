package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("series attached")

	if !strings.Contains(buf.String(), "series attached") {
		t.Errorf("expected output to contain message, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWithLevel(t *testing.T) {
	if got := NewWithLevel("warn", FormatJSON).GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("json logger level = %v, want warn", got)
	}
	if got := NewWithLevel("debug", FormatConsole).GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("console logger level = %v, want debug", got)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("expected default logger to be enabled")
	}
}

func TestFromContextOr(t *testing.T) {
	tests := []struct {
		name        string
		withRequest bool
		want        string
	}{
		{name: "request logger wins", withRequest: true, want: "request"},
		{name: "fallback without request logger", withRequest: false, want: "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBuf, fallbackBuf := &bytes.Buffer{}, &bytes.Buffer{}
			ctx := context.Background()
			if tt.withRequest {
				ctx = WithContext(ctx, NewWithWriter(reqBuf))
			}

			ctxLog := FromContextOr(ctx, NewWithWriter(fallbackBuf))
			ctxLog.Info().Msg("hello")

			got := "fallback"
			if reqBuf.Len() > 0 {
				got = "request"
			}
			if got != tt.want {
				t.Errorf("line went to %s logger, want %s", got, tt.want)
			}
			if reqBuf.Len() > 0 && fallbackBuf.Len() > 0 {
				t.Error("line written to both loggers")
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"job_id": "abc-123",
		"count":  42,
	})

	log.Info().Msg("import finished")

	out := buf.String()
	if !strings.Contains(out, "abc-123") || !strings.Contains(out, "42") {
		t.Errorf("expected fields in output, got: %s", out)
	}
}

func TestWithUser(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithUser(WithContext(context.Background(), NewWithWriter(buf)), 7)

	log := FromContext(ctx)
	log.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"user_id":7`) {
		t.Errorf("expected user_id field, got: %s", buf.String())
	}
}
