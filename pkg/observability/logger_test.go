package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/origolabs/origo/pkg/contextkeys"
)

// logEntry mirrors the slog JSON line shape for assertions.
type logEntry struct {
	Level   string `json:"level"`
	Message string `json:"msg"`
	Fields  map[string]interface{}
}

func (e *logEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Fields = make(map[string]interface{})
	for k, v := range raw {
		switch k {
		case "level":
			e.Level, _ = v.(string)
		case "msg":
			e.Message, _ = v.(string)
		case "time":
		default:
			e.Fields[k] = v
		}
	}
	return nil
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) logEntry {
	t.Helper()
	var entry logEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry.Level != "INFO" {
			t.Errorf("Expected level INFO, got %s", entry.Level)
		}
		if entry.Message != "info message" {
			t.Errorf("Expected message 'info message', got %s", entry.Message)
		}
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}

		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("tenant_id", "42").Info("resolved")

	entry := decodeEntry(t, &buf)
	if entry.Fields["tenant_id"] != "42" {
		t.Errorf("Expected field 'tenant_id' to be '42', got %v", entry.Fields["tenant_id"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"domain": "www.acme.com",
		"count":  3,
	}).Info("recheck finished")

	entry := decodeEntry(t, &buf)
	if entry.Fields["domain"] != "www.acme.com" {
		t.Errorf("Expected field 'domain', got %v", entry.Fields["domain"])
	}
	if entry.Fields["count"] != float64(3) {
		t.Errorf("Expected field 'count' to be 3, got %v", entry.Fields["count"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("dial refused")).Error("probe failed")

	entry := decodeEntry(t, &buf)
	if entry.Fields["error"] != "dial refused" {
		t.Errorf("Expected error field, got %v", entry.Fields["error"])
	}

	// nil error leaves the logger unchanged
	if logger.WithError(nil) != logger {
		t.Error("Expected WithError(nil) to return the same logger")
	}
}

func TestLogger_Formatters(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger)
		want string
	}{
		{"Debugf", func(l *Logger) { l.Debugf("probe %s took %dms", "acme", 12) }, "probe acme took 12ms"},
		{"Infof", func(l *Logger) { l.Infof("resolved %d tenants", 3) }, "resolved 3 tenants"},
		{"Warnf", func(l *Logger) { l.Warnf("slow query: %s", "roles") }, "slow query: roles"},
		{"Errorf", func(l *Logger) { l.Errorf("migration %v failed", 2) }, "migration 2 failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(DebugLevel, &buf))

			entry := decodeEntry(t, &buf)
			if entry.Message != tt.want {
				t.Errorf("Expected message %q, got %q", tt.want, entry.Message)
			}
		})
	}
}

func TestContextLogger(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)

		if GetLogger(ctx) != logger {
			t.Error("Expected to retrieve the attached logger")
		}
	})

	t.Run("fallback when absent", func(t *testing.T) {
		if GetLogger(context.Background()) == nil {
			t.Error("Expected a default logger when none attached")
		}
	})

	t.Run("FromContext picks up request id", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "req-123")

		FromContext(ctx).Info("handled")

		entry := decodeEntry(t, &buf)
		if entry.Fields["request_id"] != "req-123" {
			t.Errorf("Expected request_id 'req-123', got %v", entry.Fields["request_id"])
		}
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
