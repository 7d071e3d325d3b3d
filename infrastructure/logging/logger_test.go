package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"json info", "info", "json"},
		{"text debug", "debug", "text"},
		{"invalid level falls back to info", "not-a-level", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New("claimchain", tt.level, tt.format)
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New("claimchain", "info", "json")
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.WithContext(ctx).Info("committed block")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["trace_id"] != "trace-123" {
		t.Fatalf("expected trace_id field, got %v", decoded)
	}
	if decoded["service"] != "claimchain" {
		t.Fatalf("expected service field, got %v", decoded)
	}
}

func TestLogGrantWithoutClaim(t *testing.T) {
	var buf bytes.Buffer
	logger := New("claimchain", "info", "json")
	logger.SetOutput(&buf)

	logger.LogGrantWithoutClaim(context.Background(), "abcd1234", []byte("ghost"))

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["level"] != "warning" {
		t.Fatalf("expected warning level, got %v", decoded["level"])
	}
	if decoded["label"] != "ghost" {
		t.Fatalf("expected label field, got %v", decoded)
	}
}
