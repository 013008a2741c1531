package logger

import (
	"context"
	"testing"

	"gitcats/pkg/utils/contextkey"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARNING", zapcore.WarnLevel},
		{"warn", zapcore.WarnLevel},
		{" Error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := GetLogger()
	SetGlobal(NewWithCore(core))
	t.Cleanup(func() { SetGlobal(prev) })

	ctx := context.WithValue(context.Background(), contextkey.RunID, "run-1")
	ctx = context.WithValue(ctx, contextkey.Participant, "alice")
	Debug(ctx, "hidden")
	Info(ctx, "visible")
	Warnf(ctx, "submission %s", "A1")

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["run_id"] != "run-1" || fields["participant"] != "alice" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if entries[1].Message != "submission A1" || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}
	if DebugEnabled() {
		t.Error("debug must be disabled at info level")
	}
}

func TestNilGlobalIsSilent(t *testing.T) {
	prev := GetLogger()
	SetGlobal(nil)
	t.Cleanup(func() { SetGlobal(prev) })

	Info(context.Background(), "dropped")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}
