package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_DefaultConfig(t *testing.T) {
	logger, err := New(NewDefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	if logger == nil {
		t.Fatal("New() returned nil logger")
	}
	defer logger.Sync()

	if !logger.Enabled(zapcore.InfoLevel) {
		t.Error("Enabled(Info) = false, want true")
	}
	if logger.Enabled(zapcore.DebugLevel) {
		t.Error("Enabled(Debug) = true, want false at info level")
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("New() error = nil, want format error")
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "negmine.log")
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Output = path

	logger, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}

	logger.Info(context.Background(), "hello from test", zap.Int("n", 7))
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"negmine"`) {
		t.Errorf("log file missing constant service field, got: %s", data)
	}
}

func TestLogger_NamedAndWith(t *testing.T) {
	tl := NewTestLogger()

	child := tl.Named("miner").With(zap.String("collection", "neg_test"))
	child.Info(context.Background(), "stage complete")

	entries := tl.FilterMessage("stage complete").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LoggerName != "miner" {
		t.Errorf("LoggerName = %q, want %q", entries[0].LoggerName, "miner")
	}
	found := false
	for _, f := range entries[0].Context {
		if f.Key == "collection" && f.String == "neg_test" {
			found = true
		}
	}
	if !found {
		t.Error("collection field not propagated to child logger entry")
	}
}

func TestTestLogger_AssertLogged(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "skipping malformed line", zap.Int("line", 3))
	tl.AssertLogged(t, zapcore.WarnLevel, "malformed line")
}

func TestFromContext_Fallback(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext() returned nil, want nop logger")
	}
	// The nop logger must be usable without panicking.
	logger.Info(context.Background(), "discarded")
}

func TestWithLogger_RoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)

	FromContext(ctx).Info(ctx, "through context")
	tl.AssertLogged(t, zapcore.InfoLevel, "through context")
}
