package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zac/internal/config"
)

func TestNewConsoleJSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "info", Format: "json"},
	}, &out)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("media type created", "mediatypeid", "5")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above debug, got %d: %q", len(lines), out.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "media type created" || record["mediatypeid"] != "5" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["time"]; ok {
		t.Fatalf("console sink must drop time attribute")
	}
}

func TestConsoleLineIsColoredByLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "debug", Format: "line"},
	}, &out)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer closeFn()

	logger.Warn("cleanup failed")
	if !strings.HasPrefix(out.String(), ansiYellow) || !strings.Contains(out.String(), ansiReset+"\n") {
		t.Fatalf("expected yellow line, got %q", out.String())
	}
}

func TestFileSinkWritesThroughRotator(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "zac.log")
	var console bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "error", Format: "json"},
		File:    config.LogSinkConfig{Enabled: true, Level: "info", Format: "json", Path: path, MaxSizeMB: 1},
	}, &console)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("seeded host", "host", "Zabbix web")
	closeFn()

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(body), `"host":"Zabbix web"`) {
		t.Fatalf("file sink missing record: %q", body)
	}
	if console.Len() != 0 {
		t.Fatalf("console sink above level must stay empty, got %q", console.String())
	}
}

func TestNewRejectsInvalidSinks(t *testing.T) {
	t.Parallel()

	cases := []config.LogConfig{
		{},
		{Console: config.LogSinkConfig{Enabled: true, Level: "trace", Format: "line"}},
		{Console: config.LogSinkConfig{Enabled: true, Level: "info", Format: "xml"}},
		{File: config.LogSinkConfig{Enabled: true, Level: "info", Format: "json"}},
	}
	for idx, cfg := range cases {
		if _, _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected error", idx)
		}
	}
}
