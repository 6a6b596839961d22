package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// setTestEnv は必須環境変数をテスト用の値に設定する。
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GRAPH_TENANT_ID", "test-tenant")
	t.Setenv("GRAPH_CLIENT_ID", "test-client-id")
	t.Setenv("GRAPH_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GRAPH_USER_ID", "user@example.com")
	t.Setenv("CALENDAR_NAME", "社内カレンダー")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.CalendarName != "社内カレンダー" {
		t.Errorf("CalendarName = %q", cfg.CalendarName)
	}

	// グローバルロガーがJSON出力に構成されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("GRAPH_TENANT_ID", "")
	t.Setenv("GRAPH_CLIENT_ID", "")
	t.Setenv("GRAPH_CLIENT_SECRET", "")
	t.Setenv("GRAPH_USER_ID", "")
	t.Setenv("CALENDAR_NAME", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestInit_AppliesConfiguredLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	buf.Reset()
	slog.Default().Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("infoログはwarnレベルで抑制されるべき: %s", buf.String())
	}

	slog.Default().Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warnログは出力されるべき")
	}
}
