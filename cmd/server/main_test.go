package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoadIdentities(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "identities.json")

	content := `[
  {"id": "u-1", "username": "modmin", "permission_level": 4},
  {"id": " u-2 ", "username": " alice "},
  {"id": "", "username": "ghost"},
  {"id": "u-3", "username": ""},
  {"id": "u-4", "username": "root", "permission_level": 5}
]`

	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	identities, err := loadIdentities(testFile)
	if err != nil {
		t.Fatalf("loadIdentities failed: %v", err)
	}

	expected := []struct {
		id    string
		name  string
		level int
	}{
		{"u-1", "modmin", 4},
		{"u-2", "alice", 0},
		{"u-4", "root", 5},
	}

	if len(identities) != len(expected) {
		t.Fatalf("Expected %d identities, got %d", len(expected), len(identities))
	}

	for i, want := range expected {
		got := identities[i]
		if got.ID != want.id || got.Username != want.name || got.PermissionLevel != want.level {
			t.Errorf("Identity at index %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestLoadIdentities_EmptyFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "empty.json")

	if err := os.WriteFile(testFile, []byte("\n"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	identities, err := loadIdentities(testFile)
	if err != nil {
		t.Fatalf("loadIdentities failed: %v", err)
	}
	if len(identities) != 0 {
		t.Errorf("Expected 0 identities from empty file, got %d", len(identities))
	}
}

func TestLoadIdentities_Errors(t *testing.T) {
	if _, err := loadIdentities("/nonexistent/identities.json"); err == nil {
		t.Error("Expected error for nonexistent file, got nil")
	}

	testFile := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(testFile, []byte(`{"id": "u-1"`), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if _, err := loadIdentities(testFile); err == nil {
		t.Error("Expected parse error for malformed JSON, got nil")
	}
}

// TestLoadIdentities_LogsSkipped verifies that skipped entries are logged
func TestLoadIdentities_LogsSkipped(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := log.Logger
	defer func() {
		log.Logger = originalLogger
	}()

	log.Logger = zerolog.New(&buf).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	testFile := filepath.Join(t.TempDir(), "identities.json")
	if err := os.WriteFile(testFile, []byte(`[{"id": "u-1"}]`), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := loadIdentities(testFile); err != nil {
		t.Fatalf("loadIdentities failed: %v", err)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output as JSON: %v\nOutput: %s", err, buf.String())
	}

	if logEntry["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", logEntry["level"])
	}
	if logEntry["message"] != "Skipping identity without id or username" {
		t.Errorf("Unexpected message: %v", logEntry["message"])
	}
	if logEntry["index"] != float64(0) {
		t.Errorf("Expected index 0, got %v", logEntry["index"])
	}
}

func TestConfigureLogging(t *testing.T) {
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
	}()

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		configureLogging(tt.level, "json")
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("configureLogging(%q): expected %v, got %v", tt.level, tt.want, got)
		}
	}
}
