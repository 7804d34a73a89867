package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	if err := RunMigrateCommand([]string{"status"}, dbPath, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 0") {
		t.Errorf("status on fresh db: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"up"}, dbPath, &out); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("up output: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, dbPath, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Errorf("status after up: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"down"}, dbPath, &out); err != nil {
		t.Fatalf("down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") {
		t.Errorf("down output: %q", out.String())
	}
}

func TestRunMigrateCommandErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	if err := RunMigrateCommand(nil, dbPath, &out); err == nil {
		t.Error("expected error without action")
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Error("expected help text without action")
	}
	if err := RunMigrateCommand([]string{"sideways"}, dbPath, &out); err == nil {
		t.Error("expected error for unknown action")
	}
	if err := RunMigrateCommand([]string{"force"}, dbPath, &out); err == nil {
		t.Error("expected error for force without version")
	}
	if err := RunMigrateCommand([]string{"force", "two"}, dbPath, &out); err == nil {
		t.Error("expected error for non-numeric version")
	}
	if err := RunMigrateCommand([]string{"help"}, dbPath, &out); err != nil {
		t.Errorf("help failed: %v", err)
	}
}
