package db

import (
	"path/filepath"
	"testing"
)

func TestPragmasApplied(t *testing.T) {
	tests := []struct {
		name        string
		journalMode string
		want        string
	}{
		{"hit store", "WAL", "wal"},
		{"artifact", "DELETE", "delete"},
		{"default", "", "wal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(filepath.Join(t.TempDir(), "pragmas.db"), Options{JournalMode: tt.journalMode})
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer db.Close()

			var journalMode string
			if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
				t.Fatalf("Failed to query journal_mode: %v", err)
			}
			if journalMode != tt.want {
				t.Errorf("journal_mode = %s, want %s", journalMode, tt.want)
			}

			var busyTimeout int
			if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
				t.Fatalf("Failed to query busy_timeout: %v", err)
			}
			if busyTimeout != 5000 {
				t.Errorf("busy_timeout = %d, want 5000", busyTimeout)
			}
		})
	}
}

func TestOpenBadJournalMode(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "bad.db"), Options{JournalMode: "WAL; DROP TABLE x"})
	if err == nil {
		t.Error("expected error for malformed journal mode")
	}
}
