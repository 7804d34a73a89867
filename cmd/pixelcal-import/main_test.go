package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/pixelcal/internal/db"
	"github.com/banshee-data/pixelcal/internal/monitoring"
)

func TestImportFile(t *testing.T) {
	monitoring.SetLogger(nil)

	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("row,col,inj,tot\n")
	for i := 0; i < 25; i++ {
		b.WriteString("1,2,3,4\n")
	}
	csvPath := filepath.Join(dir, "scan.csv")
	if err := os.WriteFile(csvPath, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	database, err := db.OpenDB(filepath.Join(dir, "hits.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer database.Close()
	store := db.NewHitStore(database)

	for i := 0; i < 2; i++ {
		if err := importFile(context.Background(), store, csvPath, 10); err != nil {
			t.Fatalf("importFile: %v", err)
		}
	}
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 50 {
		t.Errorf("expected 50 hits after two imports, got %d", n)
	}
}

func TestImportFileBadRecord(t *testing.T) {
	monitoring.SetLogger(nil)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "bad.csv")
	if err := os.WriteFile(csvPath, []byte("1,2,3,4\n1,2,x,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	database, err := db.OpenDB(filepath.Join(dir, "hits.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := importFile(context.Background(), db.NewHitStore(database), csvPath, 10); err == nil {
		t.Fatal("expected error for malformed record")
	}
	if err := importFile(context.Background(), db.NewHitStore(database), filepath.Join(dir, "missing.csv"), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}
