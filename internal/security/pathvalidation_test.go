package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	if err := os.MkdirAll(safeDir, 0755); err != nil {
		t.Fatalf("Failed to create safe directory: %v", err)
	}
	if err := os.MkdirAll(unsafeDir, 0755); err != nil {
		t.Fatalf("Failed to create unsafe directory: %v", err)
	}
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	if err := os.Symlink(unsafeDir, symlinkPath); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "threshold.png"), safeDir, false},
		{"nested new file", filepath.Join(safeDir, "run", "noise.png"), safeDir, false},
		{"parent traversal", filepath.Join(safeDir, "..", "x.png"), safeDir, true},
		{"relative escape", "../../../etc/passwd", safeDir, true},
		{"absolute outside", "/etc/passwd", safeDir, true},
		{"through symlink", filepath.Join(symlinkPath, "x.png"), safeDir, true},
		{"the directory itself", safeDir, safeDir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestValidatePathMissingSafeDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if err := ValidatePathWithinDirectory(filepath.Join(missing, "a"), missing); err == nil {
		t.Error("expected error for a safe directory that does not exist")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"threshold_bottom", "threshold_bottom"},
		{"noise map (top)", "noise_map_top"},
		{"../../etc/passwd", "etc_passwd"},
		{"run 6f1c/5a9e", "run_6f1c_5a9e"},
		{"", "unknown"},
		{"...", "unknown"},
		{"a\x00b", "a_b"},
		{"ünïcode", "n_code"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SanitizeFilename(strings.Repeat("a", 500))
	if len(long) != 128 {
		t.Errorf("expected length cap of 128, got %d", len(long))
	}
}

func TestFileInDirectory(t *testing.T) {
	dir := t.TempDir()
	path, err := FileInDirectory(dir, "../threshold map", ".html")
	if err != nil {
		t.Fatalf("FileInDirectory failed: %v", err)
	}
	if want := filepath.Join(dir, "threshold_map.html"); path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}
