package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithin(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(unsafeDir, "secret.mp3"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	link := filepath.Join(safeDir, "evil")
	if err := os.Symlink(unsafeDir, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		dir       string
		wantError bool
	}{
		{"file in dir", filepath.Join(safeDir, "start.mp3"), safeDir, false},
		{"nested file that does not exist", filepath.Join(safeDir, "mission", "start.mp3"), safeDir, false},
		{"dir itself", safeDir, safeDir, false},
		{"dot dot", filepath.Join(safeDir, "..", "unsafe", "secret.mp3"), safeDir, true},
		{"relative escape", "../../../etc/passwd", safeDir, true},
		{"absolute outside", "/etc/passwd", safeDir, true},
		{"through symlink", filepath.Join(link, "secret.mp3"), safeDir, true},
		{"new file under symlink", filepath.Join(link, "new.mp3"), safeDir, true},
		{"symlink itself", link, safeDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Within(tt.path, tt.dir)
			if (err != nil) != tt.wantError {
				t.Fatalf("Within() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrOutsideDir) {
				t.Errorf("Within() error = %v, want ErrOutsideDir", err)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	dir := t.TempDir()

	got, err := Join(dir, "mission", "start.mp3")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if want := filepath.Join(dir, "mission", "start.mp3"); got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}

	if _, err := Join(dir, "..", "x.mp3"); !errors.Is(err, ErrOutsideDir) {
		t.Errorf("Join() with .. error = %v, want ErrOutsideDir", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"6f1c2d3e", "6f1c2d3e"},
		{"run 1/2", "run_1_2"},
		{"../../etc", "etc"},
		{"a  b", "a_b"},
		{"___", "unknown"},
		{"lane-v1.2", "lane-v1.2"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
