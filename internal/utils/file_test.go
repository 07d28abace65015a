package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"photo.JPG":  true,
		"photo.webp": true,
		"scan.tiff":  false,
		"notes.txt":  false,
		"noext":      false,
	}
	for name, want := range tests {
		if got := IsImageFile(name); got != want {
			t.Errorf("IsImageFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		dir, name, want string
	}{
		{"out", "certificate.png", filepath.Join("out", "certificate.png")},
		{"out", "Maria: 2024", filepath.Join("out", "Maria_ 2024.png")},
		{".", "", "certificate.png"},
		{"out", "../escape.png", filepath.Join("out", "_escape.png")},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.dir, tt.name); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.dir, tt.name, got, tt.want)
		}
	}
}

func TestPreviewFilename(t *testing.T) {
	if got := PreviewFilename("out/certificate.png", "webp"); got != "out/certificate_preview.webp" {
		t.Errorf("unexpected preview name %q", got)
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if FileExists(dir) {
		t.Error("a directory is not a file")
	}
	file := filepath.Join(dir, "x.png")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) {
		t.Error("expected file to exist")
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for size, want := range tests {
		if got := FormatFileSize(size); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", size, got, want)
		}
	}
}
