package mapped

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMapsContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	want := "<html><body>hello</body></html>"
	if err := os.WriteFile(path, []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Unmap()

	if !f.Mapped() || f.Len() != len(want) {
		t.Fatalf("expected %d mapped bytes, got %d", len(want), f.Len())
	}
	if string(f.Bytes()) != want {
		t.Errorf("mapped contents mismatch: %q", f.Bytes())
	}
}

func TestUnmapIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(path, []byte("abc"), 0o644)

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Unmap(); err != nil {
		t.Fatalf("first Unmap: %v", err)
	}
	if err := f.Unmap(); err != nil {
		t.Errorf("second Unmap should be a no-op, got %v", err)
	}
	if f.Mapped() || f.Len() != 0 || f.Bytes() != nil {
		t.Error("expected empty File after Unmap")
	}

	var nilFile *File
	if err := nilFile.Unmap(); err != nil {
		t.Errorf("Unmap on nil File: %v", err)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	os.WriteFile(path, nil, 0o644)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Mapped() || f.Len() != 0 {
		t.Error("expected no mapping for an empty file")
	}
}

func TestOpenRejectsDirectories(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNotRegular) {
		t.Errorf("expected ErrNotRegular, got %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
