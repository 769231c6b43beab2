package dcmobject

import (
	"path/filepath"
	"testing"
)

func TestContentHash_StableAndSensitiveToContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.dcm")
	pathB := filepath.Join(dir, "b.dcm")

	if err := WriteFile(pathA, sampleObject()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	other := sampleObject()
	other.SOPInstanceUID = "1.2.3.9"
	if err := WriteFile(pathB, other); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h1, err := ContentHash(pathA)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h1Again, err := ContentHash(pathA)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 != h1Again {
		t.Fatalf("hash not stable across calls: %s != %s", h1, h1Again)
	}

	h2, err := ContentHash(pathB)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected different content to hash differently")
	}
}
