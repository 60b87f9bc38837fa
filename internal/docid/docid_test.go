package docid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestChecksum(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Checksum([]byte("abc")); got != want {
		t.Errorf("Checksum(abc) = %s, want %s", got, want)
	}
	if Checksum([]byte("abc")) == Checksum([]byte("abd")) {
		t.Error("different content should give different checksums")
	}
}

func TestChecksumReader_matchesChecksum(t *testing.T) {
	content := strings.Repeat("helpdesk knowledge ", 2000)
	got, err := ChecksumReader(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if got != Checksum([]byte(content)) {
		t.Errorf("stream and in-memory checksum differ: %s", got)
	}
}

func TestChecksumFile_sameContentDifferentPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "sub", "b.txt")
	if err := os.MkdirAll(filepath.Dir(b), 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("same bytes"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	ida, err := ChecksumFile(a)
	if err != nil {
		t.Fatal(err)
	}
	idb, err := ChecksumFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if ida != idb {
		t.Errorf("identical content should collapse to one id: %s vs %s", ida, idb)
	}
	if _, err := ChecksumFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPointID(t *testing.T) {
	doc := Checksum([]byte("doc"))
	id1 := PointID("tenant-acme", doc, 0)
	if id1 != PointID("tenant-acme", doc, 0) {
		t.Error("same (tenant, doc, index) should give same id")
	}
	if id1 == PointID("tenant-acme", doc, 1) {
		t.Error("different index should give different id")
	}
	if id1 == PointID("tenant-acme", Checksum([]byte("other")), 0) {
		t.Error("different doc should give different id")
	}
	if id1 == PointID("tenant-globex", doc, 0) {
		t.Error("same content owned by another tenant should give a different id")
	}
	parsed, err := uuid.Parse(id1)
	if err != nil {
		t.Fatalf("point id is not a uuid: %v", err)
	}
	if parsed.Version() != 5 {
		t.Errorf("version = %d, want 5", parsed.Version())
	}
}
