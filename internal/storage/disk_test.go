package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureDiskUsage(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "helpdesk.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("wal"), 0644); err != nil {
		t.Fatal(err)
	}

	snap := filepath.Join(dir, "snap")
	if err := os.Mkdir(snap, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(snap, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(snap, "b"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		db, snap string
		want     DiskUsage
	}{
		{"db with wal", db, "", DiskUsage{Database: 8}},
		{"snapshot dir", "", snap, DiskUsage{Snapshots: 3}},
		{"both", db, snap, DiskUsage{Database: 8, Snapshots: 3}},
		{"missing paths", filepath.Join(dir, "none.db"), filepath.Join(dir, "none.gob"), DiskUsage{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MeasureDiskUsage(tt.db, tt.snap)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	u, _ := MeasureDiskUsage(db, snap)
	if u.Total() != 11 {
		t.Errorf("Total=%d, want 11", u.Total())
	}
}
