package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage reports bytes used by each local artifact of a deployment.
type DiskUsage struct {
	Database  int64 `json:"database_bytes"`
	Snapshots int64 `json:"snapshot_bytes"`
}

// Total returns the sum of all artifacts.
func (u DiskUsage) Total() int64 {
	return u.Database + u.Snapshots
}

// MeasureDiskUsage sizes the SQLite database (with its WAL and SHM side files) and the
// vector snapshot. Empty or missing paths count as zero.
func MeasureDiskUsage(dbPath, snapshotPath string) (DiskUsage, error) {
	var u DiskUsage
	var err error
	if dbPath != "" {
		if u.Database, err = sizeOf(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
			return DiskUsage{}, err
		}
	}
	if u.Snapshots, err = sizeOf(snapshotPath); err != nil {
		return DiskUsage{}, err
	}
	return u, nil
}

// sizeOf sums files and, recursively, directories.
func sizeOf(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
