// Package docid provides content-addressed document ids and deterministic point ids.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// pointNamespace scopes point ids so they never collide with UUIDv5 ids minted elsewhere.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hyperjump.tech/helpdesk/points"))

// Checksum returns the sha256 hex digest of content. Identical bytes always yield the same id.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader streams r through sha256 and returns the hex digest.
func ChecksumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile returns the sha256 hex digest of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ChecksumReader(f)
}

// PointID returns the UUIDv5 for chunk index of document docID owned by tenantID.
// The same triple always maps to the same id, so re-ingestion overwrites; identical
// content owned by two tenants yields two disjoint point sets.
func PointID(tenantID, docID string, index int) string {
	return uuid.NewSHA1(pointNamespace, []byte(tenantID+":"+docID+":"+strconv.Itoa(index))).String()
}
