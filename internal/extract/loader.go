// Package extract loads source documents from disk and turns them into plain text.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/helpdesk/internal/models"
)

// SupportedExtensions lists the formats with a dedicated extractor or plain-text handling.
var SupportedExtensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}

// File is a loaded document: the raw bytes that identify it and the text to index.
type File struct {
	Path string
	Ext  string
	Raw  []byte
	Text string
}

// Loader reads a document and extracts its text.
type Loader interface {
	Load(ctx context.Context, path string) (*File, error)
}

// FileLoader loads documents from the local filesystem.
type FileLoader struct {
	allowed map[string]bool
}

var _ Loader = (*FileLoader)(nil)

// NewFileLoader returns a loader that accepts the given extensions (with or without the
// leading dot, case-insensitive). No extensions means SupportedExtensions.
func NewFileLoader(extensions ...string) *FileLoader {
	if len(extensions) == 0 {
		extensions = SupportedExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &FileLoader{allowed: allowed}
}

// Allowed reports whether path has an accepted extension.
func (l *FileLoader) Allowed(path string) bool {
	return l.allowed[strings.ToLower(filepath.Ext(path))]
}

// Load reads path and extracts its text. Unreadable files, rejected extensions and
// undecodable content are content errors: they fail the document, not the run.
func (l *FileLoader) Load(ctx context.Context, path string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !l.allowed[ext] {
		return nil, fmt.Errorf("%w: unsupported file type %q: %s", models.ErrContent, ext, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrContent, path, err)
	}
	text, err := Extract(raw, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrContent, path, err)
	}
	return &File{Path: path, Ext: ext, Raw: raw, Text: text}, nil
}

// Extract converts content to text based on ext (with leading dot).
// Extensions without a dedicated extractor are decoded as UTF-8 text.
func Extract(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		return extractPlain(content), nil
	}
}
