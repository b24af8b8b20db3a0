package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DocumentPath returns where a source's raw document is kept under dir.
func DocumentPath(dir, source string) string {
	return filepath.Join(dir, source+".json")
}

// SaveDocument writes a raw document as indented JSON.
func SaveDocument(path string, doc Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", doc.Source, err)
	}
	return os.WriteFile(path, body, 0o644)
}

// LoadDocument reads a raw document previously written by SaveDocument.
func LoadDocument(path string) (Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

// FileSource replays a saved document instead of calling the network.
type FileSource struct {
	source string
	path   string
}

// NewFileSource constructs a FileSource.
func NewFileSource(source, path string) *FileSource {
	return &FileSource{source: source, path: path}
}

// Source implements SourceFetcher.
func (f *FileSource) Source() string { return f.source }

// Fetch implements SourceFetcher.
func (f *FileSource) Fetch(_ context.Context) (Document, error) {
	doc, err := LoadDocument(f.path)
	if err != nil {
		return Document{}, fmt.Errorf("load %s document: %w", f.source, err)
	}
	if doc.Source == "" {
		doc.Source = f.source
	}
	return doc, nil
}

var _ SourceFetcher = (*FileSource)(nil)
