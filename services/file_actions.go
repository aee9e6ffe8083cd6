package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DocumentArchive keeps a copy of every ingested document in the docs
// directory so the index can be rebuilt from disk.
type DocumentArchive struct {
	DocsDir string // absolute path
}

func NewDocumentArchive(dir string) (*DocumentArchive, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for %s: %w", dir, err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("could not create docs directory %s: %w", absPath, err)
	}
	return &DocumentArchive{DocsDir: absPath}, nil
}

// sanitizeFilename keeps only the base name so uploads cannot escape DocsDir.
func (a *DocumentArchive) sanitizeFilename(filename string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + filename))
	if base == "/" || base == "." || base == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	cleanPath := filepath.Join(a.DocsDir, base)
	if !strings.HasPrefix(cleanPath, a.DocsDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid filename %q, attempts to escape docs directory", filename)
	}
	return cleanPath, nil
}

// Save writes data under the base name of filename and returns the path.
func (a *DocumentArchive) Save(filename string, data []byte) (string, error) {
	path, err := a.sanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the archived copy. A missing file is not an error.
func (a *DocumentArchive) Remove(filename string) error {
	path, err := a.sanitizeFilename(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
