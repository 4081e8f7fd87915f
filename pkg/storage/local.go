package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store abstracts blob storage for uploaded files.
type Store interface {
	Save(path string, contents io.Reader) error
	Delete(path string) error
}

// Local is a Store backed by the local filesystem.
type Local struct {
	maxFileSize int64 // maximum number of bytes per file
	basePath    string
}

// maxBytesWriter is a writer that errors when more than N bytes are written.
type maxBytesWriter struct {
	w io.Writer // underlying writer
	n int64     // max bytes remaining
}

func (l *maxBytesWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.w.Write(p)
	l.n -= int64(n)
	if err != nil {
		return n, err
	}
	if l.n <= 0 {
		return n, io.EOF
	}
	return n, nil
}

// NewLocal creates a new Local store rooted at basePath. maxSize is the
// maximum number of bytes a single file may have.
func NewLocal(basePath string, maxSize int64) (*Local, error) {
	p, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	return &Local{basePath: p, maxFileSize: maxSize}, nil
}

// Save writes contents to the given path under the store's base directory.
// The write goes through a temporary file so a partial upload never
// overwrites an existing blob.
func (l *Local) Save(path string, contents io.Reader) error {
	fp := l.fullPath(path)
	dir := filepath.Dir(fp)

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	// Allow one extra byte through so an exactly-max-sized file can be
	// told apart from a truncated oversized one.
	writer := &maxBytesWriter{w: tempFile, n: l.maxFileSize + 1}
	written, err := io.Copy(writer, contents)
	if err != nil && err != io.EOF {
		tempFile.Close()
		return fmt.Errorf("unable to write to file: %w", err)
	}

	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	if written > l.maxFileSize {
		return fmt.Errorf("file size exceeds maximum allowed size of %d bytes", l.maxFileSize)
	}

	if err := os.Rename(tempPath, fp); err != nil {
		return fmt.Errorf("unable to move temporary file to final location: %w", err)
	}
	return nil
}

// Delete removes the blob at the given path.
func (l *Local) Delete(path string) error {
	if err := os.Remove(l.fullPath(path)); err != nil {
		return fmt.Errorf("unable to delete file: %w", err)
	}
	return nil
}

// fullPath returns the absolute path for a blob.
func (l *Local) fullPath(path string) string {
	return filepath.Join(l.basePath, path)
}
