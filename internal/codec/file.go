package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// File is a readable import source.
type File interface {
	Name() string
	// Type is the MIME type without parameters, or "" when unknown.
	Type() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type memFile struct {
	name string
	typ  string
	data []byte
}

// NewFile wraps in-memory content. An empty mimeType is guessed from the extension.
func NewFile(name, mimeType string, data []byte) File {
	if mimeType == "" {
		mimeType = typeByExtension(name)
	}
	return &memFile{name: name, typ: baseMediaType(mimeType), data: data}
}

func (f *memFile) Name() string { return f.name }
func (f *memFile) Type() string { return f.typ }
func (f *memFile) Size() int64  { return int64(len(f.data)) }
func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type diskFile struct {
	path string
	typ  string
	size int64
}

// OpenFile stats path and returns a File reading from disk.
func OpenFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &diskFile{path: path, typ: typeByExtension(path), size: info.Size()}, nil
}

func (f *diskFile) Name() string { return filepath.Base(f.path) }
func (f *diskFile) Type() string { return f.typ }
func (f *diskFile) Size() int64  { return f.size }
func (f *diskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

func typeByExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	return baseMediaType(mime.TypeByExtension(ext))
}

// extraTypes covers extensions the platform mime table often lacks.
var extraTypes = map[string]string{
	".ndjson":   "application/x-ndjson",
	".jsonl":    "application/x-ndjson",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
}

func baseMediaType(t string) string {
	if t == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return mt
}

// readAll reads f in full. Cancellation is only honored before the read starts.
func readAll(ctx context.Context, f File, maxSize int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxSize > 0 && f.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, f.Name(), f.Size(), maxSize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	r := io.Reader(rc)
	if maxSize > 0 {
		r = io.LimitReader(rc, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, f.Name(), maxSize)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, f.Name())
	}
	return data, nil
}
