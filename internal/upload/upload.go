// Package upload is the attachment-storage collaborator: it takes a byte
// stream and returns the stored object's URL, mime type and size.
package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Object describes a stored upload.
type Object struct {
	URL      string
	MimeType string
	Size     int64
}

// Uploader stores an incoming byte stream under a caller-supplied file name.
type Uploader interface {
	Store(fileName string, r io.Reader) (*Object, error)
}

// LocalStore writes uploads into a directory and serves them under baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the upload directory if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes the stream to disk under a random name (the original
// extension is kept) and sniffs the mime type from the leading bytes.
func (l *LocalStore) Store(fileName string, r io.Reader) (*Object, error) {
	sniff := make([]byte, 512)
	n, err := io.ReadFull(r, sniff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	sniff = sniff[:n]
	mime := mimetype.Detect(sniff).String()

	name := uuid.New().String()
	if ext := filepath.Ext(fileName); ext != "" && len(ext) <= 12 {
		name += strings.ToLower(ext)
	}
	path := filepath.Join(l.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(sniff), r))
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return &Object{
		URL:      l.baseURL + "/" + name,
		MimeType: mime,
		Size:     written,
	}, nil
}
