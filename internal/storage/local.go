// Package storage keeps uploaded animal photos on the local filesystem.
//
// Files are written under a single directory and referenced from records by
// a URL path (URLPrefix + "/" + name) that the router serves read-only.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads"

var (
	ErrNotImage = errors.New("only image files are allowed")
	ErrTooLarge = errors.New("image exceeds size limit")
)

var allowedExt = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
}

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Local stores files in Dir.
type Local struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewLocal creates dir if needed.
func NewLocal(dir string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &Local{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the directory files are written to.
func (l *Local) Dir() string { return l.dir }

// Save validates an uploaded image and writes it under a generated name.
// It returns the URL path to store on the record.
func (l *Local) Save(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExt[ext] {
		return "", ErrNotImage
	}
	if fh.Size > l.maxBytes {
		return "", ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if !allowedMIME[http.DetectContentType(head)] {
		return "", ErrNotImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := l.fileName(ext)
	full := filepath.Join(l.dir, name)
	tmp := full + ".tmp"

	dst, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	// Reading one byte past the cap detects a header that lied about size.
	body := io.MultiReader(bytes.NewReader(head), src)
	written, err := io.Copy(dst, io.LimitReader(body, l.maxBytes+1))
	if err == nil && written > l.maxBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = dst.Sync()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return path.Join(URLPrefix, name), nil
}

// Remove deletes the file referenced by a stored URL path.  A missing file
// is not an error.  Only the base name is used, so a crafted value cannot
// escape the upload directory.
func (l *Local) Remove(ctx context.Context, urlPath string) error {
	name := path.Base(urlPath)
	if name == "." || name == "/" || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(l.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the file referenced by urlPath is present.
func (l *Local) Exists(urlPath string) bool {
	_, err := os.Stat(filepath.Join(l.dir, path.Base(urlPath)))
	return err == nil
}

// fileName builds animal-<unix-millis>-<random><ext>.
func (l *Local) fileName(ext string) string {
	return fmt.Sprintf("animal-%d-%s%s", l.now().UnixMilli(), uuid.NewString()[:8], ext)
}
