package storage

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

// fileHeader builds a *multipart.FileHeader the way echo hands one to a
// handler.
func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["image"][0]
}

func newStore(t *testing.T, max int64) *Local {
	t.Helper()
	s, err := NewLocal(filepath.Join(t.TempDir(), "uploads"), max)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSave_WritesImage(t *testing.T) {
	s := newStore(t, 1<<20)
	p, err := s.Save(context.Background(), fileHeader(t, "Cow.PNG", pngBytes))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !regexp.MustCompile(`^/uploads/animal-\d+-[0-9a-f]{8}\.png$`).MatchString(p) {
		t.Fatalf("unexpected path %q", p)
	}
	got, err := os.ReadFile(filepath.Join(s.Dir(), filepath.Base(p)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, pngBytes) {
		t.Fatal("stored content differs from upload")
	}
	if !s.Exists(p) {
		t.Fatal("Exists should report the new file")
	}
}

func TestSave_UniqueNames(t *testing.T) {
	s := newStore(t, 1<<20)
	a, _ := s.Save(context.Background(), fileHeader(t, "a.png", pngBytes))
	b, _ := s.Save(context.Background(), fileHeader(t, "a.png", pngBytes))
	if a == "" || a == b {
		t.Fatalf("names collide: %q %q", a, b)
	}
}

func TestSave_Rejects(t *testing.T) {
	s := newStore(t, 100)
	cases := []struct {
		name     string
		filename string
		content  []byte
		want     error
	}{
		{"text extension", "notes.txt", pngBytes, ErrNotImage},
		{"no extension", "photo", pngBytes, ErrNotImage},
		{"disguised text", "fake.png", []byte("hello, this is plain text"), ErrNotImage},
		{"svg", "x.gif", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), ErrNotImage},
		{"too large", "big.png", append(pngBytes, bytes.Repeat([]byte{1}, 200)...), ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Save(context.Background(), fileHeader(t, tc.filename, tc.content))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Fatalf("rejected uploads left %d files behind", len(entries))
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t, 1<<20)
	p, err := s.Save(context.Background(), fileHeader(t, "a.gif", append([]byte("GIF89a"), 0, 0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(context.Background(), p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.Exists(p) {
		t.Fatal("file still present after Remove")
	}
	if err := s.Remove(context.Background(), p); err != nil {
		t.Fatalf("removing a missing file should succeed, got %v", err)
	}
}

func TestRemove_StaysInsideDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewLocal(filepath.Join(root, "uploads"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(context.Background(), "/uploads/../keep.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside upload dir was touched: %v", err)
	}
}
