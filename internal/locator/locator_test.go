package locator

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(imaging.New(w, h, color.White), path); err != nil {
		t.Fatalf("save image: %v", err)
	}
	return path
}

func relative(t *testing.T, dir string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestFind_FiltersExtensionsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.JPG")
	touch(t, dir, "a.jpeg")
	touch(t, dir, "c.png")
	touch(t, dir, "notes.txt")
	touch(t, dir, "clip.mp4")

	files, err := New(afero.NewOsFs()).Find(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	got := strings.Join(relative(t, dir, files), ",")
	if want := "a.jpeg,b.JPG,c.png"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFind_ConfigurableExtensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg")
	touch(t, dir, "b.png")

	files, err := New(afero.NewOsFs(), ".JPG", "jpeg").Find(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := relative(t, dir, files); len(got) != 1 || got[0] != "a.jpg" {
		t.Errorf("got %v, want [a.jpg]", got)
	}
}

func TestFind_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "z.jpg")
	touch(t, dir, "sub/b.jpg")
	touch(t, dir, "sub/a.jpg")
	touch(t, dir, "sub/deeper/c.jpg")

	l := New(afero.NewOsFs())

	files, err := l.Find(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	got := strings.Join(relative(t, dir, files), ",")
	if want := "sub/a.jpg,sub/b.jpg,sub/deeper/c.jpg,z.jpg"; got != want {
		t.Errorf("recursive: got %s, want %s", got, want)
	}

	files, err = l.Find(dir, Options{Sort: true})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := relative(t, dir, files); len(got) != 1 || got[0] != "z.jpg" {
		t.Errorf("non-recursive: got %v, want [z.jpg]", got)
	}
}

func TestFind_SkipsHiddenAndTempFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg")
	touch(t, dir, ".hidden.jpg")
	touch(t, dir, ".a.jpg.0b5e.tmp")
	touch(t, dir, ".thumbs/b.jpg")

	files, err := New(afero.NewOsFs()).Find(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := relative(t, dir, files); len(got) != 1 || got[0] != "a.jpg" {
		t.Errorf("got %v, want [a.jpg]", got)
	}
}

func TestFind_Filter(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "keep.jpg")
	touch(t, dir, "drop.jpg")

	opts := DefaultOptions()
	opts.Filter = func(path string) bool { return strings.Contains(path, "keep") }

	files, err := New(afero.NewOsFs()).Find(dir, opts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := relative(t, dir, files); len(got) != 1 || got[0] != "keep.jpg" {
		t.Errorf("got %v, want [keep.jpg]", got)
	}
}

func TestFind_MissingDir(t *testing.T) {
	if _, err := New(afero.NewOsFs()).Find(filepath.Join(t.TempDir(), "missing"), DefaultOptions()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLargerThan(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "big.png", 2000, 1000)
	writeImage(t, dir, "small.png", 100, 100)
	touch(t, dir, "broken.png")

	l := New(afero.NewOsFs())
	opts := DefaultOptions()
	opts.Filter = l.LargerThan(2)

	files, err := l.Find(dir, opts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got := relative(t, dir, files); len(got) != 1 || got[0] != "big.png" {
		t.Errorf("got %v, want [big.png]", got)
	}
}

func TestImageFile_Describe(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "img.jpg", 64, 48)

	f := New(afero.NewOsFs()).Describe(path)
	w, h, err := f.Dimensions()
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 64 || h != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", w, h)
	}
	if px, _ := f.Pixels(); px != 64*48 {
		t.Errorf("pixels = %d, want %d", px, 64*48)
	}
	size, err := f.Size()
	if err != nil || size <= 0 {
		t.Errorf("Size = %d, %v", size, err)
	}
}
