package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aliskhannn/pictools/internal/model"
)

func newTestFlatten(t *testing.T, sep string) *Flatten {
	t.Helper()
	f, err := NewFlatten(newStorage(), FlattenOptions{Separator: sep}, nil)
	if err != nil {
		t.Fatalf("NewFlatten: %v", err)
	}
	return f
}

func TestNewFlatten_Separator(t *testing.T) {
	tests := []struct {
		sep     string
		wantErr bool
	}{
		{"", false},
		{"~", false},
		{"_", false},
		{"/", true},
		{".", true},
		{"--", true},
	}
	for _, tt := range tests {
		_, err := NewFlatten(newStorage(), FlattenOptions{Separator: tt.sep}, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("separator %q: err = %v, wantErr %v", tt.sep, err, tt.wantErr)
		}
	}
}

func TestFlatten_MovesNestedFilesToRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "trip")
	writeImage(t, filepath.Join(root, "a", "b", "c", "img.jpg"), 10, 10)
	writeFile(t, filepath.Join(root, "a", "note.txt"), "x")
	writeFile(t, filepath.Join(root, "top.txt"), "x")

	f := newTestFlatten(t, "")
	job := f.Process(context.Background(), model.NewJobs([]string{root}))[0]
	if job.Err != nil {
		t.Fatalf("job failed: %v", job.Err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("directory %s left behind", e.Name())
		}
		names = append(names, e.Name())
	}
	want := []string{"a~b~c~img.jpg", "a~note.txt", "top.txt"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %s, want %s", i, names[i], want[i])
		}
	}

	res := lastResult(t, job)
	if res.Processed != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 2 moved, 1 already flat", res)
	}
	if len(job.Files) != 3 || job.ProcessedDir != root {
		t.Errorf("job = %+v", job)
	}

	job = f.Process(context.Background(), model.NewJobs([]string{root}))[0]
	if res := lastResult(t, job); res.Processed != 0 || res.Skipped != 3 {
		t.Errorf("second run = %+v, want nothing moved", res)
	}
}

func TestFlatten_CustomSeparator(t *testing.T) {
	root := filepath.Join(t.TempDir(), "trip")
	writeFile(t, filepath.Join(root, "x", "y.txt"), "x")

	f := newTestFlatten(t, "_")
	if job := f.Process(context.Background(), model.NewJobs([]string{root}))[0]; job.Err != nil {
		t.Fatalf("job failed: %v", job.Err)
	}
	if !exists(filepath.Join(root, "x_y.txt")) {
		t.Error("x_y.txt not created")
	}
}

func TestFlatten_CollisionMovesNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "trip")
	writeFile(t, filepath.Join(root, "a", "b~c.txt"), "1")
	writeFile(t, filepath.Join(root, "a~b", "c.txt"), "2")

	f := newTestFlatten(t, "")
	job := f.Process(context.Background(), model.NewJobs([]string{root}))[0]
	if !errors.Is(job.Err, ErrNameCollision) {
		t.Fatalf("job error = %v, want ErrNameCollision", job.Err)
	}

	for _, p := range []string{"a/b~c.txt", "a~b/c.txt"} {
		if !exists(filepath.Join(root, filepath.FromSlash(p))) {
			t.Errorf("%s was moved", p)
		}
	}
}

func TestFlatten_CollisionWithDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "trip")
	writeFile(t, filepath.Join(root, "a~b", "keep.txt"), "1")
	writeFile(t, filepath.Join(root, "a", "b"), "2")

	f := newTestFlatten(t, "")
	job := f.Process(context.Background(), model.NewJobs([]string{root}))[0]
	if !errors.Is(job.Err, ErrNameCollision) {
		t.Fatalf("job error = %v, want ErrNameCollision", job.Err)
	}
}
