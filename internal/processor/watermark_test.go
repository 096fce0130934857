package processor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aliskhannn/pictools/internal/model"
)

func TestNewWatermark_Validation(t *testing.T) {
	if _, err := NewWatermark(newStorage(), newLocator(), WatermarkOptions{}, nil); err == nil {
		t.Error("missing text: expected error")
	}
	if _, err := NewWatermark(newStorage(), newLocator(), WatermarkOptions{Text: "x", FontPath: "/no/such/font.ttf"}, nil); err == nil {
		t.Error("missing font: expected error")
	}
}

func TestWatermark_WritesMarkedCopies(t *testing.T) {
	src := filepath.Join(t.TempDir(), "trip")
	writeImage(t, filepath.Join(src, "a.jpg"), 200, 100)
	writeImage(t, filepath.Join(src, "b.png"), 120, 160)

	w, err := NewWatermark(newStorage(), newLocator(), WatermarkOptions{Text: "(c) pictools"}, nil)
	if err != nil {
		t.Fatalf("NewWatermark: %v", err)
	}

	job := w.Process(context.Background(), model.NewJobs([]string{src}))[0]
	if job.Err != nil {
		t.Fatalf("job failed: %v", job.Err)
	}

	for name, size := range map[string][2]int{"a_wm.jpg": {200, 100}, "b_wm.png": {120, 160}} {
		gw, gh := dimensions(t, filepath.Join(src, name))
		if gw != size[0] || gh != size[1] {
			t.Errorf("%s = %dx%d, want %dx%d", name, gw, gh, size[0], size[1])
		}
	}
	if len(job.Files) != 2 {
		t.Errorf("Files = %v", job.Files)
	}

	job = w.Process(context.Background(), model.NewJobs([]string{src}))[0]
	if res := lastResult(t, job); res.Processed != 0 || res.Skipped != 2 {
		t.Errorf("second run = %+v, want 2 skipped", res)
	}
}

func TestWatermark_UsesFilesOfEarlierStage(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out", "trip")
	writeImage(t, filepath.Join(out, "a.jpg"), 50, 50)
	writeImage(t, filepath.Join(out, "other.jpg"), 50, 50)

	jobs := model.NewJobs([]string{filepath.Join(root, "trip")})
	jobs[0].ProcessedDir = out
	jobs[0].Files = []string{filepath.Join(out, "a.jpg")}

	w, _ := NewWatermark(newStorage(), newLocator(), WatermarkOptions{Text: "x"}, nil)
	job := w.Process(context.Background(), jobs)[0]
	if job.Err != nil {
		t.Fatalf("job failed: %v", job.Err)
	}

	if !exists(filepath.Join(out, "a_wm.jpg")) {
		t.Error("a_wm.jpg not written")
	}
	if exists(filepath.Join(out, "other_wm.jpg")) {
		t.Error("file outside the job file list was watermarked")
	}
}
