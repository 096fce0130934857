package model

import (
	"errors"
	"testing"
)

func TestNewJobs(t *testing.T) {
	jobs := NewJobs([]string{"/photos/b", "/photos/a"})
	if len(jobs) != 2 || jobs[0].SourceDir != "/photos/b" || jobs[1].SourceDir != "/photos/a" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].ID == jobs[1].ID {
		t.Error("job IDs must be unique")
	}
}

func TestJob_DirAndName(t *testing.T) {
	j := Job{SourceDir: "/photos/Trip/"}
	if j.Dir() != "/photos/Trip/" {
		t.Errorf("Dir = %s, want the source dir", j.Dir())
	}
	if j.Name() != "Trip" {
		t.Errorf("Name = %s, want Trip", j.Name())
	}

	j.ProcessedDir = "/out/Trip"
	if j.Dir() != "/out/Trip" {
		t.Errorf("Dir = %s, want the processed dir", j.Dir())
	}
	if j.Name() != "Trip" {
		t.Errorf("Name = %s, must follow the source dir", j.Name())
	}
}

func TestJob_Result(t *testing.T) {
	j := Job{Results: []StageResult{
		{Stage: "resize", Processed: 1},
		{Stage: "zip"},
		{Stage: "resize", Processed: 2},
	}}

	res, ok := j.Result("resize")
	if !ok || res.Processed != 2 {
		t.Errorf("Result(resize) = %+v, %v; want the last run", res, ok)
	}
	if _, ok := j.Result("delete"); ok {
		t.Error("Result(delete) found a result that was never recorded")
	}
}

func TestJob_Failed(t *testing.T) {
	if (Job{}).Failed() {
		t.Error("new job must not be failed")
	}
	if !(Job{Err: errors.New("x")}).Failed() {
		t.Error("job with error must be failed")
	}
}

func TestStageResult_Saved(t *testing.T) {
	if got := (StageResult{BytesBefore: 1000, BytesAfter: 250}).Saved(); got != 750 {
		t.Errorf("Saved = %d, want 750", got)
	}
}
