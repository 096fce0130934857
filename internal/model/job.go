package model

import (
	"path/filepath"

	"github.com/google/uuid"
)

// Job represents one directory flowing through the pipeline.
type Job struct {
	ID           uuid.UUID     `json:"id"`
	SourceDir    string        `json:"source_dir"`              // original directory, never changes
	ProcessedDir string        `json:"processed_dir,omitempty"` // latest output location, empty until a stage sets it
	Files        []string      `json:"files,omitempty"`         // files produced or kept by the latest producing stage
	Archive      string        `json:"archive,omitempty"`       // archive written by the zip stage
	Results      []StageResult `json:"results,omitempty"`
	Err          error         `json:"-"` // set when a stage failed for the whole job
}

// NewJobs creates one job per resolved directory, preserving order.
func NewJobs(dirs []string) []Job {
	jobs := make([]Job, 0, len(dirs))
	for _, d := range dirs {
		jobs = append(jobs, Job{ID: uuid.New(), SourceDir: d})
	}

	return jobs
}

// Dir returns the directory later stages operate on: the processed
// directory when one has been produced, the source directory otherwise.
func (j Job) Dir() string {
	if j.ProcessedDir != "" {
		return j.ProcessedDir
	}

	return j.SourceDir
}

// Name returns the base name of the source directory.
func (j Job) Name() string {
	return dirName(j.SourceDir)
}

// Failed reports whether a previous stage failed for this job.
func (j Job) Failed() bool {
	return j.Err != nil
}

// Result returns the result recorded for the named stage, if any.
// When a stage ran more than once, the last result wins.
func (j Job) Result(stage string) (StageResult, bool) {
	for i := len(j.Results) - 1; i >= 0; i-- {
		if j.Results[i].Stage == stage {
			return j.Results[i], true
		}
	}

	return StageResult{}, false
}

func dirName(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	return filepath.Base(filepath.Clean(path))
}
