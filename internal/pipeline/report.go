package pipeline

import (
	"github.com/dustin/go-humanize"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/processor"
)

// StageTotals aggregates one stage over all jobs.
type StageTotals struct {
	Stage       string
	Jobs        int // jobs the stage completed
	FailedJobs  int
	SkippedJobs int
	Processed   int
	Skipped     int
	Failed      int
	BytesBefore int64
	BytesAfter  int64
}

// Saved returns the bytes saved by the stage. Negative means growth.
func (t StageTotals) Saved() int64 {
	return t.BytesBefore - t.BytesAfter
}

// Report is the outcome of a pipeline run.
type Report struct {
	Jobs   []model.Job
	Stages []StageTotals
}

// NewReport aggregates the results of jobs per stage, in stage order.
func NewReport(stages []string, jobs []model.Job) *Report {
	r := &Report{Jobs: jobs, Stages: make([]StageTotals, len(stages))}
	for i, name := range stages {
		r.Stages[i].Stage = name
	}

	for _, job := range jobs {
		// Results are recorded in stage order, one per stage.
		for i, res := range job.Results {
			if i >= len(r.Stages) {
				break
			}
			t := &r.Stages[i]
			switch res.Status {
			case model.StatusCompleted:
				t.Jobs++
			case model.StatusFailed:
				t.FailedJobs++
			case model.StatusSkipped:
				t.SkippedJobs++
			}
			t.Processed += res.Processed
			t.Skipped += res.Skipped
			t.Failed += res.Failed
			t.BytesBefore += res.BytesBefore
			t.BytesAfter += res.BytesAfter
		}
	}

	return r
}

// FailedJobs returns the number of jobs that failed in some stage.
func (r *Report) FailedJobs() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Failed() {
			n++
		}
	}

	return n
}

// Saved returns the bytes saved by resizing. Other stages consume earlier
// outputs or add files, so their byte counts are only reported per stage.
func (r *Report) Saved() int64 {
	var saved int64
	for _, t := range r.Stages {
		if t.Stage == processor.StageResize {
			saved += t.Saved()
		}
	}

	return saved
}

// Log writes the per-job outcomes and the stage totals.
func (r *Report) Log() {
	for _, job := range r.Jobs {
		ev := zlog.Logger.Info()
		if job.Failed() {
			ev = zlog.Logger.Error().Err(job.Err)
		}
		ev = ev.Str("job", job.ID.String()).Str("dir", job.SourceDir)
		if job.ProcessedDir != "" && job.ProcessedDir != job.SourceDir {
			ev = ev.Str("output", job.ProcessedDir)
		}
		if job.Archive != "" {
			ev = ev.Str("archive", job.Archive)
		}
		for _, res := range job.Results {
			ev = ev.Str(res.Stage, string(res.Status))
		}
		ev.Msg("directory finished")
	}

	for _, t := range r.Stages {
		ev := zlog.Logger.Info().
			Str("stage", t.Stage).
			Int("jobs", t.Jobs).
			Int("failed_jobs", t.FailedJobs).
			Int("processed", t.Processed).
			Int("skipped", t.Skipped).
			Int("failed", t.Failed)
		if t.BytesBefore > 0 {
			ev = ev.
				Str("before", humanize.Bytes(uint64(t.BytesBefore))).
				Str("after", humanize.Bytes(uint64(t.BytesAfter))).
				Str("saved", signedBytes(t.Saved()))
		}
		ev.Msg("stage summary")
	}

	zlog.Logger.Info().
		Int("dirs", len(r.Jobs)).
		Int("failed", r.FailedJobs()).
		Str("saved", signedBytes(r.Saved())).
		Msg("run finished")
}

func signedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}

	return humanize.Bytes(uint64(n))
}
