package model

// Status is the outcome of one stage for one job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped" // job already failed upstream or was interrupted
)

// StageResult records what a stage did with a job.
type StageResult struct {
	Stage       string `json:"stage"`
	Status      Status `json:"status"`
	Processed   int    `json:"processed"` // items written in this run
	Skipped     int    `json:"skipped"`   // items whose output already existed
	Failed      int    `json:"failed"`    // items that failed and were left out
	BytesBefore int64  `json:"bytes_before"`
	BytesAfter  int64  `json:"bytes_after"`
	Err         error  `json:"-"` // combined item errors, or the job-level failure
}

// Saved returns the byte difference between inputs and outputs of the
// items processed in this run. Positive means outputs are smaller.
func (r StageResult) Saved() int64 {
	return r.BytesBefore - r.BytesAfter
}
