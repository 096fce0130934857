package processor

import (
	"context"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
)

// StageDelete is the name of the delete stage.
const StageDelete = "delete"

// Delete targets.
const (
	DeleteSource    = "source"
	DeleteProcessed = "processed"
)

// DeleteOptions configures the delete stage.
type DeleteOptions struct {
	Target string // DeleteSource or DeleteProcessed
}

// Delete removes job directories. Failures are logged and never fail a job.
type Delete struct {
	storage  fileStorage
	observer Observer
	target   string
}

// NewDelete creates the delete stage.
func NewDelete(fs fileStorage, opts DeleteOptions, obs Observer) (*Delete, error) {
	target := opts.Target
	if target == "" {
		target = DeleteSource
	}
	if target != DeleteSource && target != DeleteProcessed {
		return nil, fmt.Errorf("invalid delete target %q: must be %q or %q", target, DeleteSource, DeleteProcessed)
	}

	return &Delete{storage: fs, observer: observerOrNop(obs), target: target}, nil
}

// Name returns the stage name.
func (d *Delete) Name() string {
	return StageDelete
}

// Process deletes the target directory of every job that has not failed.
func (d *Delete) Process(ctx context.Context, jobs []model.Job) []model.Job {
	return run(ctx, d.Name(), jobs, d.processJob)
}

func (d *Delete) processJob(_ context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
	path := job.SourceDir
	if d.target == DeleteProcessed {
		if job.ProcessedDir == "" || absPath(job.ProcessedDir) == absPath(job.SourceDir) {
			zlog.Logger.Warn().Str("dir", job.SourceDir).Msg("no separate processed directory, nothing to delete")
			res.Skipped++
			return job, nil
		}
		path = job.ProcessedDir
	}

	if job.Archive != "" && within(absPath(path), absPath(job.Archive)) {
		zlog.Logger.Warn().Str("dir", path).Str("archive", job.Archive).Msg("directory contains the archive, not deleting")
		res.Skipped++
		return job, nil
	}

	d.observer.OnJobStart(d.Name(), job, 1)
	d.observer.OnItemStart(d.Name(), path)

	if err := d.storage.RemoveAll(path); err != nil {
		res.Failed++
		res.Err = err
		zlog.Logger.Warn().Err(err).Str("dir", path).Msg("failed to delete directory, continuing")
		return job, nil
	}

	d.observer.OnItemDone(d.Name(), path, 0, 0)
	res.Processed++
	zlog.Logger.Info().Str("dir", path).Msg("deleted")

	if d.target == DeleteProcessed {
		job.ProcessedDir = ""
		job.Files = nil
	}

	return job, nil
}
