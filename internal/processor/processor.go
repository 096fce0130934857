// Package processor implements the pipeline stages. Each stage consumes the
// full ordered job list and returns a new one; a failure for one item or one
// job never stops the stage.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wb-go/wbf/zlog"
	"go.uber.org/multierr"

	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/model"
)

var (
	// ErrImageCodec marks a failure to decode, resize or encode one image.
	ErrImageCodec = errors.New("image codec error")
	// ErrFilesystem marks a failed filesystem operation.
	ErrFilesystem = errors.New("filesystem error")
	// ErrNameCollision marks two inputs that would end up under one name.
	ErrNameCollision = errors.New("name collision")
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, jobs []model.Job) []model.Job
}

// fileStorage defines the filesystem primitives the stages rely on.
type fileStorage interface {
	Save(ctx context.Context, path string, src io.Reader) (int64, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(path string) (bool, error)
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	RemoveAll(path string) error
	Walk(root string, fn filepath.WalkFunc) error
}

// imageLocator finds images inside a job directory.
type imageLocator interface {
	Find(dir string, opts locator.Options) ([]string, error)
	Describe(path string) *locator.ImageFile
	LargerThan(megapixels float64) locator.Filter
}

// jobFunc processes a single job and fills in the counters of res.
// A returned error fails the whole job.
type jobFunc func(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error)

// run applies fn to every job in order. Jobs that failed in an earlier stage
// are passed through and recorded as skipped, as are all jobs left once ctx
// is canceled.
func run(ctx context.Context, stage string, jobs []model.Job, fn jobFunc) []model.Job {
	out := make([]model.Job, 0, len(jobs))

	for _, job := range jobs {
		res := model.StageResult{Stage: stage}

		switch {
		case job.Failed():
			res.Status = model.StatusSkipped
			zlog.Logger.Debug().Str("stage", stage).Str("dir", job.SourceDir).Msg("skipping failed job")
		case ctx.Err() != nil:
			res.Status = model.StatusSkipped
			res.Err = ctx.Err()
			job.Err = fmt.Errorf("%s: %w", stage, ctx.Err())
		default:
			zlog.Logger.Info().Str("stage", stage).Str("dir", job.Dir()).Msg("processing directory")

			next, err := fn(ctx, job, &res)
			if err != nil {
				res.Status = model.StatusFailed
				res.Err = multierr.Append(err, res.Err)
				job.Err = fmt.Errorf("%s: %w", stage, err)
				zlog.Logger.Error().Err(err).Str("stage", stage).Str("dir", job.Dir()).Msg("stage failed")
				break
			}

			job = next
			res.Status = model.StatusCompleted
		}

		job.Results = append(slices.Clip(job.Results), res)
		out = append(out, job)
	}

	return out
}

// Marker is the prefix and suffix identifying processed files.
type Marker struct {
	Prefix string
	Suffix string
}

// Empty reports whether the marker adds nothing to a name.
func (m Marker) Empty() bool {
	return m.Prefix == "" && m.Suffix == ""
}

// Apply returns name with the marker around its stem.
func (m Marker) Apply(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	return m.Prefix + stem + m.Suffix + ext
}

// Marked reports whether the stem of name already carries the marker.
func (m Marker) Marked(name string) bool {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	return (m.Prefix != "" && strings.HasPrefix(stem, m.Prefix)) ||
		(m.Suffix != "" && strings.HasSuffix(stem, m.Suffix))
}

// outputs records which job owns each output path during one stage run.
type outputs map[string]string

// claim assigns path to owner. It fails when a different job already
// claimed the same path.
func (o outputs) claim(path, owner string) error {
	key := absPath(path)
	if prev, ok := o[key]; ok && prev != owner {
		return fmt.Errorf("%w: %s and %s both write to %s", ErrNameCollision, prev, owner, key)
	}
	o[key] = owner

	return nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// absPath makes path absolute, falling back to the cleaned path.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return filepath.Clean(path)
}

func fsError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrFilesystem, op, path, err)
}

func codecError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrImageCodec, op, path, err)
}
