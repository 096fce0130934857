package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

// StageRename is the name of the rename stage.
const StageRename = "rename"

// Rename numbers the images of a directory after the directory name:
// "Trip__001.jpg", "Trip__002.jpg" and so on, in sorted order.
type Rename struct {
	storage  fileStorage
	locator  imageLocator
	observer Observer
}

// NewRename creates the rename stage.
func NewRename(fs fileStorage, loc imageLocator, obs Observer) *Rename {
	return &Rename{storage: fs, locator: loc, observer: observerOrNop(obs)}
}

// Name returns the stage name.
func (r *Rename) Name() string {
	return StageRename
}

// Process renames the images of every job.
func (r *Rename) Process(ctx context.Context, jobs []model.Job) []model.Job {
	return run(ctx, r.Name(), jobs, r.processJob)
}

// NumberedName returns the name of the i-th (zero-based) of total images.
func NumberedName(dirName, ext string, i, total int) string {
	width := max(3, len(strconv.Itoa(total)))
	return fmt.Sprintf("%s__%0*d%s", dirName, width, i+1, ext)
}

func (r *Rename) processJob(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
	dir := job.Dir()
	prefix := filepath.Base(absPath(dir))

	files, err := r.locator.Find(dir, locator.Options{Sort: true})
	if err != nil {
		return job, fsError("list", dir, err)
	}

	sources := make(map[string]bool, len(files))
	for _, f := range files {
		sources[f] = true
	}

	var moves []move
	targets := make([]string, 0, len(files))
	for i, f := range files {
		target := filepath.Join(dir, NumberedName(prefix, filepath.Ext(f), i, len(files)))
		targets = append(targets, target)
		if target == f {
			continue
		}

		if !sources[target] {
			exists, err := r.storage.Exists(target)
			if err != nil {
				return job, fsError("stat", target, err)
			}
			if exists {
				return job, fmt.Errorf("%w: %s already exists", ErrNameCollision, target)
			}
		}
		moves = append(moves, move{from: f, to: target})
	}

	r.observer.OnJobStart(r.Name(), job, len(moves))

	if err := ctx.Err(); err != nil {
		return job, err
	}

	// Two phases, so a target that is also a source is never overwritten.
	// A failed move restores every file that has not reached its target.
	staged := make([]move, 0, len(moves))
	for _, m := range moves {
		tmp := file.TempName(m.from)
		if err := r.storage.Rename(m.from, tmp); err != nil {
			r.restore(staged, moves)
			return job, fsError("move", m.from, err)
		}
		staged = append(staged, move{from: tmp, to: m.to})
	}
	for i, m := range staged {
		r.observer.OnItemStart(r.Name(), moves[i].from)
		if err := r.storage.Rename(m.from, m.to); err != nil {
			r.restore(staged[i:], moves[i:])
			return job, fsError("move", moves[i].from, err)
		}
		r.observer.OnItemDone(r.Name(), m.to, 0, 0)
		res.Processed++
	}
	res.Skipped = len(files) - len(moves)

	job.ProcessedDir = dir
	job.Files = targets

	return job, nil
}

// restore moves staged temporary files back to their original names.
// A file whose original name is taken keeps its temporary name, which
// still carries the original one.
func (r *Rename) restore(staged, moves []move) {
	for i, m := range staged {
		orig := moves[i].from
		if taken, err := r.storage.Exists(orig); err != nil || taken {
			zlog.Logger.Warn().Str("file", m.from).Str("original", orig).Msg("original name taken, leaving temporary file")
			continue
		}
		if err := r.storage.Rename(m.from, orig); err != nil {
			zlog.Logger.Warn().Err(err).Str("file", m.from).Str("original", orig).Msg("failed to restore file")
		}
	}
}
