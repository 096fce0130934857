package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

// StageFlatten is the name of the flatten stage.
const StageFlatten = "flatten"

// DefaultSeparator joins path components of flattened file names.
const DefaultSeparator = "~"

// FlattenOptions configures the flatten stage.
type FlattenOptions struct {
	Separator string // a single character, not a path separator
}

// Flatten moves every file of a directory tree to its root, encoding the
// relative path into the file name.
type Flatten struct {
	storage   fileStorage
	observer  Observer
	separator string
}

// NewFlatten validates the separator and creates the flatten stage.
func NewFlatten(fs fileStorage, opts FlattenOptions, obs Observer) (*Flatten, error) {
	sep := opts.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	if utf8.RuneCountInString(sep) != 1 || sep == "/" || sep == string(filepath.Separator) || sep == "." {
		return nil, fmt.Errorf("invalid separator %q: must be a single character other than a path separator or dot", sep)
	}

	return &Flatten{storage: fs, observer: observerOrNop(obs), separator: sep}, nil
}

// Name returns the stage name.
func (f *Flatten) Name() string {
	return StageFlatten
}

// Process flattens the directory of every job.
func (f *Flatten) Process(ctx context.Context, jobs []model.Job) []model.Job {
	return run(ctx, f.Name(), jobs, f.processJob)
}

// FlatName returns the flattened name for a path relative to the job root.
func (f *Flatten) FlatName(rel string) string {
	return strings.Join(strings.Split(filepath.ToSlash(rel), "/"), f.separator)
}

type move struct {
	from, to string
}

func (f *Flatten) processJob(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
	dir := job.Dir()

	moves, dirs, files, err := f.plan(dir)
	if err != nil {
		return job, err
	}

	f.observer.OnJobStart(f.Name(), job, len(moves))

	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return job, err
		}

		f.observer.OnItemStart(f.Name(), m.from)
		if err := f.storage.Rename(m.from, m.to); err != nil {
			return job, fsError("move", m.from, err)
		}
		f.observer.OnItemDone(f.Name(), m.to, 0, 0)
		res.Processed++
	}
	res.Skipped = len(files) - len(moves)

	// Deepest first: a parent only becomes empty once its children are gone.
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], string(filepath.Separator)), strings.Count(dirs[j], string(filepath.Separator))
		if di != dj {
			return di > dj
		}
		return dirs[i] > dirs[j]
	})
	for _, d := range dirs {
		if err := f.storage.Remove(d); err != nil {
			zlog.Logger.Warn().Err(err).Str("dir", d).Msg("failed to remove directory")
		}
	}

	sort.Strings(files)
	job.ProcessedDir = dir
	job.Files = files

	return job, nil
}

// plan lists the renames needed to flatten dir, the subdirectories to remove
// afterwards and the resulting file paths. Nothing is renamed when two files
// would end up with the same name.
func (f *Flatten) plan(dir string) ([]move, []string, []string, error) {
	var (
		moves []move
		dirs  []string
		files []string
	)
	owners := make(map[string]string)
	rootDirs := make(map[string]bool)

	err := f.storage.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			dirs = append(dirs, path)
			if !strings.Contains(rel, string(filepath.Separator)) {
				rootDirs[rel] = true
			}
			return nil
		}
		if file.IsTemp(path) {
			return nil
		}

		name := f.FlatName(rel)
		if owner, ok := owners[name]; ok {
			return fmt.Errorf("%w: %s and %s both flatten to %q", ErrNameCollision, owner, rel, name)
		}
		owners[name] = rel

		target := filepath.Join(dir, name)
		files = append(files, target)
		if name != rel {
			moves = append(moves, move{from: path, to: target})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNameCollision) {
			return nil, nil, nil, err
		}
		return nil, nil, nil, fsError("list", dir, err)
	}

	for name, rel := range owners {
		if rootDirs[name] {
			return nil, nil, nil, fmt.Errorf("%w: %s flattens to %q, which is a directory", ErrNameCollision, rel, name)
		}
	}

	return moves, dirs, files, nil
}
