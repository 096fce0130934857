package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wb-go/wbf/zlog"
	"go.uber.org/multierr"

	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/model"
)

// StageSeparate is the name of the separate stage.
const StageSeparate = "separate"

// Separation criteria.
const (
	SeparateByOrientation = "orientation"
	SeparateBySegment     = "segment"
)

// Orientation groups.
const (
	GroupPortrait = "portrait"
	GroupWide     = "wide"
)

// DefaultSegmentSeparator splits file names into segments.
const DefaultSegmentSeparator = " - "

// SeparateOptions configures the separate stage.
type SeparateOptions struct {
	By        string // SeparateByOrientation or SeparateBySegment
	Out       string // parent of the group directories, relative to the job directory unless absolute
	Separator string // segment separator, SeparateBySegment only
}

// Separate moves the images of a directory into group subdirectories,
// either by orientation or by the first segment of the file name.
type Separate struct {
	storage  fileStorage
	locator  imageLocator
	observer Observer
	opts     SeparateOptions
}

// NewSeparate validates opts and creates the separate stage.
func NewSeparate(fs fileStorage, loc imageLocator, opts SeparateOptions, obs Observer) (*Separate, error) {
	if opts.By == "" {
		opts.By = SeparateByOrientation
	}
	if opts.By != SeparateByOrientation && opts.By != SeparateBySegment {
		return nil, fmt.Errorf("invalid criterion %q: must be %q or %q", opts.By, SeparateByOrientation, SeparateBySegment)
	}
	if opts.Separator == "" {
		opts.Separator = DefaultSegmentSeparator
	}

	return &Separate{storage: fs, locator: loc, observer: observerOrNop(obs), opts: opts}, nil
}

// Name returns the stage name.
func (s *Separate) Name() string {
	return StageSeparate
}

// Process separates the images of every job.
func (s *Separate) Process(ctx context.Context, jobs []model.Job) []model.Job {
	return run(ctx, s.Name(), jobs, s.processJob)
}

// Group returns the group directory name for the image at path. An empty
// name means the image stays where it is. Images at least as tall as they
// are wide are portrait.
func (s *Separate) Group(path string) (string, error) {
	if s.opts.By == SeparateBySegment {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		segments := strings.Split(stem, s.opts.Separator)
		if len(segments) < 2 || strings.TrimSpace(segments[0]) == "" {
			return "", nil
		}
		return segments[0], nil
	}

	w, h, err := s.locator.Describe(path).Dimensions()
	if err != nil {
		return "", codecError("read header of", path, err)
	}
	if w > h {
		return GroupWide, nil
	}

	return GroupPortrait, nil
}

func (s *Separate) processJob(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
	dir := job.Dir()

	out := dir
	if s.opts.Out != "" {
		out = s.opts.Out
		if !filepath.IsAbs(out) {
			out = filepath.Join(dir, out)
		}
	}

	images, err := s.locator.Find(dir, locator.Options{Sort: true})
	if err != nil {
		return job, fsError("list", dir, err)
	}

	moves, files, err := s.plan(images, out, res)
	if err != nil {
		return job, err
	}

	s.observer.OnJobStart(s.Name(), job, len(moves))

	for _, m := range moves {
		if err := ctx.Err(); err != nil {
			return job, err
		}

		s.observer.OnItemStart(s.Name(), m.from)
		if err := s.storage.MkdirAll(filepath.Dir(m.to)); err != nil {
			return job, fsError("create", filepath.Dir(m.to), err)
		}
		if err := s.storage.Rename(m.from, m.to); err != nil {
			return job, fsError("move", m.from, err)
		}
		s.observer.OnItemDone(s.Name(), m.to, 0, 0)
		zlog.Logger.Debug().Str("file", filepath.Base(m.from)).Str("target", filepath.Dir(m.to)).Msg("separated")
		res.Processed++
	}

	sort.Strings(files)
	job.ProcessedDir = dir
	job.Files = files

	return job, nil
}

// plan assigns every image to its group. Images without a group or whose
// group cannot be determined stay in place; nothing is moved when a target
// name is taken.
func (s *Separate) plan(images []string, out string, res *model.StageResult) ([]move, []string, error) {
	moves := make([]move, 0, len(images))
	files := make([]string, 0, len(images))
	owners := make(map[string]string, len(images))

	for _, img := range images {
		group, err := s.Group(img)
		if err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, err)
			zlog.Logger.Error().Err(err).Str("file", img).Msg("failed to group image, leaving in place")
			files = append(files, img)
			continue
		}

		target := filepath.Join(out, group, filepath.Base(img))
		if group == "" || target == img {
			res.Skipped++
			files = append(files, img)
			continue
		}

		if owner, ok := owners[target]; ok {
			return nil, nil, fmt.Errorf("%w: %s and %s both move to %s", ErrNameCollision, owner, img, target)
		}
		exists, err := s.storage.Exists(target)
		if err != nil {
			return nil, nil, fsError("stat", target, err)
		}
		if exists {
			return nil, nil, fmt.Errorf("%w: %s already exists", ErrNameCollision, target)
		}
		owners[target] = img

		moves = append(moves, move{from: img, to: target})
		files = append(files, target)
	}

	return moves, files, nil
}
