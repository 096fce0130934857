package processor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/wb-go/wbf/zlog"
	"go.uber.org/multierr"

	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/resize"
)

// StageResize is the name of the resize stage.
const StageResize = "resize"

// ResizeOptions configures the resize stage.
type ResizeOptions struct {
	Constraints resize.Constraints
	Quality     int // JPEG quality, 1-100

	// OutDir, when set, receives a mirror of each source directory.
	// Otherwise outputs are written next to the originals and Marker must
	// tell them apart; an empty marker then defaults to the size/quality tag.
	OutDir string
	Marker Marker

	Force         bool    // reprocess images whose output already exists
	Recursive     bool    // descend into subdirectories of a job
	MaxPixels     int64   // refuse to decode larger images, 0 disables the limit
	MinMegapixels float64 // only process images at least this large, 0 disables
	AutoOrient    bool    // apply EXIF orientation before resizing
}

// Resize recompresses images and shrinks them to fit the constraints.
type Resize struct {
	storage  fileStorage
	locator  imageLocator
	observer Observer
	opts     ResizeOptions
	outRoot  string
}

// NewResize validates opts and creates the resize stage. It fails before
// any file is touched when no constraint is set.
func NewResize(fs fileStorage, loc imageLocator, opts ResizeOptions, obs Observer) (*Resize, error) {
	if err := opts.Constraints.Validate(); err != nil {
		return nil, err
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("invalid quality %d: must be between 1 and 100", opts.Quality)
	}
	if opts.OutDir == "" && opts.Marker.Empty() {
		opts.Marker.Suffix = resize.SizeQualityTag(opts.Constraints, opts.Quality)
	}

	r := &Resize{
		storage:  fs,
		locator:  loc,
		observer: observerOrNop(obs),
		opts:     opts,
	}
	if opts.OutDir != "" {
		r.outRoot = absPath(opts.OutDir)
	}

	return r, nil
}

// Name returns the stage name.
func (r *Resize) Name() string {
	return StageResize
}

// Options returns the effective options, including the derived marker.
func (r *Resize) Options() ResizeOptions {
	return r.opts
}

// Process resizes the images of every job. Jobs whose output directory was
// already taken by an earlier job of the same run fail with
// ErrNameCollision.
func (r *Resize) Process(ctx context.Context, jobs []model.Job) []model.Job {
	claimed := make(outputs, len(jobs))

	return run(ctx, r.Name(), jobs, func(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
		return r.processJob(ctx, job, res, claimed)
	})
}

// processJob resizes the images of one directory. Per-image failures are
// logged and counted; only failures affecting the whole directory are
// returned.
func (r *Resize) processJob(ctx context.Context, job model.Job, res *model.StageResult, claimed outputs) (model.Job, error) {
	dir := job.Dir()

	saveDir := dir
	if r.outRoot != "" {
		saveDir = filepath.Join(r.outRoot, job.Name())
	}
	if err := claimed.claim(saveDir, job.SourceDir); err != nil {
		return job, err
	}

	files, err := r.locator.Find(dir, locator.Options{
		Filter:    r.filter(),
		Recursive: r.opts.Recursive,
		Sort:      true,
	})
	if err != nil {
		return job, fsError("list", dir, err)
	}

	if r.outRoot != "" {
		if err := r.storage.MkdirAll(saveDir); err != nil {
			return job, fsError("create", saveDir, err)
		}
	}

	r.observer.OnJobStart(r.Name(), job, len(files))
	if len(files) == 0 {
		zlog.Logger.Warn().Str("dir", dir).Msg("no images found")
	}

	outputs := make([]string, 0, len(files))
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return job, err
		}

		item, err := r.processImage(ctx, dir, saveDir, src)
		if err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, err)
			zlog.Logger.Error().Err(err).Str("file", src).Msg("failed to resize image, skipping")
			continue
		}

		if item.produced {
			res.Processed++
			res.BytesBefore += item.before
			res.BytesAfter += item.after
		} else {
			res.Skipped++
		}
		outputs = append(outputs, item.path)
	}

	job.ProcessedDir = saveDir
	job.Files = outputs

	return job, nil
}

// filter excludes outputs of earlier runs and, optionally, small images.
func (r *Resize) filter() locator.Filter {
	var large locator.Filter
	if r.opts.MinMegapixels > 0 {
		large = r.locator.LargerThan(r.opts.MinMegapixels)
	}

	return func(path string) bool {
		if r.opts.Marker.Marked(path) {
			return false
		}
		if r.outRoot != "" && within(r.outRoot, absPath(path)) {
			return false
		}
		return large == nil || large(path)
	}
}

type resizedImage struct {
	path     string
	produced bool
	before   int64
	after    int64
}

// SavePath returns where the output for src is written when processing dir.
func (r *Resize) SavePath(dir, saveDir, src string) string {
	rel, err := filepath.Rel(dir, filepath.Dir(src))
	if err != nil {
		rel = "."
	}

	return filepath.Join(saveDir, rel, r.opts.Marker.Apply(filepath.Base(src)))
}

// processImage resizes a single image unless its output already exists.
func (r *Resize) processImage(ctx context.Context, dir, saveDir, src string) (resizedImage, error) {
	dst := r.SavePath(dir, saveDir, src)

	exists, err := r.storage.Exists(dst)
	if err != nil {
		return resizedImage{}, fsError("stat", dst, err)
	}
	if exists && !r.opts.Force {
		zlog.Logger.Debug().Str("file", filepath.Base(src)).Msg("skipping, output exists")
		return resizedImage{path: dst}, nil
	}

	r.observer.OnItemStart(r.Name(), src)

	file := r.locator.Describe(src)
	before, err := file.Size()
	if err != nil {
		return resizedImage{}, fsError("stat", src, err)
	}
	if r.opts.MaxPixels > 0 {
		pixels, err := file.Pixels()
		if err != nil {
			return resizedImage{}, codecError("read header of", src, err)
		}
		if pixels > r.opts.MaxPixels {
			return resizedImage{}, fmt.Errorf("%w: %s has %d pixels, limit is %d", ErrImageCodec, src, pixels, r.opts.MaxPixels)
		}
	}

	// Load the original image from storage.
	srcReader, err := r.storage.Load(ctx, src)
	if err != nil {
		return resizedImage{}, fsError("open", src, err)
	}

	// Decode into an image object.
	img, err := imaging.Decode(srcReader, imaging.AutoOrientation(r.opts.AutoOrient))
	_ = srcReader.Close()
	if err != nil {
		return resizedImage{}, codecError("decode", src, err)
	}

	// Resize only when the constraints require it.
	bounds := img.Bounds()
	w, h, err := resize.Calculate(bounds.Dx(), bounds.Dy(), r.opts.Constraints)
	if err != nil {
		return resizedImage{}, err
	}
	if w != bounds.Dx() || h != bounds.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	// Encode into buffer for storage.
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return resizedImage{}, codecError("detect format of", dst, err)
	}
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, img, format,
		imaging.JPEGQuality(r.opts.Quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	); err != nil {
		return resizedImage{}, codecError("encode", dst, err)
	}

	after, err := r.storage.Save(ctx, dst, buf)
	if err != nil {
		return resizedImage{}, fsError("save", dst, err)
	}

	r.observer.OnItemDone(r.Name(), src, before, after)
	logSizeChange(filepath.Base(src), before, after)

	return resizedImage{path: dst, produced: true, before: before, after: after}, nil
}

func logSizeChange(name string, before, after int64) {
	var percent float64
	if before > 0 {
		percent = float64(after-before) / float64(before) * 100
	}

	zlog.Logger.Info().
		Str("file", name).
		Str("before", humanize.Bytes(uint64(before))).
		Str("after", humanize.Bytes(uint64(after))).
		Str("change", fmt.Sprintf("%.1f%%", percent)).
		Msg("image resized")
}
