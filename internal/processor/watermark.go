package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/wb-go/wbf/zlog"
	"go.uber.org/multierr"

	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/model"
)

// StageWatermark is the name of the watermark stage.
const StageWatermark = "watermark"

// DefaultWatermarkSuffix marks watermarked copies.
const DefaultWatermarkSuffix = "_wm"

// WatermarkOptions configures the watermark stage.
type WatermarkOptions struct {
	Text      string
	FontPath  string  // TrueType font; empty uses the built-in face
	FontScale float64 // font size as a fraction of the image width
	Quality   int
	Marker    Marker
	Force     bool
	Recursive bool
}

// Watermark writes a copy of each image with text drawn in the bottom-right
// corner.
type Watermark struct {
	storage  fileStorage
	locator  imageLocator
	observer Observer
	opts     WatermarkOptions
}

// NewWatermark validates opts and creates the watermark stage.
func NewWatermark(fs fileStorage, loc imageLocator, opts WatermarkOptions, obs Observer) (*Watermark, error) {
	if opts.Text == "" {
		return nil, errors.New("watermark text is required")
	}
	if opts.FontScale <= 0 {
		opts.FontScale = 0.05
	}
	if opts.Quality == 0 {
		opts.Quality = 90
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("invalid quality %d: must be between 1 and 100", opts.Quality)
	}
	if opts.Marker.Empty() {
		opts.Marker.Suffix = DefaultWatermarkSuffix
	}
	if opts.FontPath != "" {
		if _, err := gg.LoadFontFace(opts.FontPath, 12); err != nil {
			return nil, fmt.Errorf("failed to load font: %w", err)
		}
	}

	return &Watermark{storage: fs, locator: loc, observer: observerOrNop(obs), opts: opts}, nil
}

// Name returns the stage name.
func (w *Watermark) Name() string {
	return StageWatermark
}

// Process watermarks the images of every job.
func (w *Watermark) Process(ctx context.Context, jobs []model.Job) []model.Job {
	return run(ctx, w.Name(), jobs, w.processJob)
}

func (w *Watermark) processJob(ctx context.Context, job model.Job, res *model.StageResult) (model.Job, error) {
	inputs := make([]string, 0, len(job.Files))
	for _, f := range job.Files {
		if !w.opts.Marker.Marked(f) && w.isImage(f) {
			inputs = append(inputs, f)
		}
	}
	if len(job.Files) == 0 {
		files, err := w.locator.Find(job.Dir(), locator.Options{
			Filter:    func(path string) bool { return !w.opts.Marker.Marked(path) },
			Recursive: w.opts.Recursive,
			Sort:      true,
		})
		if err != nil {
			return job, fsError("list", job.Dir(), err)
		}
		inputs = files
	}

	w.observer.OnJobStart(w.Name(), job, len(inputs))

	outputs := make([]string, 0, len(inputs))
	for _, src := range inputs {
		if err := ctx.Err(); err != nil {
			return job, err
		}

		dst := filepath.Join(filepath.Dir(src), w.opts.Marker.Apply(filepath.Base(src)))

		exists, err := w.storage.Exists(dst)
		if err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, fsError("stat", dst, err))
			continue
		}
		if exists && !w.opts.Force {
			res.Skipped++
			outputs = append(outputs, dst)
			continue
		}

		w.observer.OnItemStart(w.Name(), src)
		before, after, err := w.watermark(ctx, src, dst)
		if err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, err)
			zlog.Logger.Error().Err(err).Str("file", src).Msg("failed to watermark image, skipping")
			continue
		}
		w.observer.OnItemDone(w.Name(), src, before, after)

		res.Processed++
		res.BytesBefore += before
		res.BytesAfter += after
		outputs = append(outputs, dst)
	}

	job.Files = outputs

	return job, nil
}

func (w *Watermark) isImage(path string) bool {
	_, err := imaging.FormatFromFilename(path)
	return err == nil
}

// watermark draws the text on src and saves the result to dst.
func (w *Watermark) watermark(ctx context.Context, src, dst string) (int64, int64, error) {
	before, err := w.locator.Describe(src).Size()
	if err != nil {
		return 0, 0, fsError("stat", src, err)
	}

	// Load the original image.
	srcReader, err := w.storage.Load(ctx, src)
	if err != nil {
		return 0, 0, fsError("open", src, err)
	}

	// Decode into an image object.
	image, err := imaging.Decode(srcReader)
	_ = srcReader.Close()
	if err != nil {
		return 0, 0, codecError("decode", src, err)
	}

	// Draw watermark text on top of the image.
	dc := gg.NewContextForImage(image)
	dc.SetColor(color.White)

	if w.opts.FontPath != "" {
		fontSize := float64(dc.Width()) * w.opts.FontScale
		if err := dc.LoadFontFace(w.opts.FontPath, fontSize); err != nil {
			return 0, 0, fmt.Errorf("failed to load font: %w", err)
		}
	}

	tw, th := dc.MeasureString(w.opts.Text)

	margin := 10.0
	x := float64(dc.Width()) - tw - margin
	y := float64(dc.Height()) - th - margin

	dc.DrawStringAnchored(w.opts.Text, x, y, 0, 1)
	dc.Fill()

	// Encode modified image.
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return 0, 0, codecError("detect format of", dst, err)
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, dc.Image(), format, imaging.JPEGQuality(w.opts.Quality)); err != nil {
		return 0, 0, codecError("encode", dst, err)
	}

	after, err := w.storage.Save(ctx, dst, buf)
	if err != nil {
		return 0, 0, fsError("save", dst, err)
	}

	return before, after, nil
}
