// Package locator finds image files inside a directory.
package locator

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/aliskhannn/pictools/internal/storage/file"
)

// DefaultExtensions lists the image extensions matched when none are given.
var DefaultExtensions = []string{"jpg", "jpeg", "png"}

// Filter decides whether a located file is included.
type Filter func(path string) bool

// Options controls a single Find call.
type Options struct {
	Filter    Filter
	Recursive bool
	Sort      bool
}

// DefaultOptions returns recursive, sorted options without a filter.
func DefaultOptions() Options {
	return Options{Recursive: true, Sort: true}
}

// Locator finds files whose extension is in a configured set.
type Locator struct {
	fs         afero.Fs
	extensions map[string]bool
}

// New creates a Locator matching the given extensions case-insensitively.
// With no extensions, DefaultExtensions are used.
func New(fs afero.Fs, extensions ...string) *Locator {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts["."+e] = true
		}
	}

	return &Locator{fs: fs, extensions: exts}
}

// Match reports whether path has one of the configured extensions.
func (l *Locator) Match(path string) bool {
	return l.extensions[strings.ToLower(filepath.Ext(path))]
}

// Find returns the image files under dir. Hidden entries and temporary
// files are ignored.
func (l *Locator) Find(dir string, opts Options) ([]string, error) {
	var files []string

	err := afero.Walk(l.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == dir {
				return nil
			}
			if !opts.Recursive || strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || strings.HasPrefix(info.Name(), ".") || file.IsTemp(path) {
			return nil
		}
		if !l.Match(path) {
			return nil
		}
		if opts.Filter != nil && !opts.Filter(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find images in %s: %w", dir, err)
	}

	if opts.Sort {
		sort.Strings(files)
	}

	return files, nil
}

// LargerThan returns a filter keeping images of at least megapixels.
// Files whose dimensions cannot be read are excluded.
func (l *Locator) LargerThan(megapixels float64) Filter {
	return func(path string) bool {
		w, h, err := l.Describe(path).Dimensions()
		if err != nil {
			return false
		}
		return float64(w)*float64(h)/1e6 >= megapixels
	}
}

// Describe returns an ImageFile for path. Size and dimensions are read
// on first use.
func (l *Locator) Describe(path string) *ImageFile {
	return &ImageFile{Path: path, fs: l.fs}
}

// ImageFile is an image on disk with lazily read size and dimensions.
type ImageFile struct {
	Path string

	fs            afero.Fs
	size          int64
	width, height int
	statDone      bool
	configDone    bool
	err           error
}

// Size returns the file size in bytes.
func (f *ImageFile) Size() (int64, error) {
	if !f.statDone {
		info, err := f.fs.Stat(f.Path)
		if err != nil {
			return 0, err
		}
		f.size, f.statDone = info.Size(), true
	}

	return f.size, nil
}

// Dimensions returns the pixel width and height without decoding the
// whole image.
func (f *ImageFile) Dimensions() (int, int, error) {
	if !f.configDone {
		f.width, f.height, f.err = readConfig(f.fs, f.Path)
		f.configDone = true
	}

	return f.width, f.height, f.err
}

// Pixels returns width * height.
func (f *ImageFile) Pixels() (int64, error) {
	w, h, err := f.Dimensions()
	if err != nil {
		return 0, err
	}

	return int64(w) * int64(h), nil
}

func readConfig(fs afero.Fs, path string) (int, int, error) {
	r, err := fs.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header of %s: %w", path, err)
	}

	return cfg.Width, cfg.Height, nil
}
