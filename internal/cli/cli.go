// Package cli parses the command line: global flags followed by a chain of
// stage commands, each with its own flags.
package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/aliskhannn/pictools/internal/config"
	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/processor"
	"github.com/aliskhannn/pictools/internal/resolver"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

// ErrUsage marks a malformed command line.
var ErrUsage = errors.New("usage error")

// Global holds the flags given before the first stage.
type Global struct {
	AssumeYes bool
	Verbose   bool
	NoDedupe  bool
	Config    string
	Selector  resolver.Selector
}

// ParseGlobal parses the global flags. Parsing stops at the first stage
// name; the remaining arguments are returned as rest. The flag set is
// returned so that configuration can bind to it.
func ParseGlobal(args []string, out io.Writer) (*pflag.FlagSet, Global, []string, error) {
	var g Global

	fs := pflag.NewFlagSet("pictools", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: pictools [flags] <stage> [stage flags] [<stage> [stage flags]...]\n\nStages: %s\n\nFlags:\n", strings.Join(commandNames(), ", "))
		fs.PrintDefaults()
	}

	fs.BoolVarP(&g.AssumeYes, "yes", "y", false, "do not ask for confirmation")
	fs.StringArrayVarP(&g.Selector.Dirs, "dir", "d", nil, "directory to process (repeatable)")
	fs.StringArrayVarP(&g.Selector.Globs, "glob", "g", nil, "glob matched against subdirectory names (repeatable)")
	fs.StringArrayVarP(&g.Selector.Patterns, "regex", "r", nil, "case-insensitive regex searched in subdirectory names (repeatable)")
	fs.StringVarP(&g.Config, "config", "c", "", "configuration file")
	fs.BoolVarP(&g.Verbose, "verbose", "v", false, "log every file")
	fs.BoolVar(&g.NoDedupe, "no-dedupe", false, "keep directories selected more than once")

	if err := fs.Parse(args); err != nil {
		return fs, g, nil, err
	}

	return fs, g, fs.Args(), nil
}

// Deps are the shared services stages are built on.
type Deps struct {
	Storage  *file.Storage
	Locator  *locator.Locator
	Observer processor.Observer
}

// builder constructs a stage once the shared services exist.
type builder func(d Deps) (processor.Stage, error)

// commandParser registers the flags of a stage on fs. The returned function
// runs after parsing and checks the flag values.
type commandParser func(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error)

// Command is one parsed stage of the chain.
type Command struct {
	Name  string
	build builder
}

// Build constructs the stage.
func (c Command) Build(d Deps) (processor.Stage, error) {
	return c.build(d)
}

var commands = map[string]commandParser{
	processor.StageResize:    resizeCommand,
	processor.StageZip:       zipCommand,
	processor.StageFlatten:   flattenCommand,
	processor.StageDelete:    deleteCommand,
	processor.StageWatermark: watermarkCommand,
	processor.StageRename:    renameCommand,
	processor.StageSeparate:  separateCommand,
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ParseCommands splits args into stage commands. Flag defaults come from
// cfg. At least one stage is required.
func ParseCommands(args []string, cfg *config.Config, out io.Writer) ([]Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no stage given, expected one of %s", ErrUsage, strings.Join(commandNames(), ", "))
	}

	var cmds []Command
	for len(args) > 0 {
		name := args[0]
		parser, ok := commands[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown stage %q, expected one of %s", ErrUsage, name, strings.Join(commandNames(), ", "))
		}

		fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
		fs.SetInterspersed(false)
		fs.SetOutput(out)
		finish := parser(fs, cfg)

		if err := fs.Parse(args[1:]); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %w", ErrUsage, name, err)
		}

		build, err := finish()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUsage, name, err)
		}
		cmds = append(cmds, Command{Name: name, build: build})

		args = fs.Args()
	}

	return cmds, nil
}

// BuildStages constructs the stages of cmds in order.
func BuildStages(cmds []Command, d Deps) ([]processor.Stage, error) {
	stages := make([]processor.Stage, 0, len(cmds))
	for _, c := range cmds {
		s, err := c.Build(d)
		if err != nil {
			return nil, fmt.Errorf("failed to set up %s: %w", c.Name, err)
		}
		stages = append(stages, s)
	}

	return stages, nil
}

func resizeCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	c := cfg.Resize
	opts := processor.ResizeOptions{
		Constraints:   c.Constraints,
		Quality:       c.Quality,
		OutDir:        c.OutDir,
		Marker:        processor.Marker{Prefix: c.Prefix, Suffix: c.Suffix},
		Force:         c.Force,
		Recursive:     c.Recursive,
		MaxPixels:     c.MaxPixels,
		MinMegapixels: c.MinMegapixels,
		AutoOrient:    c.AutoOrient,
	}

	fs.IntVarP(&opts.Quality, "quality", "q", opts.Quality, "JPEG quality (1-100)")
	fs.IntVarP(&opts.Constraints.MaxLength, "max-length", "m", opts.Constraints.MaxLength, "maximum length of the longer side")
	fs.IntVarP(&opts.Constraints.MaxLength, "length", "l", opts.Constraints.MaxLength, "alias of --max-length")
	_ = fs.MarkHidden("length")
	fs.IntVar(&opts.Constraints.MaxWidth, "max-width", opts.Constraints.MaxWidth, "maximum width")
	fs.IntVar(&opts.Constraints.MaxHeight, "max-height", opts.Constraints.MaxHeight, "maximum height")
	fs.StringVarP(&opts.OutDir, "out", "o", opts.OutDir, "output directory; empty writes next to the originals")
	fs.BoolVarP(&opts.Force, "force", "f", opts.Force, "reprocess images whose output exists")
	fs.StringVar(&opts.Marker.Prefix, "prefix", opts.Marker.Prefix, "prefix of output names")
	fs.StringVar(&opts.Marker.Suffix, "suffix", opts.Marker.Suffix, "suffix of output names")
	fs.BoolVar(&opts.Recursive, "recursive", opts.Recursive, "include subdirectories")
	fs.Float64Var(&opts.MinMegapixels, "min-megapixels", opts.MinMegapixels, "only process images of at least this many megapixels")

	return func() (builder, error) {
		// Width or height alone replace the configured length limit.
		lengthSet := fs.Changed("max-length") || fs.Changed("length")
		if !lengthSet && (fs.Changed("max-width") || fs.Changed("max-height")) {
			opts.Constraints.MaxLength = 0
		}
		if err := opts.Constraints.Validate(); err != nil {
			return nil, err
		}

		return func(d Deps) (processor.Stage, error) {
			return processor.NewResize(d.Storage, d.Locator, opts, d.Observer)
		}, nil
	}
}

func zipCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	opts := processor.ZipOptions{OutDir: cfg.Zip.OutDir, Flat: cfg.Zip.Flat}
	tree := !opts.Flat

	fs.StringVarP(&opts.OutDir, "out", "o", opts.OutDir, "directory receiving the archives; empty writes next to each directory")
	fs.BoolVar(&tree, "tree", tree, "keep relative paths inside the archive")

	return func() (builder, error) {
		opts.Flat = !tree
		return func(d Deps) (processor.Stage, error) {
			return processor.NewZip(d.Storage, opts, d.Observer), nil
		}, nil
	}
}

func flattenCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	opts := processor.FlattenOptions{Separator: cfg.Flatten.Separator}
	fs.StringVarP(&opts.Separator, "separator", "s", opts.Separator, "joins path components in flattened names")

	return func() (builder, error) {
		return func(d Deps) (processor.Stage, error) {
			return processor.NewFlatten(d.Storage, opts, d.Observer)
		}, nil
	}
}

func deleteCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	opts := processor.DeleteOptions{Target: cfg.Delete.Target}
	processed := opts.Target == processor.DeleteProcessed
	fs.BoolVar(&processed, "processed", processed, "delete the processed output instead of the source")

	return func() (builder, error) {
		if fs.Changed("processed") {
			opts.Target = processor.DeleteSource
			if processed {
				opts.Target = processor.DeleteProcessed
			}
		}
		return func(d Deps) (processor.Stage, error) {
			return processor.NewDelete(d.Storage, opts, d.Observer)
		}, nil
	}
}

func watermarkCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	c := cfg.Watermark
	opts := processor.WatermarkOptions{
		Text:      c.Text,
		FontPath:  c.Font,
		FontScale: c.FontScale,
		Quality:   c.Quality,
		Marker:    processor.Marker{Suffix: c.Suffix},
		Force:     c.Force,
	}

	fs.StringVarP(&opts.Text, "text", "t", opts.Text, "watermark text")
	fs.StringVar(&opts.FontPath, "font", opts.FontPath, "TrueType font file")
	fs.BoolVarP(&opts.Force, "force", "f", opts.Force, "rewrite existing watermarked copies")

	return func() (builder, error) {
		if opts.Text == "" {
			return nil, errors.New("--text is required")
		}
		return func(d Deps) (processor.Stage, error) {
			return processor.NewWatermark(d.Storage, d.Locator, opts, d.Observer)
		}, nil
	}
}

func renameCommand(_ *pflag.FlagSet, _ *config.Config) func() (builder, error) {
	return func() (builder, error) {
		return func(d Deps) (processor.Stage, error) {
			return processor.NewRename(d.Storage, d.Locator, d.Observer), nil
		}, nil
	}
}

func separateCommand(fs *pflag.FlagSet, cfg *config.Config) func() (builder, error) {
	opts := processor.SeparateOptions{By: cfg.Separate.By, Out: cfg.Separate.Out, Separator: cfg.Separate.Separator}

	fs.StringVarP(&opts.By, "by", "b", opts.By, "criterion: orientation or segment")
	fs.StringVarP(&opts.Out, "out", "o", opts.Out, "parent of the group directories, relative to each directory")
	fs.StringVarP(&opts.Separator, "separator", "s", opts.Separator, "splits file names into segments")

	return func() (builder, error) {
		if opts.By != processor.SeparateByOrientation && opts.By != processor.SeparateBySegment {
			return nil, fmt.Errorf("invalid --by %q: must be %s or %s", opts.By, processor.SeparateByOrientation, processor.SeparateBySegment)
		}
		return func(d Deps) (processor.Stage, error) {
			return processor.NewSeparate(d.Storage, d.Locator, opts, d.Observer)
		}, nil
	}
}
