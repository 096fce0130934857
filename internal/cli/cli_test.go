package cli

import (
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/retry"

	"github.com/aliskhannn/pictools/internal/config"
	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/processor"
	"github.com/aliskhannn/pictools/internal/resize"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

func testConfig() *config.Config {
	return &config.Config{
		Resize: config.Resize{
			Constraints: resize.Constraints{MaxLength: 5000},
			Quality:     75,
			OutDir:      "_pictools",
		},
		Zip:       config.Zip{OutDir: "_pictools", Flat: true},
		Flatten:   config.Flatten{Separator: "~"},
		Delete:    config.Delete{Target: processor.DeleteSource},
		Watermark: config.Watermark{FontScale: 0.05, Quality: 90, Suffix: "_wm"},
		Separate:  config.Separate{By: processor.SeparateByOrientation, Separator: " - "},
	}
}

func testDeps() Deps {
	fs := afero.NewMemMapFs()
	return Deps{
		Storage: file.NewStorage(fs, retry.Strategy{Attempts: 1}),
		Locator: locator.New(fs),
	}
}

func names(cmds []Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Name)
	}
	return out
}

func TestParseGlobal(t *testing.T) {
	_, g, rest, err := ParseGlobal([]string{
		"-y", "-d", "a", "--dir", "b", "-g", "20*", "-r", "trip", "--no-dedupe", "-c", "my.yml",
		"resize", "-q", "60", "zip",
	}, io.Discard)
	if err != nil {
		t.Fatalf("ParseGlobal: %v", err)
	}

	if !g.AssumeYes || !g.NoDedupe || g.Config != "my.yml" {
		t.Errorf("global = %+v", g)
	}
	if !slices.Equal(g.Selector.Dirs, []string{"a", "b"}) ||
		!slices.Equal(g.Selector.Globs, []string{"20*"}) ||
		!slices.Equal(g.Selector.Patterns, []string{"trip"}) {
		t.Errorf("selector = %+v", g.Selector)
	}
	if !slices.Equal(rest, []string{"resize", "-q", "60", "zip"}) {
		t.Errorf("rest = %v", rest)
	}
}

func TestParseGlobal_Help(t *testing.T) {
	_, _, _, err := ParseGlobal([]string{"--help"}, io.Discard)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("err = %v, want pflag.ErrHelp", err)
	}
}

func TestParseCommands_Chain(t *testing.T) {
	cmds, err := ParseCommands([]string{
		"resize", "-q", "60", "-m", "1200", "-f",
		"watermark", "-t", "(c)",
		"zip", "--tree",
		"flatten", "-s", "_",
		"rename",
		"separate", "--by", "segment", "-o", "sorted",
		"delete", "--processed",
	}, testConfig(), io.Discard)
	if err != nil {
		t.Fatalf("ParseCommands: %v", err)
	}

	want := []string{"resize", "watermark", "zip", "flatten", "rename", "separate", "delete"}
	if got := names(cmds); !slices.Equal(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}

	stages, err := BuildStages(cmds, testDeps())
	if err != nil {
		t.Fatalf("BuildStages: %v", err)
	}
	for i, s := range stages {
		if s.Name() != want[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Name(), want[i])
		}
	}

	r, ok := stages[0].(*processor.Resize)
	if !ok {
		t.Fatalf("stage 0 is %T", stages[0])
	}
	opts := r.Options()
	if opts.Quality != 60 || opts.Constraints.MaxLength != 1200 || !opts.Force || opts.OutDir != "_pictools" {
		t.Errorf("resize options = %+v", opts)
	}
}

func TestParseCommands_ResizeDefaultsAndAliases(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want resize.Constraints
	}{
		{"defaults", []string{"resize"}, resize.Constraints{MaxLength: 5000}},
		{"length alias", []string{"resize", "-l", "800"}, resize.Constraints{MaxLength: 800}},
		{"width only", []string{"resize", "--max-width", "640"}, resize.Constraints{MaxWidth: 640}},
		{"length and width", []string{"resize", "-m", "900", "--max-width", "640"}, resize.Constraints{MaxLength: 900, MaxWidth: 640}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := ParseCommands(tt.args, testConfig(), io.Discard)
			if err != nil {
				t.Fatalf("ParseCommands: %v", err)
			}
			stages, err := BuildStages(cmds, testDeps())
			if err != nil {
				t.Fatalf("BuildStages: %v", err)
			}
			if got := stages[0].(*processor.Resize).Options().Constraints; got != tt.want {
				t.Errorf("constraints = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommands_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no stage", nil},
		{"unknown stage", []string{"shrink"}},
		{"unknown flag", []string{"zip", "--level", "9"}},
		{"zero constraints", []string{"resize", "-m", "0"}},
		{"watermark without text", []string{"watermark"}},
		{"unknown separation", []string{"separate", "--by", "color"}},
		{"stray argument", []string{"resize", "photos"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCommands(tt.args, testConfig(), io.Discard)
			if !errors.Is(err, ErrUsage) {
				t.Errorf("err = %v, want ErrUsage", err)
			}
		})
	}

	_, err := ParseCommands([]string{"resize", "-m", "0"}, testConfig(), io.Discard)
	if !errors.Is(err, resize.ErrInvalidConstraint) {
		t.Errorf("err = %v, want ErrInvalidConstraint", err)
	}
}

func TestBuildStages_InvalidSeparator(t *testing.T) {
	cmds, err := ParseCommands([]string{"flatten", "-s", "/"}, testConfig(), io.Discard)
	if err != nil {
		t.Fatalf("ParseCommands: %v", err)
	}
	if _, err := BuildStages(cmds, testDeps()); err == nil {
		t.Error("expected error for separator /")
	}
}
