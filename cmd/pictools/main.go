package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/cli"
	"github.com/aliskhannn/pictools/internal/config"
	"github.com/aliskhannn/pictools/internal/locator"
	"github.com/aliskhannn/pictools/internal/pipeline"
	"github.com/aliskhannn/pictools/internal/processor"
	"github.com/aliskhannn/pictools/internal/resolver"
	"github.com/aliskhannn/pictools/internal/storage/file"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	os.Exit(run())
}

func run() int {
	// Context & signals: interrupts stop the stages between files.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger.
	zlog.Init()

	// Parse global flags, then load configuration bound to them.
	flags, global, rest, err := cli.ParseGlobal(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("invalid arguments")
		return 1
	}

	cfg := config.MustLoad(global.Config, flags)
	setLogLevel(cfg.Log.Level, global.Verbose)

	// Parse the stage chain with defaults from configuration.
	cmds, err := cli.ParseCommands(rest, cfg, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("invalid arguments")
		return 1
	}

	// Retry strategy for renames and removals on flaky filesystems.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Initialize storage, locator and the stages built on them.
	fs := afero.NewOsFs()
	storage := file.NewStorage(fs, strategy)
	deps := cli.Deps{
		Storage:  storage,
		Locator:  locator.New(fs, cfg.Locator.Extensions...),
		Observer: processor.LogObserver{},
	}
	stages, err := cli.BuildStages(cmds, deps)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("invalid stage options")
		return 1
	}

	dedupe := cfg.Pipeline.Dedupe && !global.NoDedupe
	p := pipeline.New(
		resolver.New(fs, cfg.Pipeline.Root, dedupe),
		pipeline.PromptConfirmer{In: os.Stdin, Out: os.Stderr},
		stages,
		pipeline.Options{AssumeYes: cfg.Pipeline.AssumeYes},
	)

	report, err := p.Run(ctx, global.Selector)
	switch {
	case errors.Is(err, context.Canceled):
		zlog.Logger.Warn().Msg("interrupted")
		return exitInterrupted
	case errors.Is(err, pipeline.ErrResolutionEmpty):
		zlog.Logger.Error().Msg("no matches")
		return 1
	case errors.Is(err, pipeline.ErrUserDeclined):
		zlog.Logger.Info().Msg("aborted")
		return 1
	case err != nil:
		zlog.Logger.Error().Err(err).Msg("pipeline failed")
		return 1
	}

	if n := report.FailedJobs(); n > 0 {
		zlog.Logger.Warn().Int("failed", n).Msg("some directories failed, see the log above")
	}

	return 0
}

func setLogLevel(name string, verbose bool) {
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
