// Package pipeline drives a batch run: it resolves the working set, asks for
// confirmation and runs the stages over it in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/pictools/internal/model"
	"github.com/aliskhannn/pictools/internal/processor"
	"github.com/aliskhannn/pictools/internal/resolver"
)

var (
	// ErrResolutionEmpty is returned when the selectors match no directory.
	ErrResolutionEmpty = errors.New("no directories matched")
	// ErrUserDeclined is returned when the user does not confirm the run.
	ErrUserDeclined = errors.New("aborted by user")
)

// State is the lifecycle state of a pipeline run.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateConfirming
	StateRunning
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConfirming:
		return "confirming"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// dirResolver turns selectors into the directories to process.
type dirResolver interface {
	Resolve(sel resolver.Selector) ([]string, error)
}

// Options configures a Pipeline.
type Options struct {
	AssumeYes bool // skip the confirmation prompt
}

// Pipeline runs an ordered list of stages over the resolved directories.
type Pipeline struct {
	resolver  dirResolver
	confirmer Confirmer
	stages    []processor.Stage
	opts      Options
	state     atomic.Int32
}

// New creates a Pipeline. The stages run in the given order.
func New(r dirResolver, c Confirmer, stages []processor.Stage, opts Options) *Pipeline {
	return &Pipeline{resolver: r, confirmer: c, stages: stages, opts: opts}
}

// State returns the current state. It is safe to call while Run is in
// progress.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	zlog.Logger.Debug().Str("state", s.String()).Msg("pipeline state changed")
}

// Run resolves sel, asks for confirmation unless AssumeYes is set and runs
// every stage over the full job list, one stage after another.
//
// The returned report covers every job even when ctx is canceled midway;
// in that case the context error is returned alongside it.
func (p *Pipeline) Run(ctx context.Context, sel resolver.Selector) (*Report, error) {
	// Resolve the working set.
	p.setState(StateResolving)
	dirs, err := p.resolver.Resolve(sel)
	if err != nil {
		p.setState(StateAborted)
		return nil, fmt.Errorf("failed to resolve directories: %w", err)
	}
	if len(dirs) == 0 {
		p.setState(StateAborted)
		return nil, ErrResolutionEmpty
	}

	zlog.Logger.Info().Int("dirs", len(dirs)).Msg("resolved directories")
	for _, d := range dirs {
		zlog.Logger.Info().Str("dir", d).Msg("selected")
	}

	// Ask before touching anything.
	if !p.opts.AssumeYes {
		p.setState(StateConfirming)
		ok, err := p.confirmer.Confirm(ctx, dirs, p.stageNames())
		if err != nil {
			p.setState(StateAborted)
			return nil, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			p.setState(StateAborted)
			return nil, ErrUserDeclined
		}
	}

	// Each stage drains the whole job list before the next one starts.
	p.setState(StateRunning)
	jobs := model.NewJobs(dirs)
	for _, stage := range p.stages {
		zlog.Logger.Info().Str("stage", stage.Name()).Int("jobs", len(jobs)).Msg("starting stage")
		jobs = stage.Process(ctx, jobs)
	}

	report := NewReport(p.stageNames(), jobs)
	report.Log()

	if err := ctx.Err(); err != nil {
		p.setState(StateAborted)
		return report, err
	}

	p.setState(StateDone)
	return report, nil
}

func (p *Pipeline) stageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}

	return names
}
