package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Confirmer decides whether a resolved run may proceed.
type Confirmer interface {
	Confirm(ctx context.Context, dirs, stages []string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, dirs, stages []string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, dirs, stages []string) (bool, error) {
	return f(ctx, dirs, stages)
}

// PromptConfirmer lists the working set on Out and reads the answer from In.
// Only "y" and "yes" (any case) confirm; end of input declines. A canceled
// context stops waiting for the answer.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm prints the directories and stages and waits for an answer.
func (c PromptConfirmer) Confirm(ctx context.Context, dirs, stages []string) (bool, error) {
	fmt.Fprintf(c.Out, "%d directories will be processed by: %s\n", len(dirs), strings.Join(stages, " -> "))
	for _, d := range dirs {
		fmt.Fprintf(c.Out, "  %s\n", d)
	}
	fmt.Fprint(c.Out, "Continue? [y/N] ")

	type reply struct {
		line string
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		line, err := bufio.NewReader(c.In).ReadString('\n')
		replies <- reply{line: line, err: err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		fmt.Fprintln(c.Out)
		return false, ctx.Err()
	case r = <-replies:
	}
	if r.err != nil && !errors.Is(r.err, io.EOF) {
		return false, r.err
	}

	switch strings.ToLower(strings.TrimSpace(r.line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
