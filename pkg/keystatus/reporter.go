package keystatus

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"io"
	"strings"
)

type modifierEntry struct {
	mask    Modifier
	latched string
	locked  string
}

// modifiers is ordered: output words appear in this order.
var modifiers = []modifierEntry{
	{ModShift, "shift", "SHIFT"},
	{ModControl, "ctrl", "CTRL"},
	{ModAlt, "alt", "ALT"},
	{ModSuper, "super", "SUPER"},
}

// StatusLine renders one status line (without the trailing newline) from a
// modifier snapshot and the current accessibility controls. A modifier that
// is both latched and locked reports as latched.
func StatusLine(state ModifierState, controls Controls) string {
	var words []string
	for _, mod := range modifiers {
		switch {
		case state.Latched&mod.mask != 0:
			words = append(words, mod.latched)
		case state.Locked&mod.mask != 0:
			words = append(words, mod.locked)
		}
	}
	if controls.StickyKeys {
		words = append(words, "sticky")
	}
	if controls.AccessXKeys {
		words = append(words, "accessx")
	}
	return strings.Join(words, " ")
}

type Reporter struct {
	monitor KeyboardMonitor
	out     io.Writer
	log     *zap.SugaredLogger
}

func NewReporter(monitor KeyboardMonitor, out io.Writer, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		monitor: monitor,
		out:     out,
		log:     log,
	}
}

// Run prints a status line for the current state and then one more line per
// state change until ctx is cancelled or the monitor fails. out must be
// unbuffered for consumers to see lines as they happen.
func (r *Reporter) Run(ctx context.Context) error {
	state, err := r.monitor.State()
	if err != nil {
		return fmt.Errorf("fetch modifier state: %w", err)
	}

	for {
		if err := r.report(state); err != nil {
			return err
		}

		state, err = r.waitForChange(ctx, state)
		if err != nil {
			return err
		}
	}
}

func (r *Reporter) report(state ModifierState) error {
	controls, err := r.monitor.Controls()
	if err != nil {
		return fmt.Errorf("fetch controls: %w", err)
	}

	line := StatusLine(state, controls)
	r.log.Debugw("reporting status", "line", line)

	if _, err := fmt.Fprintln(r.out, line); err != nil {
		return fmt.Errorf("write status line: %w", err)
	}

	return nil
}

func (r *Reporter) waitForChange(ctx context.Context, last ModifierState) (ModifierState, error) {
	resultCh := make(chan ModifierState, 1)
	errCh := make(chan error, 1)
	go func() {
		state, err := r.monitor.WaitForChange(last)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- state
	}()

	select {
	case <-ctx.Done():
		return ModifierState{}, ctx.Err()
	case state := <-resultCh:
		return state, nil
	case err := <-errCh:
		return ModifierState{}, fmt.Errorf("wait for change: %w", err)
	}
}
