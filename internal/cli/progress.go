// Package cli provides progress output helpers for long-running commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"
)

// progressOut is swapped in tests.
var progressOut io.Writer = os.Stderr

// progressStep prints "<label>... done (1.2s)" style lines to stderr while a
// command works through its phases. A nil step is a no-op, so call sites do
// not need to check whether progress is enabled.
type progressStep struct {
	started time.Time
}

func startProgress(label string) *progressStep {
	if !progressEnabled() {
		return nil
	}
	fmt.Fprintf(progressOut, "%s... ", label)
	return &progressStep{started: time.Now()}
}

// Done finishes the step, reporting how long it took.
func (p *progressStep) Done() {
	if p == nil {
		return
	}
	fmt.Fprintf(progressOut, "done (%s)\n", formatDuration(time.Since(p.started)))
}

// Fail finishes the step with the error that stopped it.
func (p *progressStep) Fail(err error) {
	if p == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(progressOut, "failed: %v\n", err)
	} else {
		fmt.Fprintln(progressOut, "failed")
	}
}

// Skip finishes the step without doing its work, e.g. a job that is already
// completed.
func (p *progressStep) Skip(reason string) {
	if p == nil {
		return
	}
	fmt.Fprintf(progressOut, "skipped (%s)\n", reason)
}

// Progress goes to stderr and is suppressed for machine-readable output, via
// --no-progress, or through BATCHFORGE_NO_PROGRESS / NO_PROGRESS in the
// environment.
func progressEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() || noProgress {
		return false
	}
	for _, name := range []string{"BATCHFORGE_NO_PROGRESS", "NO_PROGRESS"} {
		if _, ok := os.LookupEnv(name); ok {
			return false
		}
	}
	return true
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
