// Package slurm wraps the SLURM command-line tools behind an executor.
package slurm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/batchforge/batchforge/internal/logging"
	"github.com/batchforge/batchforge/internal/models"
	"github.com/batchforge/batchforge/internal/ssh"
	"github.com/rs/zerolog"
)

// Client errors.
var (
	ErrSubmitFailed   = errors.New("sbatch submission failed")
	ErrNoBatchID      = errors.New("could not extract job id from sbatch output")
	ErrCancelFailed   = errors.New("scancel failed")
	ErrStateQueryFail = errors.New("state query failed")
)

// Commands holds the scheduler tool paths. Zero values use the bare names.
type Commands struct {
	Sbatch  string
	Scancel string
	Squeue  string
	Sacct   string
}

func (c Commands) withDefaults() Commands {
	if c.Sbatch == "" {
		c.Sbatch = "sbatch"
	}
	if c.Scancel == "" {
		c.Scancel = "scancel"
	}
	if c.Squeue == "" {
		c.Squeue = "squeue"
	}
	if c.Sacct == "" {
		c.Sacct = "sacct"
	}
	return c
}

// Client submits and tracks SLURM jobs through an Executor.
type Client struct {
	exec   ssh.Executor
	cmds   Commands
	logger zerolog.Logger
}

// NewClient creates a scheduler client on top of an executor.
func NewClient(executor ssh.Executor, cmds Commands) *Client {
	return &Client{
		exec:   executor,
		cmds:   cmds.withDefaults(),
		logger: logging.Component("slurm"),
	}
}

// sbatch prints "Submitted batch job <id>" on success.
var submitRe = regexp.MustCompile(`Submitted batch job ([0-9]+)`)

// Submit runs sbatch for a script already present on the submission host and
// returns the scheduler job ID.
func (c *Client) Submit(ctx context.Context, scriptPath string) (string, error) {
	cmd := fmt.Sprintf("%s %s", c.cmds.Sbatch, scriptPath)

	stdout, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %v (%s)", ErrSubmitFailed, err, bytes.TrimSpace(stderr))
	}

	batchID := extractBatchID(string(stdout))
	if batchID == "" {
		return "", fmt.Errorf("%w: %q", ErrNoBatchID, strings.TrimSpace(string(stdout)))
	}

	c.logger.Info().Str("batch_id", batchID).Str("script", scriptPath).Msg("job submitted")
	return batchID, nil
}

// Cancel runs scancel for a scheduler job ID.
func (c *Client) Cancel(ctx context.Context, batchID string) error {
	if strings.TrimSpace(batchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrCancelFailed)
	}

	_, stderr, err := c.exec.Exec(ctx, fmt.Sprintf("%s %s", c.cmds.Scancel, batchID))
	if err != nil {
		return fmt.Errorf("%w: %v (%s)", ErrCancelFailed, err, bytes.TrimSpace(stderr))
	}

	c.logger.Info().Str("batch_id", batchID).Msg("job cancelled")
	return nil
}

// States returns the current state of each given scheduler job ID. Jobs no
// longer visible to squeue are resolved through sacct; IDs unknown to both
// are absent from the result.
func (c *Client) States(ctx context.Context, batchIDs []string) (map[string]models.JobState, error) {
	states := make(map[string]models.JobState, len(batchIDs))
	if len(batchIDs) == 0 {
		return states, nil
	}

	idList := strings.Join(batchIDs, ",")

	// Live jobs first.
	cmd := fmt.Sprintf(`%s --noheader --jobs=%s --format="%%i %%T"`, c.cmds.Squeue, idList)
	stdout, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		// squeue exits non-zero when every listed job has left the queue;
		// treat that as an empty live set and let sacct resolve them.
		c.logger.Debug().Err(err).Str("stderr", string(bytes.TrimSpace(stderr))).Msg("squeue returned error")
	}
	parseStateLines(string(stdout), states)

	missing := make([]string, 0, len(batchIDs))
	for _, id := range batchIDs {
		if _, ok := states[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return states, nil
	}

	// Finished jobs via accounting.
	cmd = fmt.Sprintf("%s --noheader --parsable2 --format=JobID,State --jobs=%s", c.cmds.Sacct, strings.Join(missing, ","))
	stdout, stderr, err = c.exec.Exec(ctx, cmd)
	if err != nil {
		return states, fmt.Errorf("%w: %v (%s)", ErrStateQueryFail, err, bytes.TrimSpace(stderr))
	}
	parseSacctLines(string(stdout), states)

	return states, nil
}

func extractBatchID(out string) string {
	match := submitRe.FindStringSubmatch(out)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}

// parseStateLines parses "<id> <state>" squeue output into states.
func parseStateLines(out string, states map[string]models.JobState) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if state := models.StateFromSlurm(fields[1]); state != "" {
			states[fields[0]] = state
		}
	}
}

// parseSacctLines parses "JobID|State" sacct output into states. Step rows
// (e.g. "123.batch") are ignored.
func parseSacctLines(out string, states map[string]models.JobState) {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
		if len(parts) != 2 {
			continue
		}
		id := strings.TrimSpace(parts[0])
		if id == "" || strings.ContainsRune(id, '.') {
			continue
		}
		if state := models.StateFromSlurm(parts[1]); state != "" {
			states[id] = state
		}
	}
}
