package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/events"
	"github.com/batchforge/batchforge/internal/models"
)

var cancelForce bool

func init() {
	rootCmd.AddCommand(cancelCmd)

	cancelCmd.Flags().BoolVar(&cancelForce, "force", false, "skip confirmation")
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Cancel a submitted job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobRepo := db.NewJobRepository(database)
		eventRepo := db.NewEventRepository(database)

		job, err := jobRepo.GetByName(ctx, args[0])
		if errors.Is(err, db.ErrJobNotFound) {
			job, err = jobRepo.Get(ctx, args[0])
		}
		if errors.Is(err, db.ErrJobNotFound) {
			job, err = jobRepo.GetByBatchID(ctx, args[0])
		}
		if errors.Is(err, db.ErrJobNotFound) {
			return fmt.Errorf("no job matching %q", args[0])
		}
		if err != nil {
			return err
		}

		if job.State.Terminal() {
			return fmt.Errorf("job %s already finished (%s)", job.Name, job.State)
		}
		if job.BatchID == "" {
			return fmt.Errorf("job %s was never submitted", job.Name)
		}

		if !cancelForce && !SkipConfirmation() {
			if !confirm(fmt.Sprintf("Cancel batch job %s (%s)?", job.BatchID, job.Name)) {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return nil
			}
		}

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}
		defer executor.Close()

		client := buildSlurmClient(cfg, executor)

		step := startProgress("Cancelling batch job " + job.BatchID)
		if err := client.Cancel(ctx, job.BatchID); err != nil {
			step.Fail(err)
			return err
		}
		step.Done()

		oldState := job.State
		if err := jobRepo.UpdateState(ctx, job.ID, models.JobStateCancelled, ""); err != nil {
			return err
		}
		if err := events.LogStateChanged(ctx, eventRepo, job.ID, oldState, models.JobStateCancelled, job.BatchID); err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"cancelled": true,
				"job":       job.Name,
				"batch_id":  job.BatchID,
			})
		}
		fmt.Printf("Cancelled %s (batch job %s)\n", job.Name, job.BatchID)
		return nil
	},
}
