package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/jobs"
	"github.com/batchforge/batchforge/internal/models"
	"github.com/batchforge/batchforge/internal/tui"
)

var watchPlain bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print transitions as text instead of the interactive view")
}

var watchCmd = &cobra.Command{
	Use:   "watch [job...]",
	Short: "Watch submitted jobs until they finish",
	Long: `Watch polls the scheduler for the given jobs (all non-terminal jobs when
none are named) and shows their states as they change. With a TTY an
interactive view is shown; otherwise transitions are printed one per line.`,
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

		var watched []*models.Job
		if len(args) > 0 {
			for _, ref := range args {
				job, err := jobRepo.GetByName(ctx, ref)
				if err != nil {
					return fmt.Errorf("no job named %q", ref)
				}
				watched = append(watched, job)
			}
		} else {
			watched, err = jobRepo.List(ctx, db.JobQuery{States: []models.JobState{
				models.JobStateSubmitted,
				models.JobStateWaiting,
				models.JobStateRunning,
			}})
			if err != nil {
				return err
			}
		}

		if len(watched) == 0 {
			fmt.Println("No jobs to watch.")
			return nil
		}

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}
		defer executor.Close()

		watchConfig := jobs.DefaultConfig()
		if cfg != nil {
			watchConfig.PollInterval = cfg.Watch.PollInterval
		}

		watcher := jobs.New(watchConfig, buildSlurmClient(cfg, executor), jobRepo, eventRepo)
		for _, job := range watched {
			if job.BatchID == "" {
				fmt.Fprintf(os.Stderr, "Skipping %s: never submitted\n", job.Name)
				continue
			}
			if err := watcher.Track(job); err != nil {
				return err
			}
		}

		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()

		if !watchPlain && hasTTY() && !IsJSONOutput() && !IsJSONLOutput() {
			return tui.Run(watcher)
		}

		for {
			select {
			case update := <-watcher.Updates():
				if IsJSONOutput() || IsJSONLOutput() {
					if err := WriteOutput(os.Stdout, update); err != nil {
						return err
					}
				} else {
					fmt.Printf("%s  %s -> %s (batch %s)\n", update.JobName, update.From, update.To, update.BatchID)
				}
			case <-watcher.Done():
				if err := watcher.Err(); err != nil {
					return err
				}
				stats := watcher.Stats()
				if !IsJSONOutput() && !IsJSONLOutput() {
					fmt.Printf("All %d job(s) finished.\n", stats.Tracked)
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	},
}
