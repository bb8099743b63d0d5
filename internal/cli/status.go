package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/models"
)

var (
	statusStates   []string
	statusSkeleton string
	statusLimit    int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringSliceVar(&statusStates, "state", nil, "filter by state (repeatable)")
	statusCmd.Flags().StringVar(&statusSkeleton, "skeleton", "", "filter by skeleton")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 50, "max jobs to show")
}

var statusCmd = &cobra.Command{
	Use:   "status [job]",
	Short: "Show tracked jobs and their scheduler states",
	Example: `  # All recent jobs
  batchforge status

  # Only running or waiting jobs
  batchforge status --state running --state waiting

  # One job in detail
  batchforge status sweep-16`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobRepo := db.NewJobRepository(database)

		if len(args) == 1 {
			return showJob(ctx, jobRepo, args[0])
		}

		query := db.JobQuery{Skeleton: statusSkeleton, Limit: statusLimit}
		for _, raw := range statusStates {
			state := models.JobState(raw)
			if !state.Valid() {
				return fmt.Errorf("unknown state %q", raw)
			}
			query.States = append(query.States, state)
		}

		list, err := jobRepo.List(ctx, query)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, list)
		}

		if len(list) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		headers := []string{"NAME", "STATE", "BATCH ID", "SKELETON", "ATTEMPTS", "UPDATED"}
		rows := make([][]string, 0, len(list))
		for _, job := range list {
			batchID := job.BatchID
			if batchID == "" {
				batchID = "-"
			}
			rows = append(rows, []string{
				job.Name,
				formatJobState(job.State),
				batchID,
				job.Skeleton,
				fmt.Sprintf("%d", job.Attempts),
				formatAge(job.UpdatedAt),
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

// showJob prints one job, resolved by name, batchforge ID or batch ID.
func showJob(ctx context.Context, repo *db.JobRepository, ref string) error {
	job, err := repo.GetByName(ctx, ref)
	if errors.Is(err, db.ErrJobNotFound) {
		job, err = repo.Get(ctx, ref)
	}
	if errors.Is(err, db.ErrJobNotFound) {
		job, err = repo.GetByBatchID(ctx, ref)
	}
	if errors.Is(err, db.ErrJobNotFound) {
		return fmt.Errorf("no job matching %q", ref)
	}
	if err != nil {
		return err
	}

	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(os.Stdout, job)
	}

	fmt.Printf("Name:      %s\n", job.Name)
	fmt.Printf("State:     %s\n", formatJobState(job.State))
	fmt.Printf("Skeleton:  %s\n", job.Skeleton)
	if job.BatchID != "" {
		fmt.Printf("Batch ID:  %s\n", job.BatchID)
	}
	if job.Host != "" {
		fmt.Printf("Host:      %s\n", job.Host)
	}
	if job.ScriptPath != "" {
		fmt.Printf("Script:    %s\n", job.ScriptPath)
	}
	fmt.Printf("Attempts:  %d\n", job.Attempts)
	if job.Error != "" {
		fmt.Printf("Error:     %s\n", job.Error)
	}
	fmt.Printf("Created:   %s\n", job.CreatedAt.Local().Format(time.RFC1123))
	fmt.Printf("Updated:   %s\n", job.UpdatedAt.Local().Format(time.RFC1123))

	if len(job.Variables) > 0 {
		fmt.Println("Variables:")
		rows := make([][]string, 0, len(job.Variables))
		for _, key := range sortedKeys(job.Variables) {
			rows = append(rows, []string{"  " + key, job.Variables[key]})
		}
		return writeTable(os.Stdout, nil, rows)
	}
	return nil
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
