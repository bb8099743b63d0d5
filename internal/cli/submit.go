package cli

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/events"
	"github.com/batchforge/batchforge/internal/jobs"
	"github.com/batchforge/batchforge/internal/models"
	"github.com/batchforge/batchforge/internal/naming"
	"github.com/batchforge/batchforge/internal/templates"
)

var (
	submitName     string
	submitVars     []string
	submitVarsFile string
	submitWatch    bool
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitName, "name", "", "job name (default: derived from variables)")
	submitCmd.Flags().StringArrayVar(&submitVars, "var", nil, "variable assignment NAME=value (repeatable)")
	submitCmd.Flags().StringVar(&submitVarsFile, "vars-file", "", "read variable assignments from a file")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "wait for the job to finish")
}

var submitCmd = &cobra.Command{
	Use:   "submit <skeleton>",
	Short: "Render a skeleton and submit it to the scheduler",
	Example: `  # Submit and return immediately
  batchforge submit slurm-single --var JOB_NAME=test --name test

  # Submit and wait for the job to finish
  batchforge submit slurm-single --var JOB_NAME=test --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		vars, err := collectVars(submitVars, submitVarsFile)
		if err != nil {
			return err
		}

		finder := newSkeletonFinder(cfg)
		skel, err := finder.Find(args[0])
		if err != nil {
			return err
		}

		name := submitName
		if name == "" {
			name = naming.FromVariables(vars)
		}

		step := startProgress("Rendering " + skel.Name)
		script, err := templates.RenderSkeleton(skel, vars)
		if err != nil {
			step.Fail(err)
			return err
		}
		step.Done()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		jobRepo := db.NewJobRepository(database)
		eventRepo := db.NewEventRepository(database)

		job := &models.Job{
			Name:      name,
			Skeleton:  skel.Name,
			State:     models.JobStatePending,
			Variables: vars,
		}
		if cfg != nil {
			job.Host = cfg.Remote.Host
		}
		if err := jobRepo.Create(ctx, job); err != nil {
			return err
		}
		if err := events.LogJobCreated(ctx, eventRepo, job.ID); err != nil {
			return err
		}

		scriptDir := filepath.Join(os.TempDir(), "batchforge-scripts")
		if err := os.MkdirAll(scriptDir, 0o755); err != nil {
			return fmt.Errorf("failed to create script directory: %w", err)
		}
		scriptPath := filepath.Join(scriptDir, name+".sh")
		if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write script: %w", err)
		}
		job.ScriptPath = scriptPath
		if err := events.LogScriptRendered(ctx, eventRepo, job.ID, skel.Name, scriptPath, len(script)); err != nil {
			return err
		}

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}
		defer executor.Close()

		submitPath := scriptPath
		if cfg != nil && cfg.RemoteEnabled() {
			remotePath := path.Join(cfg.Remote.WorkDir, filepath.Base(scriptPath))
			step = startProgress("Uploading to " + cfg.Remote.Host)
			if err := executor.Upload(ctx, scriptPath, remotePath); err != nil {
				step.Fail(err)
				return err
			}
			step.Done()
			submitPath = remotePath
			if err := events.LogScriptUploaded(ctx, eventRepo, job.ID, remotePath); err != nil {
				return err
			}
		}

		client := buildSlurmClient(cfg, executor)

		step = startProgress("Submitting " + name)
		job.Attempts++
		batchID, err := client.Submit(ctx, submitPath)
		if err != nil {
			step.Fail(err)
			job.State = models.JobStateFailed
			job.Error = err.Error()
			_ = jobRepo.Update(ctx, job)
			return err
		}
		step.Done()

		job.BatchID = batchID
		job.State = models.JobStateSubmitted
		if err := jobRepo.Update(ctx, job); err != nil {
			return err
		}
		if err := events.LogJobSubmitted(ctx, eventRepo, job.ID, batchID, job.Host, submitPath, job.Attempts); err != nil {
			return err
		}

		if !submitWatch {
			if IsJSONOutput() || IsJSONLOutput() {
				return WriteOutput(os.Stdout, job)
			}
			fmt.Printf("Submitted %s as batch job %s\n", name, batchID)
			return nil
		}

		pollInterval := jobs.DefaultConfig().PollInterval
		if cfg != nil {
			pollInterval = cfg.Watch.PollInterval
		}

		watcher := jobs.New(jobs.Config{PollInterval: pollInterval}, client, jobRepo, eventRepo)
		if err := watcher.Track(job); err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()

		step = startProgress("Waiting for batch job " + batchID)
		if err := watcher.Wait(ctx); err != nil {
			step.Fail(err)
			return err
		}
		step.Done()

		final, err := jobRepo.Get(ctx, job.ID)
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, final)
		}
		fmt.Printf("Job %s finished: %s\n", name, formatJobState(final.State))
		if final.State != models.JobStateCompleted {
			return fmt.Errorf("job %s ended %s", name, final.State)
		}
		return nil
	},
}
