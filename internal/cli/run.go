package cli

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/batchforge/batchforge/internal/db"
	"github.com/batchforge/batchforge/internal/maker"
)

var (
	runScriptDir   string
	runMaxFailures int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runScriptDir, "script-dir", "", "directory for rendered scripts (default: temporary)")
	runCmd.Flags().IntVar(&runMaxFailures, "max-failures", 0, "submission attempts per job before giving up (default: from config)")
}

// runFile is the on-disk format of a batch description.
type runFile struct {
	Skeleton string            `yaml:"skeleton"`
	Jobs     []runFileJob      `yaml:"jobs"`
	Defaults map[string]string `yaml:"defaults,omitempty"`
}

type runFileJob struct {
	Name      string            `yaml:"name,omitempty"`
	Skeleton  string            `yaml:"skeleton,omitempty"`
	Variables map[string]string `yaml:"variables"`
}

var runCmd = &cobra.Command{
	Use:   "run <batch-file>",
	Short: "Submit a batch of jobs and supervise them until done",
	Long: `Run reads a YAML batch description, renders a script for every job,
submits them all and polls the scheduler until every job finishes. Failed
jobs are resubmitted until they succeed or hit the failure limit. Jobs that
completed in a previous run are skipped, so an interrupted batch can simply
be run again.`,
	Example: `  batchforge run sweep.yaml

  # sweep.yaml:
  #   skeleton: slurm-parallel
  #   defaults:
  #     JOB_PARTITION: compute
  #   jobs:
  #     - name: sweep-16
  #       variables: {SUM_GLOBALSETTING_NODES: "16", ...}
  #     - name: sweep-32
  #       variables: {SUM_GLOBALSETTING_NODES: "32", ...}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		requests, err := loadBatchFile(args[0])
		if err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}
		defer executor.Close()

		makerConfig := maker.Config{
			ScriptDir: runScriptDir,
		}
		if cfg != nil {
			makerConfig.Host = cfg.Remote.Host
			makerConfig.MaxFailures = cfg.Run.MaxFailures
			makerConfig.PollInterval = cfg.Watch.PollInterval
			if cfg.RemoteEnabled() {
				makerConfig.RemoteDir = cfg.Remote.WorkDir
			}
		}
		if runMaxFailures > 0 {
			makerConfig.MaxFailures = runMaxFailures
		}

		opts := []maker.Option{
			maker.WithEventRepository(db.NewEventRepository(database)),
		}
		if cfg != nil && cfg.RemoteEnabled() {
			opts = append(opts, maker.WithUploader(executor))
		}
		if progressEnabled() {
			opts = append(opts, maker.WithProgress(func(line string) {
				fmt.Fprintln(os.Stderr, line)
			}))
		}

		m := maker.New(
			makerConfig,
			newSkeletonFinder(cfg),
			buildSlurmClient(cfg, executor),
			db.NewJobRepository(database),
			opts...,
		)

		result, err := m.Run(ctx, requests)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"run_id":    result.RunID,
				"total":     result.Total,
				"completed": result.Completed,
				"failed":    result.Failed,
				"skipped":   result.Skipped,
				"duration":  result.Duration.String(),
			})
		}

		fmt.Printf("Run %s: %d completed, %d failed, %d skipped (of %d) in %s\n",
			result.RunID, result.Completed, result.Failed, result.Skipped,
			result.Total, formatDuration(result.Duration))
		if result.Failed > 0 {
			return fmt.Errorf("%d job(s) failed", result.Failed)
		}
		return nil
	},
}

func loadBatchFile(filename string) ([]maker.Request, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var file runFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path.Base(filename), err)
	}
	if len(file.Jobs) == 0 {
		return nil, fmt.Errorf("%s contains no jobs", filename)
	}

	requests := make([]maker.Request, 0, len(file.Jobs))
	for i, job := range file.Jobs {
		skeleton := job.Skeleton
		if skeleton == "" {
			skeleton = file.Skeleton
		}
		if skeleton == "" {
			return nil, fmt.Errorf("job %d has no skeleton and the batch declares no default", i+1)
		}

		vars := make(map[string]string, len(file.Defaults)+len(job.Variables))
		for key, value := range file.Defaults {
			vars[key] = value
		}
		for key, value := range job.Variables {
			vars[key] = value
		}

		requests = append(requests, maker.Request{
			Name:      job.Name,
			Skeleton:  skeleton,
			Variables: vars,
		})
	}

	return requests, nil
}
