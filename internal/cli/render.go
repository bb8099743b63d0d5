package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/templates"
)

var (
	renderVars     []string
	renderVarsFile string
	renderOutput   string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "variable assignment NAME=value (repeatable)")
	renderCmd.Flags().StringVar(&renderVarsFile, "vars-file", "", "read variable assignments from a file, one NAME=value per line")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write the script to a file instead of stdout")
}

var renderCmd = &cobra.Command{
	Use:   "render <skeleton>",
	Short: "Render a job script from a skeleton",
	Long: `Render substitutes variables into a skeleton and prints the resulting
job script. Placeholders look like $NAME or ${NAME}; every placeholder must
be resolved by a --var assignment, a skeleton default, or be declared as
passed through to the scheduler.`,
	Example: `  # Render the builtin parallel skeleton
  batchforge render slurm-parallel \
    --var FIRST_GLOBALSETTING_JOB_NAME=myjob \
    --var SUM_GLOBALSETTING_MEMORY=64G \
    --var SUMTIME_GLOBALSETTING_TIME=12:00:00 \
    --var SUM_GLOBALSETTING_NODES=4 \
    --var JOB_PARTITION=compute \
    --var JOBS_OUTPUT_FILENAME=sweep.out \
    --var NOTIFICATIONS_EMAIL=user@example.org \
    --var PARALLEL=commands.txt

  # Write to a file
  batchforge render slurm-single --var JOB_NAME=test -o job.sh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := collectVars(renderVars, renderVarsFile)
		if err != nil {
			return err
		}

		finder := newSkeletonFinder(GetConfig())
		skel, err := finder.Find(args[0])
		if err != nil {
			return err
		}

		script, err := templates.RenderSkeleton(skel, vars)
		if err != nil {
			return err
		}

		if renderOutput != "" {
			if err := os.WriteFile(renderOutput, []byte(script), 0o755); err != nil {
				return fmt.Errorf("failed to write %s: %w", renderOutput, err)
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", renderOutput)
			return nil
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{
				"skeleton": skel.Name,
				"script":   script,
			})
		}

		fmt.Print(script)
		return nil
	},
}

// collectVars merges a vars file with --var flags; flags win.
func collectVars(flags []string, file string) (map[string]string, error) {
	vars := make(map[string]string)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read vars file: %w", err)
		}
		for lineno, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, value, err := parseAssignment(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", file, lineno+1, err)
			}
			vars[name] = value
		}
	}

	for _, flag := range flags {
		name, value, err := parseAssignment(flag)
		if err != nil {
			return nil, err
		}
		vars[name] = value
	}

	return vars, nil
}

func parseAssignment(s string) (string, string, error) {
	name, value, found := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", "", fmt.Errorf("invalid variable assignment %q, expected NAME=value", s)
	}
	return name, value, nil
}
