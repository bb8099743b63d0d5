package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/batchforge/batchforge/internal/templates"
)

var skeletonsTags []string

func init() {
	rootCmd.AddCommand(skeletonsCmd)
	skeletonsCmd.AddCommand(skeletonsListCmd)
	skeletonsCmd.AddCommand(skeletonsShowCmd)

	skeletonsListCmd.Flags().StringSliceVar(&skeletonsTags, "tag", nil, "filter by tag (repeatable)")
}

var skeletonsCmd = &cobra.Command{
	Use:   "skeletons",
	Short: "Inspect available job-script skeletons",
}

var skeletonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skeletons from all search paths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		finder := newSkeletonFinder(GetConfig())
		all, err := finder.All()
		if err != nil {
			return err
		}

		filtered := filterSkeletons(all, skeletonsTags)

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, filtered)
		}

		if len(filtered) == 0 {
			fmt.Println("No skeletons found.")
			return nil
		}

		headers := []string{"NAME", "VARIABLES", "TAGS", "SOURCE", "DESCRIPTION"}
		rows := make([][]string, 0, len(filtered))
		for _, skel := range filtered {
			rows = append(rows, []string{
				skel.Name,
				fmt.Sprintf("%d", len(skel.Variables)),
				strings.Join(skel.Tags, ","),
				skel.Source,
				skel.Description,
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

var skeletonsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one skeleton, its variables and its script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		finder := newSkeletonFinder(GetConfig())
		skel, err := finder.Find(args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, skel)
		}

		fmt.Printf("Name:        %s\n", skel.Name)
		if skel.Description != "" {
			fmt.Printf("Description: %s\n", skel.Description)
		}
		fmt.Printf("Source:      %s\n", skel.Source)
		if len(skel.Tags) > 0 {
			fmt.Printf("Tags:        %s\n", strings.Join(skel.Tags, ", "))
		}

		if len(skel.Variables) > 0 {
			fmt.Println("\nVariables:")
			rows := make([][]string, 0, len(skel.Variables))
			for _, variable := range skel.Variables {
				def := variable.Default
				if def == "" {
					def = "-"
				}
				rows = append(rows, []string{
					"  " + variable.Name,
					formatYesNo(variable.Required),
					def,
					variable.Description,
				})
			}
			if err := writeTable(os.Stdout, []string{"  NAME", "REQUIRED", "DEFAULT", "DESCRIPTION"}, rows); err != nil {
				return err
			}
		}
		if len(skel.Passthrough) > 0 {
			fmt.Printf("\nPassed through to the scheduler: %s\n", strings.Join(skel.Passthrough, ", "))
		}

		fmt.Println("\nScript:")
		for _, line := range strings.Split(strings.TrimRight(skel.Script, "\n"), "\n") {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}

// filterSkeletons keeps skeletons carrying at least one of the given tags.
func filterSkeletons(skels []*templates.Skeleton, tags []string) []*templates.Skeleton {
	if len(tags) == 0 {
		return skels
	}

	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		wanted[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}

	var out []*templates.Skeleton
	for _, skel := range skels {
		for _, tag := range skel.Tags {
			if _, ok := wanted[strings.ToLower(tag)]; ok {
				out = append(out, skel)
				break
			}
		}
	}
	return out
}
