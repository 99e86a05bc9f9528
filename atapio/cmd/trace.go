package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sarchlab/atapio/datarecording"
	"github.com/sarchlab/atapio/tracing"
	"github.com/spf13/cobra"
)

func newTraceCmd(_ *options) *cobra.Command {
	var (
		kind  string
		what  string
		limit int
		steps bool
	)

	traceCmd := &cobra.Command{
		Use:   "trace FILE",
		Short: "Print the tasks recorded in a trace database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}

			reader, err := datarecording.NewReader(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			reader.MapTable(tracing.TaskTable, tracing.TaskEntry{})
			reader.MapTable(tracing.StepTable, tracing.StepEntry{})

			var (
				where  []string
				params []any
			)

			if kind != "" {
				where = append(where, "Kind = ?")
				params = append(params, kind)
			}

			if what != "" {
				where = append(where, "What = ?")
				params = append(params, what)
			}

			tasks, total, err := reader.Query(cmd.Context(), tracing.TaskTable,
				datarecording.QueryParams{
					Where:   strings.Join(where, " AND "),
					Args:    params,
					Limit:   limit,
					OrderBy: "StartTime",
				})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, t := range tasks {
				task := t.(*tracing.TaskEntry)
				fmt.Fprintf(w, "%s %s %s@%s %.6f %.6f %s\n",
					task.ID, task.Kind, task.What, task.Location,
					task.StartTime, task.EndTime-task.StartTime, task.Detail)

				if steps {
					if err := printSteps(cmd, reader, task.ID); err != nil {
						return err
					}
				}
			}

			fmt.Fprintf(w, "%d of %d tasks\n", len(tasks), total)

			return nil
		},
	}

	traceCmd.Flags().StringVar(&kind, "kind", "",
		"only print tasks of this kind, ata or device")
	traceCmd.Flags().StringVar(&what, "what", "",
		"only print tasks doing this, for example read_sectors")
	traceCmd.Flags().IntVarP(&limit, "limit", "n", 0,
		"print at most this many tasks")
	traceCmd.Flags().BoolVar(&steps, "steps", false,
		"print the steps of each task")

	return traceCmd
}

func printSteps(
	cmd *cobra.Command,
	reader datarecording.DataReader,
	taskID string,
) error {
	steps, _, err := reader.Query(cmd.Context(), tracing.StepTable,
		datarecording.QueryParams{
			Where:   "TaskID = ?",
			Args:    []any{taskID},
			OrderBy: "Time",
		})
	if err != nil {
		return err
	}

	for _, s := range steps {
		step := s.(*tracing.StepEntry)
		fmt.Fprintf(cmd.OutOrStdout(), "    %.6f %s\n", step.Time, step.What)
	}

	return nil
}
