package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scriptify-labs/worker-cli/internal/model"
	"github.com/scriptify-labs/worker-cli/internal/runner"
	"github.com/scriptify-labs/worker-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing, viewing, and summarizing job runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		jobType, _ := cmd.Flags().GetString("job-type")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			JobType: jobType,
			Status:  model.RunStatus(status),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return printJSON(os.Stdout, run)
	},
}

// -- runs result --

var runsResultCmd = &cobra.Command{
	Use:   "result <run-id>",
	Short: "Print a run's result payload",
	Long:  "Prints the latest checkpointed result, which for a running or aborted run is the partial result collected so far.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		data, err := loadResult(ctx, st, args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	},
}

// -- runs logs --

var runsLogsFollow bool

var runsLogsCmd = &cobra.Command{
	Use:   "logs <run-id>",
	Short: "Print a run's log, optionally following it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs logs")
		}
		if run.LogPath == "" {
			return eris.Errorf("run %s has no log file", run.ID)
		}

		var offset int64
		for {
			chunk, next, err := runner.ReadLogFrom(run.LogPath, offset)
			if err != nil {
				return err
			}
			if len(chunk) > 0 {
				os.Stdout.Write(chunk) //nolint:errcheck
			}
			offset = next

			if !runsLogsFollow {
				return nil
			}
			// Stop once the run is terminal and the log is drained.
			run, err = st.GetRun(ctx, run.ID)
			if err != nil {
				return err
			}
			if run.Status.Terminal() && len(chunk) == 0 {
				return nil
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run counts by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(os.Stdout, counts)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (PENDING, STARTED, SUCCESS, ...)")
	runsListCmd.Flags().String("job-type", "", "filter by job type")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsLogsCmd.Flags().BoolVarP(&runsLogsFollow, "follow", "f", false, "keep streaming until the run finishes")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsResultCmd)
	runsCmd.AddCommand(runsLogsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSTATUS\tCREATED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-------\t--------\t-----")

	for _, r := range runs {
		dur := ""
		if d := r.Duration(); d > 0 {
			dur = d.Round(time.Second).String()
		}

		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.JobType,
			r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes per-status counts to w in lifecycle order.
func formatRunStats(out io.Writer, counts map[model.RunStatus]int) {
	order := []model.RunStatus{
		model.RunStatusPending,
		model.RunStatusReceived,
		model.RunStatusStarted,
		model.RunStatusSuccess,
		model.RunStatusFailure,
		model.RunStatusRevoked,
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, status := range order {
		if n, ok := counts[status]; ok {
			_, _ = fmt.Fprintf(w, "%s:\t%d\n", status, n)
			total += n
		}
	}
	// Statuses outside the known lifecycle still show up.
	var extra []string
	for status := range counts {
		known := false
		for _, s := range order {
			if s == status {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, string(status))
		}
	}
	sort.Strings(extra)
	for _, status := range extra {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", status, counts[model.RunStatus(status)])
		total += counts[model.RunStatus(status)]
	}
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", total)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
