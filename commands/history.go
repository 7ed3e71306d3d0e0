package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/sleepsense/report"
	"github.com/maastricht-university/sleepsense/store"
)

var (
	historyLimit  int
	historyRun    string
	historyDelete string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or inspect past runs",
	Long: `List recent runs from the history database (paths.store), show one
run in full with --run, or remove one with --delete.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(conf)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("paths.store is not configured")
		}
		defer st.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch {
		case historyDelete != "":
			if err := st.Delete(ctx, historyDelete); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s\n", historyDelete)
			return nil

		case historyRun != "":
			run, err := st.Load(ctx, historyRun)
			if err != nil {
				return err
			}
			if historyJSON {
				return writeJSON(cmd, run)
			}
			fmt.Fprint(out, report.New().Night(report.Night{
				RunID:            run.ID,
				Source:           run.Source,
				RecordingSeconds: run.RecordingSeconds,
				Summary:          run.Summary,
				Events:           run.Events,
				Insights:         run.Insights,
				MaxEvents:        len(run.Events),
			}))
			return nil
		}

		runs, err := st.RecentRuns(ctx, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(cmd, runs)
		}
		fmt.Fprint(out, report.New().History(lines(runs)))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show one run in full")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "delete a run")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
}

func lines(runs []store.Run) []report.RunLine {
	out := make([]report.RunLine, len(runs))
	for i, r := range runs {
		out[i] = report.RunLine{
			ID:               r.ID,
			CreatedAt:        r.CreatedAt,
			Source:           r.Source,
			RecordingSeconds: r.RecordingSeconds,
			Summary:          r.Summary,
		}
	}
	return out
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
