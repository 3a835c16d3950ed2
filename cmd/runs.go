package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved scoring runs",
	Long:  "Commands for listing and viewing runs saved with 'process --save'.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		runs, err := st.ListRuns(ctx, store.RunFilter{Region: region, Limit: limit, Offset: offset})
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
	Short: "Show a saved run with its ranked cities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return showRun(os.Stdout, run, asJSON)
	},
}

// -- runs latest --

var runsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recent saved run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, _ := cmd.Flags().GetString("region")
		run, err := st.LatestRun(ctx, region)
		if err != nil {
			return eris.Wrap(err, "runs latest")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		return showRun(os.Stdout, run, asJSON)
	},
}

func init() {
	runsListCmd.Flags().String("region", "", "filter by region")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Int("offset", 0, "number of runs to skip")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsLatestCmd.Flags().String("region", "", "filter by region")
	runsLatestCmd.Flags().Bool("json", false, "print the run as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLatestCmd)
	rootCmd.AddCommand(runsCmd)
}

// showRun writes a run as indented JSON or as a header plus ranked table.
func showRun(out io.Writer, run *model.Run, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Region:\t%s\n", run.Region)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Records:\t%d (%d unique)\n", run.InputRecords, run.UniqueRecords)
	_, _ = fmt.Fprintf(w, "Weights:\tpopulation %.2f, saturation %.2f, quality gap %.2f, geographic gap %.2f\n",
		run.Weights.Population, run.Weights.Saturation, run.Weights.QualityGap, run.Weights.GeographicGap)
	_, _ = fmt.Fprintf(w, "Normalization:\t%s\n", run.Normalization)
	if run.ConfigHash != "" {
		_, _ = fmt.Fprintf(w, "Config hash:\t%s\n", run.ConfigHash)
	}
	if err := w.Flush(); err != nil {
		return eris.Wrap(err, "runs: write header")
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return eris.Wrap(err, "runs: write header")
	}
	return writeOpportunityTable(out, run.Cities, 0)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREGION\tRECORDS\tUNIQUE\tNORMALIZATION\tCONFIG\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t------\t-------------\t------\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Region,
			r.InputRecords,
			r.UniqueRecords,
			r.Normalization,
			truncateID(r.ConfigHash),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of an ID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
