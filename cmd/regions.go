package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/distance"
)

var regionsCmd = &cobra.Command{
	Use:   "regions [name]",
	Short: "List built-in regions, or the cities of one region",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return formatRegionList(os.Stdout)
		}
		table, err := cityref.Region(args[0])
		if err != nil {
			return err
		}
		formatRegionCities(os.Stdout, table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}

func formatRegionList(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tCITIES\tDESCRIPTION")
	for _, name := range cityref.Regions() {
		t, err := cityref.Region(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", t.Name(), t.Len(), t.Description())
	}
	return w.Flush()
}

func formatRegionCities(out io.Writer, t *cityref.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tPOPULATION\tLAT\tLNG\tRADIUS KM")
	for _, e := range t.Entries() {
		radius := "-"
		if e.Population != nil {
			radius = fmt.Sprintf("%.0f", distance.TravelWillingnessRadius(*e.Population))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%s\n",
			e.Name, formatInt(e.Population), e.Center.Lat, e.Center.Lng, radius)
	}
	_ = w.Flush()
}
