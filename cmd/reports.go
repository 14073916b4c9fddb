package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/extraction-ops/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect saved comparison reports",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year, _ := cmd.Flags().GetInt("year")
		limit, _ := cmd.Flags().GetInt("limit")

		reports, err := st.ListReports(ctx, store.ReportFilter{Year: year, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "reports list")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "reports show: invalid id %q", args[0])
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := st.GetReport(ctx, id)
		if err != nil {
			return eris.Wrap(err, "reports show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

// -- reports history --

var reportsHistoryCmd = &cobra.Command{
	Use:   "history <datapoint>",
	Short: "Show how one data point compared across saved reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		hist, err := st.DataPointHistory(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "reports history")
		}
		if len(hist) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, hist)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().Int("year", 0, "filter by reporting year")
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")
	reportsHistoryCmd.Flags().Int("limit", 20, "max number of reports to include")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsHistoryCmd)
	rootCmd.AddCommand(reportsCmd)
}

// formatReportsList writes a tabular list of reports to w.
func formatReportsList(out io.Writer, reports []store.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tYEAR\tTHRESHOLD\tCOMPANIES\tEXACT %\tTOLERANT %\tCREATED\tNOTE")
	_, _ = fmt.Fprintln(w, "--\t----\t---------\t---------\t-------\t----------\t-------\t----")

	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%g\t%d\t%.1f\t%.1f\t%s\t%s\n",
			truncateID(r.ID.String()),
			r.Year,
			r.RoundingThreshold,
			r.Overview.Companies,
			r.Overview.TotalRates.ExactMatch,
			r.Overview.TotalRates.Tolerant,
			r.CreatedAt.Format("2006-01-02 15:04"),
			truncate(r.Note, 40),
		)
	}
	_ = w.Flush()
}

// formatHistory writes one line per saved report for a data point.
func formatHistory(out io.Writer, hist []store.DataPointHistory) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REPORT\tYEAR\tCREATED\tWITH DATA\tIDENTICAL\tERRORS\tEXACT %\tTOLERANT %")

	for _, h := range hist {
		c := h.Counts
		errs := c.SmallError + c.UnitError + c.CategoryError + c.Hallucination + c.Missing + c.Error
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%d\t%.1f\t%.1f\n",
			truncateID(h.ReportID.String()),
			h.Year,
			h.CreatedAt.Format("2006-01-02 15:04"),
			c.WithAnyData,
			c.Identical,
			errs,
			h.Rates.ExactMatch,
			h.Rates.Tolerant,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
