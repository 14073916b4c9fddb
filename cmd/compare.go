package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/export"
	"github.com/sells-group/extraction-ops/internal/store"
)

// compareFlags selects what the compare command prints.
type compareFlags struct {
	Year      int
	DataPoint string
	Worst     bool
	Format    string
	Out       string
	Save      bool
	Note      string
	Threshold *float64
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare staging against production emissions data",
	Long: "Classifies every data point of every company present in both environments. " +
		"Prints the overview by default, one data point with --datapoint, or the worst companies with --worst.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var f compareFlags
		f.Year, _ = cmd.Flags().GetInt("year")
		f.DataPoint, _ = cmd.Flags().GetString("datapoint")
		f.Worst, _ = cmd.Flags().GetBool("worst")
		f.Format, _ = cmd.Flags().GetString("format")
		f.Out, _ = cmd.Flags().GetString("out")
		f.Save, _ = cmd.Flags().GetBool("save")
		f.Note, _ = cmd.Flags().GetString("note")
		if cmd.Flags().Changed("threshold") {
			t, _ := cmd.Flags().GetFloat64("threshold")
			f.Threshold = &t
		}
		if err := f.validate(); err != nil {
			return err
		}

		cmp, err := newComparator(cfg, newClient(cfg))
		if err != nil {
			return err
		}

		var st store.Store
		if f.Save {
			st, err = initStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		return runCompare(ctx, os.Stdout, cmp, st, f)
	},
}

func init() {
	compareCmd.Flags().Int("year", 0, "reporting year (default newest year with data)")
	compareCmd.Flags().String("datapoint", "", "compare a single data point, e.g. scope1_total")
	compareCmd.Flags().Bool("worst", false, "rank companies by failing data points")
	compareCmd.Flags().String("format", "table", "output format: table, csv, xlsx or json")
	compareCmd.Flags().String("out", "", "write output to a file (required for xlsx)")
	compareCmd.Flags().Float64("threshold", 0, "rounding threshold override")
	compareCmd.Flags().Bool("save", false, "save the overview and worst companies as a report")
	compareCmd.Flags().String("note", "", "note stored with a saved report")
	rootCmd.AddCommand(compareCmd)
}

func (f compareFlags) validate() error {
	switch f.Format {
	case "table", "csv", "json":
	case "xlsx":
		if f.Out == "" {
			return eris.New("compare: --out is required for xlsx")
		}
	default:
		return eris.Errorf("compare: unknown format %q", f.Format)
	}
	if f.DataPoint != "" && f.Worst {
		return eris.New("compare: --datapoint and --worst are exclusive")
	}
	if f.Threshold != nil && *f.Threshold < 0 {
		return eris.Errorf("compare: threshold must be >= 0, got %v", *f.Threshold)
	}
	return nil
}

// runCompare prints the selected comparison to out, or to f.Out when set,
// and optionally saves a report to st.
func runCompare(ctx context.Context, out io.Writer, cmp *dashboard.Comparator, st store.Store, f compareFlags) error {
	q := dashboard.Query{Year: f.Year, Threshold: f.Threshold}
	year, err := cmp.ResolveYear(ctx, q)
	if err != nil {
		return eris.Wrap(err, "compare")
	}
	q.Year = year

	var (
		table  *export.Table
		result any
	)
	switch {
	case f.DataPoint != "":
		rows, err := cmp.DataPoint(ctx, f.DataPoint, q)
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		table, result = export.RowsTable(rows, cmp.Options().Catalog), rows
	case f.Worst:
		ranked, err := cmp.Worst(ctx, q)
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		table, result = export.WorstTable(ranked), ranked
	default:
		ov, err := cmp.Overview(ctx, q)
		if err != nil {
			return eris.Wrap(err, "compare")
		}
		table, result = export.OverviewTable(ov), ov
	}

	if err := writeComparison(out, table, result, f); err != nil {
		return err
	}

	if f.Save {
		rep, err := saveReport(ctx, cmp, st, q, f.Note)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved report %s (year %d)\n", rep.ID, rep.Year)
	}
	return nil
}

func writeComparison(out io.Writer, table *export.Table, result any, f compareFlags) error {
	switch f.Format {
	case "xlsx":
		return export.WriteXLSXFile(f.Out, table)
	case "csv":
		if f.Out != "" {
			return export.WriteCSVFile(f.Out, table)
		}
		return export.WriteCSV(out, table)
	}

	if f.Out != "" {
		file, err := os.Create(f.Out)
		if err != nil {
			return eris.Wrap(err, "compare: create output")
		}
		defer file.Close() //nolint:errcheck
		out = file
	}

	if f.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "compare: encode json")
	}
	formatTable(out, table)
	return nil
}

// saveReport stores the overview and worst ranking of q.
func saveReport(ctx context.Context, cmp *dashboard.Comparator, st store.Store, q dashboard.Query, note string) (*store.Report, error) {
	if st == nil {
		return nil, eris.New("compare: no report store")
	}
	ov, err := cmp.Overview(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "compare: save report")
	}
	worst, err := cmp.Worst(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "compare: save report")
	}
	rep := store.NewReport(ov, worst, note)
	if err := st.SaveReport(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// formatTable writes t as aligned columns.
func formatTable(out io.Writer, t *export.Table) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, rec := range t.Records() {
		_, _ = fmt.Fprintln(w, strings.Join(rec, "\t"))
	}
	_ = w.Flush()
}
