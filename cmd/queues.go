package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/extraction-ops/internal/aggregate"
	"github.com/sells-group/extraction-ops/internal/config"
	"github.com/sells-group/extraction-ops/internal/dashboard"
	"github.com/sells-group/extraction-ops/internal/model"
	"github.com/sells-group/extraction-ops/pkg/garbo"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Show pipeline status per company",
	Long:  "Fetches every pipeline queue once and prints the latest run of each company and year.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		asJSON, _ := cmd.Flags().GetBool("json")
		summary, _ := cmd.Flags().GetBool("summary")

		aggOpts, err := aggregateOptions(cfg)
		if err != nil {
			return err
		}
		snap, err := fetchSnapshot(cmd.Context(), newClient(cfg), cfg.Poll, aggOpts)
		if err != nil {
			return err
		}
		for _, q := range sortedKeys(snap.Errors) {
			fmt.Fprintf(os.Stderr, "warning: queue %s: %s\n", q, snap.Errors[q])
		}

		switch {
		case asJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		case summary:
			formatStageSummary(os.Stdout, snap.Summary, cfg.Poll.Queues)
		default:
			formatCompanyStatus(os.Stdout, snap.Companies, model.JobStatus(status))
		}
		return nil
	},
}

// fetchSnapshot polls every configured queue once.
func fetchSnapshot(ctx context.Context, client garbo.Client, poll config.PollConfig, opts aggregate.Options) (dashboard.Snapshot, error) {
	p := dashboard.NewPoller(client, dashboard.NewHub[dashboard.Snapshot](), poll, opts)
	snap, err := p.Refresh(ctx)
	if err != nil {
		return snap, eris.Wrap(err, "queues")
	}
	return snap, nil
}

func init() {
	queuesCmd.Flags().String("status", "", "only show runs with this status (waiting, processing, needs_approval, completed, failed)")
	queuesCmd.Flags().Bool("json", false, "print the full snapshot as JSON")
	queuesCmd.Flags().Bool("summary", false, "print status counts per stage")
	rootCmd.AddCommand(queuesCmd)
}

// formatCompanyStatus writes one line per company and year with the latest
// run. A non-empty status keeps only runs with that status.
func formatCompanyStatus(out io.Writer, companies []aggregate.CompanyStatus, status model.JobStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tWIKIDATA\tYEAR\tSTATUS\tSTAGE\tUPDATED")
	_, _ = fmt.Fprintln(w, "-------\t--------\t----\t------\t-----\t-------")

	for i := range companies {
		c := &companies[i]
		for y := range c.Years {
			run := c.Years[y].Latest()
			if run == nil || (status != "" && run.Status != status) {
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(c.Name, 30),
				c.WikidataID,
				c.Years[y].Year,
				run.Status,
				currentStage(run),
				run.LastActivity.Format("2006-01-02 15:04"),
			)
		}
	}
	_ = w.Flush()
}

// currentStage returns the first stage whose status decides the run status.
func currentStage(run *aggregate.Run) string {
	for _, st := range run.Stages {
		if st.Status == run.Status {
			return st.Stage
		}
	}
	if n := len(run.Stages); n > 0 {
		return run.Stages[n-1].Stage
	}
	return ""
}

// formatStageSummary writes status counts per stage in pipeline order.
func formatStageSummary(out io.Writer, sum aggregate.Summary, order []string) {
	statuses := []model.JobStatus{
		model.JobStatusWaiting,
		model.JobStatusProcessing,
		model.JobStatusNeedsApproval,
		model.JobStatusCompleted,
		model.JobStatusFailed,
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tWAITING\tPROCESSING\tAPPROVAL\tCOMPLETED\tFAILED")

	seen := make(map[string]bool, len(order))
	stages := make([]string, 0, len(sum.ByStage))
	for _, s := range order {
		if _, ok := sum.ByStage[s]; ok {
			stages = append(stages, s)
			seen[s] = true
		}
	}
	for _, s := range sortedKeys(sum.ByStage) {
		if !seen[s] {
			stages = append(stages, s)
		}
	}

	for _, s := range stages {
		_, _ = fmt.Fprint(w, s)
		for _, st := range statuses {
			_, _ = fmt.Fprintf(w, "\t%d", sum.ByStage[s][st])
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintf(w, "TOTAL (%d runs)", sum.Runs)
	for _, st := range statuses {
		_, _ = fmt.Fprintf(w, "\t%d", sum.ByStatus[st])
	}
	_, _ = fmt.Fprintln(w)
	_ = w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
