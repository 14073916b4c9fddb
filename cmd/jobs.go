package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var rerunCmd = &cobra.Command{
	Use:   "rerun <queue> <job-id>",
	Short: "Re-queue a pipeline job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cfg).RerunJob(cmd.Context(), args[0], args[1]); err != nil {
			return eris.Wrap(err, "rerun")
		}
		fmt.Fprintf(os.Stdout, "job %s re-queued on %s\n", args[1], args[0])
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <queue> <job-id> [true|false]",
	Short: "Approve or reject a job awaiting approval",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		approved := true
		if len(args) == 3 {
			v, err := strconv.ParseBool(args[2])
			if err != nil {
				return eris.Wrapf(err, "approve: invalid decision %q", args[2])
			}
			approved = v
		}
		if err := newClient(cfg).ApproveJob(cmd.Context(), args[0], args[1], approved); err != nil {
			return eris.Wrap(err, "approve")
		}
		fmt.Fprintf(os.Stdout, "job %s on %s: approved=%t\n", args[1], args[0], approved)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rerunCmd)
	rootCmd.AddCommand(approveCmd)
}
