package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scheduleFormat string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <batch.csv|batch.json>",
	Short: "Plan a batch of scan requests into the persisted schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  scheduleBatch,
}

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleFormat, "format", "f", "agenda", "output format: agenda, csv, json or yaml")
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(svc, cmd)
	if err := svc.StartOutputs(ctx); err != nil {
		return err
	}

	res, err := svc.Schedule(ctx, args[0])
	if res != nil {
		out := cmd.ErrOrStderr()
		fmt.Fprintf(out, "run %s: %s\n", res.RunID, res.Status)
		fmt.Fprintf(out, "  scheduled %d, deferred %d, skipped %d, rejected %d, locked %d\n",
			len(res.Added), len(res.Deferred), len(res.Skipped), len(res.Rejected), res.Locked)
		if res.Solve != nil {
			fmt.Fprintf(out, "  solver %s objective %d bound %d nodes %d in %s\n",
				res.Solve.Status, res.Solve.Objective, res.Solve.Bound, res.Solve.Nodes, res.Solve.Elapsed)
		}
		for _, sk := range res.Skipped {
			fmt.Fprintf(out, "  skipped %s: %s\n", sk.ScanID, sk.Reason)
		}
		for _, r := range res.Deferred {
			fmt.Fprintf(out, "  deferred %s (patient %s)\n", r.ScanID, r.PatientID)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	if err != nil {
		return err
	}
	return writeSchedule(cmd.OutOrStdout(), scheduleFormat, res.Schedule, svc.Facility().Location)
}
