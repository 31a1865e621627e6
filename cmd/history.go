package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/scanplan/core/runlog"
)

var (
	historySince  time.Duration
	historyStatus string
	historyScan   string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past scheduling runs",
	Args:  cobra.NoArgs,
	RunE:  listHistory,
}

func init() {
	f := historyCmd.Flags()
	f.DurationVar(&historySince, "since", 0, "only runs newer than this, e.g. 72h")
	f.StringVar(&historyStatus, "status", "", "only runs with this status (ok, infeasible, timeout, error)")
	f.StringVar(&historyScan, "scan", "", "only runs that touched this scan id")
	f.IntVarP(&historyLimit, "limit", "n", 20, "most recent runs to show, 0 for all")
	f.BoolVar(&historyJSON, "json", false, "print one JSON record per line")
	rootCmd.AddCommand(historyCmd)
}

func listHistory(cmd *cobra.Command, _ []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(svc, cmd)

	q := runlog.Query{Status: historyStatus, ScanID: historyScan, Limit: historyLimit}
	if historySince > 0 {
		q.Start = time.Now().Add(-historySince)
	}
	recs, err := svc.History(cmd.Context(), q)
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tSTATUS\tREQUESTS\tSCHEDULED\tDEFERRED\tENTRIES\tSOURCE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Timestamp.Format(time.RFC3339), r.RunID, r.Status, r.Requests,
			len(r.Scheduled), len(r.Deferred), r.Entries, r.Source)
	}
	return tw.Flush()
}
