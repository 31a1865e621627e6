package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/scanplan/core/policy"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report machines booked twice in the persisted schedule",
	Args:  cobra.NoArgs,
	RunE:  checkSchedule,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkSchedule(cmd *cobra.Command, _ []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer closeService(svc, cmd)

	entries, err := svc.Current(cmd.Context())
	if err != nil {
		return err
	}
	overlaps := policy.FindOverlaps(entries)
	scans := 0
	for _, o := range overlaps {
		cmd.Println(o.String())
		if !o.First.IsMaintenance() && !o.Second.IsMaintenance() {
			scans++
		}
	}
	if scans > 0 {
		return fmt.Errorf("%d overlapping scan bookings", scans)
	}
	cmd.Printf("%d entries, no overlapping scans\n", len(entries))
	return nil
}
