package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facelocker/server/internal/logging"
)

var lockersCmd = &cobra.Command{
	Use:   "lockers",
	Short: "Show the state of every provisioned locker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg, logging.Discard())
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LOCKER\tLOCKED\tOCCUPANT\tLAST ACCESSED")
		for _, l := range a.controller.Lockers() {
			occupant, last := "-", "-"
			if l.Occupied {
				occupant = l.Occupant
			}
			if l.LastAccessed != nil {
				last = l.LastAccessed.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%t\t%s\t%s\n", l.Number, l.Locked, occupant, last)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lockersCmd)
}
