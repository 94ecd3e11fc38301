package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/facelocker/server/internal/locker/store"
	"github.com/facelocker/server/internal/logging"
)

var accessLogCmd = &cobra.Command{
	Use:   "access-log",
	Short: "List recent access attempts, newest first",
	RunE:  runAccessLog,
}

func init() {
	rootCmd.AddCommand(accessLogCmd)
	accessLogCmd.Flags().String("identity", "", "Only attempts by this identity")
	accessLogCmd.Flags().Int("locker", 0, "Only attempts on this locker")
	accessLogCmd.Flags().Int("limit", 0, "Maximum entries (default FACELOCKER_ACCESS_LOG_LIMIT)")
}

func runAccessLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), cfg, logging.Discard())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, _ := cmd.Flags().GetString("identity")
	locker, _ := cmd.Flags().GetInt("locker")
	limit, _ := cmd.Flags().GetInt("limit")

	entries, err := a.controller.AccessLog(cmd.Context(), store.AccessEventQuery{
		IdentityID:   identity,
		LockerNumber: locker,
		Limit:        limit,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tIDENTITY\tLOCKER\tACTION\tSUCCESS\tREASON\tCONFIDENCE")
	for _, e := range entries {
		conf := "-"
		if e.Confidence != nil {
			conf = strconv.Itoa(*e.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\t%s\t%s\n",
			e.OccurredAt.Format(time.RFC3339), e.IdentityID, e.LockerNumber, e.Action, e.Success, e.Reason, conf)
	}
	return tw.Flush()
}
