package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facelocker/server/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		conn, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		v, err := db.CurrentVersion(cmd.Context(), conn)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", cfg.DBPath, v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
