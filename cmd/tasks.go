package cmd

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and trigger background tasks",
	Long:  `View the background tasks of a running server, read their logs and trigger runs manually.`,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
