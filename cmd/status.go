package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the credential state of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Retrieving credential status...")
		status, correlation, err := cli.CredentialStatus(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to get credential status")
		}

		fmt.Println(bold("\n── Identity ──"))
		printKV("Mode", status.Identity.Mode)
		for idx, source := range status.Identity.Sources {
			printKV(fmt.Sprintf("Source %d", idx+1), source)
		}

		fmt.Println(bold("\n── Scopes ──"))
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Scope", "State", "Source", "Fingerprint", "Expires", "Refreshes", "Last Error"})

		for _, scope := range status.Scopes {
			state := redCross + " absent"
			if scope.Present {
				state = greenCheck + " cached"
			}

			expires := "n/a"
			if scope.Present {
				left := time.Duration(scope.ExpiresInSeconds * float64(time.Second)).Round(time.Second)
				expires = fmt.Sprintf("%s (%s left)", scope.ExpiresAt.Format("15:04:05"), faint(left.String()))
				if left <= 0 {
					expires = color.RedString("expired")
				}
			}

			t.AppendRow(table.Row{
				color.New(color.Bold).Sprint(scope.Scope),
				state,
				scope.Source,
				truncate(scope.Fingerprint, 16),
				expires,
				scope.Refreshes,
				truncate(scope.LastError, 40),
			})
		}

		applyTableFormat(t)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
