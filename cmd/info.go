package cmd

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rob634/rmhtitiler-sub001/internal/buildinfo"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the rmhtitiler installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if f.RemoteAddr == "" {
			return infoLocally(cmd, args)
		}
		return infoRemote(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func infoRemote(cmd *cobra.Command, _ []string) error {
	cli, err := f.GetClient()
	if err != nil {
		return err
	}
	log.Info().Msg("Fetching build info from server...")
	info, correlation, err := cli.Info(cmd.Context())
	if err != nil {
		return logError(err, correlation, "failed to get info from server")
	}

	fmt.Println(bold("\n── rmhtitiler Build Information ──"))
	printKV("Version", info.Version)
	printKV("Commit", info.CommitHash)
	printKV("Identity", info.Identity.Mode)
	printKV("Sources", strings.Join(info.Identity.Sources, " → "))
	return nil
}

func infoLocally(_ *cobra.Command, _ []string) error {
	log.Info().Msg("Showing local build info...")
	info := buildinfo.GetBuildInfo()

	fmt.Println(bold("\n── rmhtitiler Build Information ──"))
	printKV("Version", info.Version)
	printKV("Commit", info.CommitHash)
	return nil
}
