package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rob634/rmhtitiler-sub001/internal/audit"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
	"github.com/rob634/rmhtitiler-sub001/internal/scopes"
)

var (
	debugTokenScope  string
	debugTokenReveal bool
)

var debugTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Acquire a credential locally for testing",
	Long: `Test command that runs the configured identity chain once and prints
what it produced, without starting a server or publishing anything.`,
	Example: `  rmhtitiler debug token -c rmhtitiler.yaml --scope storage-access`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServiceConfig()
		if err != nil {
			return err
		}

		registry, err := scopes.BuildRegistry(cfg)
		if err != nil {
			return fmt.Errorf("building scope registry: %w", err)
		}
		scope, err := registry.Get(debugTokenScope)
		if err != nil {
			return err
		}

		chain, err := f.BuildLocalChain(cfg)
		if err != nil {
			return err
		}
		log.Debug().
			Str("mode", chain.Mode()).
			Strs("sources", chain.SourceNames()).
			Msg("running identity chain")

		token, err := chain.Acquire(cmd.Context(), scope)
		if err != nil {
			return fmt.Errorf("acquiring credential: %w", err)
		}

		fmt.Println(bold("\n── Credential ──"))
		printKV("Scope", token.Scope)
		printKV("Source", token.Source)
		printKV("Fingerprint", audit.Fingerprint(token.Value))
		printKV("Expires", fmt.Sprintf("%s (in %s)",
			token.ExpiresAt.Format(time.RFC3339),
			time.Until(token.ExpiresAt).Round(time.Second)))
		if debugTokenReveal {
			printKV("Value", token.Value)
		} else {
			printKV("Value", faint("(hidden, use --reveal)"))
		}
		return nil
	},
}

func init() {
	debugCmd.AddCommand(debugTokenCmd)

	debugTokenCmd.Flags().StringVar(&debugTokenScope, "scope", core.ScopeStorage, "Scope to acquire a credential for")
	debugTokenCmd.Flags().BoolVar(&debugTokenReveal, "reveal", false, "Print the raw credential value")
}
