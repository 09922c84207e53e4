package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rob634/rmhtitiler-sub001/internal/engine"
	"github.com/rob634/rmhtitiler-sub001/internal/scopes"
	"github.com/rob634/rmhtitiler-sub001/internal/validation"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Loads the configuration and additionally builds the scope registry and
rule engine from it, so scope references and match expressions are
checked the same way the server would check them at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.LoadServiceConfig()
		if err != nil {
			return err
		}

		registry, err := scopes.BuildRegistry(cfg)
		if err != nil {
			return fmt.Errorf("building scope registry: %w", err)
		}

		knownScopes := make(map[string]struct{})
		for _, name := range registry.Names() {
			knownScopes[name] = struct{}{}
		}
		if err := validation.ValidateRules(cfg.Rules, knownScopes); err != nil {
			return fmt.Errorf("validating rules: %w", err)
		}

		if _, err := engine.New(cfg.Rules); err != nil {
			return fmt.Errorf("compiling rules: %w", err)
		}

		log.Info().
			Str("identity_mode", cfg.Identity.Mode).
			Str("storage_account", cfg.Storage.Account).
			Bool("database", cfg.Database != nil).
			Strs("scopes", registry.Names()).
			Int("rules", len(cfg.Rules)).
			Msg("Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
