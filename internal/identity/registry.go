package identity

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/mapstructure"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
)

// BuildChain assembles the credential source chain for the configured
// identity mode. Local mode tries the developer's CLI login first and
// falls back to shared-key signing; platform mode uses the instance's
// own identity exclusively.
func BuildChain(identityCfg config.IdentityConfig, storageCfg config.StorageConfig, clock clockwork.Clock) (*Chain, error) {
	switch identityCfg.Mode {
	case config.ModeLocal:
		var cliCfg CLIConfig
		if err := decodeSourceConfig(identityCfg.Sources[config.SourceCLI], &cliCfg); err != nil {
			return nil, fmt.Errorf("configuring %s source: %w", config.SourceCLI, err)
		}

		var sharedCfg SharedKeyConfig
		if err := decodeSourceConfig(identityCfg.Sources[config.SourceSharedKey], &sharedCfg); err != nil {
			return nil, fmt.Errorf("configuring %s source: %w", config.SourceSharedKey, err)
		}
		shared, err := NewSharedKeySource(storageCfg.Account, sharedCfg, clock)
		if err != nil {
			return nil, fmt.Errorf("creating %s source: %w", config.SourceSharedKey, err)
		}

		return NewChain(identityCfg.Mode, NewCLISource(cliCfg), shared), nil

	case config.ModePlatform:
		var metadataCfg MetadataConfig
		if err := decodeSourceConfig(identityCfg.Sources[config.SourceMetadata], &metadataCfg); err != nil {
			return nil, fmt.Errorf("configuring %s source: %w", config.SourceMetadata, err)
		}

		return NewChain(identityCfg.Mode, NewMetadataSource(metadataCfg)), nil

	default:
		return nil, fmt.Errorf("unknown identity mode %q", identityCfg.Mode)
	}
}

// decodeSourceConfig maps the free-form per-source options onto a typed
// config. Unknown keys are config mistakes and rejected.
func decodeSourceConfig(raw map[string]any, out any) error {
	if raw == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decoding options: %w", err)
	}
	return nil
}
