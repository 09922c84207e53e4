package cmd

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/identity"
	"github.com/rob634/rmhtitiler-sub001/pkg/client"
)

var f = NewFactory()

type Factory struct {
	// RemoteAddr is the address of the rmhtitiler server to connect to.
	RemoteAddr string
}

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns an HTTP client for remote operations.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(AddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set RMHTITILER_ADDR)")
	}
	return client.New(server), nil
}

// LoadServiceConfig reads the service configuration named by --config.
func (f *Factory) LoadServiceConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// BuildLocalChain constructs the identity chain the way the server
// would, for commands that acquire credentials without a server.
func (f *Factory) BuildLocalChain(cfg *config.Config) (*identity.Chain, error) {
	chain, err := identity.BuildChain(cfg.Identity, cfg.Storage, clockwork.NewRealClock())
	if err != nil {
		return nil, fmt.Errorf("building identity chain: %w", err)
	}
	return chain, nil
}
