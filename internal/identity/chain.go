package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

// Chain tries its sources in order until one produces a token. The
// chain is assembled once at startup from the identity mode and never
// changes afterwards.
type Chain struct {
	mode    string
	sources []core.CredentialSource
}

var _ core.Acquirer = (*Chain)(nil)

func NewChain(mode string, sources ...core.CredentialSource) *Chain {
	return &Chain{mode: mode, sources: sources}
}

// Mode returns the identity mode the chain was built for.
func (c *Chain) Mode() string {
	return c.mode
}

// SourceNames lists the chain entries in try-order.
func (c *Chain) SourceNames() []string {
	names := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		names = append(names, src.Name())
	}
	return names
}

func (c *Chain) Acquire(ctx context.Context, scope core.Scope) (*core.Token, error) {
	logger := log.Ctx(ctx)

	var attempts []string
	for _, src := range c.sources {
		if !src.Supports(scope) {
			logger.Debug().
				Str("source", src.Name()).
				Str("scope", scope.Name).
				Msg("source does not serve this scope, skipping")
			continue
		}

		token, err := src.Acquire(ctx, scope)
		if err == nil {
			logger.Debug().
				Str("source", src.Name()).
				Str("scope", scope.Name).
				Time("expires_at", token.ExpiresAt).
				Msg("credential acquired")
			return token, nil
		}

		if core.IsSourceUnavailable(err) {
			logger.Debug().
				Err(err).
				Str("source", src.Name()).
				Str("scope", scope.Name).
				Msg("source unavailable, advancing chain")
			attempts = append(attempts, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		// A source that answered and said no. Advancing would hide a
		// real misconfiguration, so stop here.
		return nil, fmt.Errorf("acquiring %q via %s: %w", scope.Name, src.Name(), err)
	}

	if len(attempts) == 0 {
		return nil, core.IdentityUnavailableError("no source in the %s chain serves scope %q", c.mode, scope.Name)
	}
	return nil, core.IdentityUnavailableError("chain exhausted for scope %q (%s)", scope.Name, strings.Join(attempts, "; "))
}
