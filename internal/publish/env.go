package publish

import (
	"fmt"
	"os"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

var _ core.CredentialPublisher = (*EnvPublisher)(nil)

// EnvPublisher exports a storage credential through the process
// environment, where native object readers pick it up on their next
// request. It also removes the raw account key variable on every
// publish: once token-based access is active, a lingering key would
// both shadow the token for some readers and sit around as a secret
// nothing should need.
type EnvPublisher struct {
	account    string
	accountVar string
	tokenVar   string
	secretVar  string
}

func NewEnvPublisher(account, accountVar, tokenVar, secretVar string) *EnvPublisher {
	return &EnvPublisher{
		account:    account,
		accountVar: accountVar,
		tokenVar:   tokenVar,
		secretVar:  secretVar,
	}
}

func (p *EnvPublisher) Publish(_ core.Scope, token *core.Token) error {
	if err := os.Setenv(p.accountVar, p.account); err != nil {
		return fmt.Errorf("setting %s: %w", p.accountVar, err)
	}
	if err := os.Setenv(p.tokenVar, token.Value); err != nil {
		return fmt.Errorf("setting %s: %w", p.tokenVar, err)
	}
	// Unconditional, even when the variable was never set.
	if err := os.Unsetenv(p.secretVar); err != nil {
		return fmt.Errorf("unsetting %s: %w", p.secretVar, err)
	}
	return nil
}
