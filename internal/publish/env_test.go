package publish

import (
	"os"
	"testing"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

func testToken(value string) *core.Token {
	return &core.Token{
		Scope:     core.ScopeStorage,
		Value:     value,
		Source:    "shared-key",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestPublishExportsAccountAndToken(t *testing.T) {
	t.Setenv(config.DefaultAccountVar, "")
	t.Setenv(config.DefaultTokenVar, "")

	p := NewEnvPublisher("rmhtiles",
		config.DefaultAccountVar, config.DefaultTokenVar, config.DefaultSecretVar)

	if err := p.Publish(core.Scope{Name: core.ScopeStorage}, testToken("sv=1&sig=abc")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := os.Getenv(config.DefaultAccountVar); got != "rmhtiles" {
		t.Errorf("%s = %q, want rmhtiles", config.DefaultAccountVar, got)
	}
	if got := os.Getenv(config.DefaultTokenVar); got != "sv=1&sig=abc" {
		t.Errorf("%s = %q", config.DefaultTokenVar, got)
	}
}

func TestPublishScrubsRawSecret(t *testing.T) {
	// t.Setenv registers cleanup, so the variable is restored after the
	// test even though Publish removes it.
	t.Setenv(config.DefaultSecretVar, "raw-account-key")
	t.Setenv(config.DefaultAccountVar, "")
	t.Setenv(config.DefaultTokenVar, "")

	p := NewEnvPublisher("rmhtiles",
		config.DefaultAccountVar, config.DefaultTokenVar, config.DefaultSecretVar)

	if err := p.Publish(core.Scope{Name: core.ScopeStorage}, testToken("sv=1&sig=abc")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if value, present := os.LookupEnv(config.DefaultSecretVar); present {
		t.Errorf("%s still present with value %q after publish", config.DefaultSecretVar, value)
	}
}

func TestPublishScrubIsUnconditional(t *testing.T) {
	t.Setenv(config.DefaultAccountVar, "")
	t.Setenv(config.DefaultTokenVar, "")
	os.Unsetenv(config.DefaultSecretVar)

	p := NewEnvPublisher("rmhtiles",
		config.DefaultAccountVar, config.DefaultTokenVar, config.DefaultSecretVar)

	// Publishing with the secret already absent must not fail.
	if err := p.Publish(core.Scope{Name: core.ScopeStorage}, testToken("first")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// A secret that reappears between refreshes is scrubbed again.
	t.Setenv(config.DefaultSecretVar, "sneaky-reinjection")
	if err := p.Publish(core.Scope{Name: core.ScopeStorage}, testToken("second")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, present := os.LookupEnv(config.DefaultSecretVar); present {
		t.Errorf("%s survived a republish", config.DefaultSecretVar)
	}

	if got := os.Getenv(config.DefaultTokenVar); got != "second" {
		t.Errorf("%s = %q, want the latest token", config.DefaultTokenVar, got)
	}
}
