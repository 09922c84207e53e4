package db

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

type countingGetter struct {
	calls int
	token *core.Token
	err   error
}

func (g *countingGetter) Get(context.Context, string) (*core.Token, error) {
	g.calls++
	return g.token, g.err
}

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:    "rmhtiles-meta.postgres.database.azure.com",
		Port:    5432,
		Name:    "tiledata",
		User:    "tileadmin",
		SSLMode: "require",
	}
}

func TestBuildConnStringConsumesTokenOnce(t *testing.T) {
	getter := &countingGetter{token: &core.Token{
		Scope:     core.ScopeDatabase,
		Value:     "eyJ.header.payload/with+special=chars&more",
		Source:    "managed-identity",
		ExpiresAt: time.Now().Add(time.Hour),
	}}

	dsn, err := BuildConnString(context.Background(), getter, testDatabaseConfig())
	if err != nil {
		t.Fatalf("BuildConnString() error = %v", err)
	}
	if getter.calls != 1 {
		t.Errorf("token getter called %d times, want exactly 1", getter.calls)
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parsing produced DSN: %v", err)
	}
	if parsed.Scheme != "postgresql" {
		t.Errorf("scheme = %q", parsed.Scheme)
	}
	if parsed.User.Username() != "tileadmin" {
		t.Errorf("user = %q", parsed.User.Username())
	}
	password, _ := parsed.User.Password()
	if password != getter.token.Value {
		t.Errorf("password did not round-trip: %q", password)
	}
	if parsed.Host != "rmhtiles-meta.postgres.database.azure.com:5432" {
		t.Errorf("host = %q", parsed.Host)
	}
	if parsed.Path != "/tiledata" {
		t.Errorf("path = %q", parsed.Path)
	}
	if got := parsed.Query().Get("sslmode"); got != "require" {
		t.Errorf("sslmode = %q", got)
	}

	// The raw token must be escaped, not dropped in verbatim.
	if strings.Contains(dsn, "payload/with") {
		t.Errorf("token embedded unescaped in DSN: %s", dsn)
	}
}

func TestBuildConnStringExtraParams(t *testing.T) {
	getter := &countingGetter{token: &core.Token{Value: "tok"}}
	cfg := testDatabaseConfig()
	cfg.Params = map[string]string{"connect_timeout": "5"}

	dsn, err := BuildConnString(context.Background(), getter, cfg)
	if err != nil {
		t.Fatalf("BuildConnString() error = %v", err)
	}
	parsed, _ := url.Parse(dsn)
	if got := parsed.Query().Get("connect_timeout"); got != "5" {
		t.Errorf("connect_timeout = %q", got)
	}
}

func TestBuildConnStringPropagatesAcquisitionFailure(t *testing.T) {
	wantErr := core.IdentityUnavailableError("chain exhausted")
	getter := &countingGetter{err: wantErr}

	_, err := BuildConnString(context.Background(), getter, testDatabaseConfig())
	if !errors.Is(err, core.ErrIdentityUnavailable) {
		t.Errorf("BuildConnString() error = %v, want identity failure passed through", err)
	}
}
