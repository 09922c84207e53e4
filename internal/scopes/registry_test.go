package scopes

import (
	"errors"
	"testing"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

func TestBuildRegistryDefaults(t *testing.T) {
	reg, err := BuildRegistry(&config.Config{
		Database: &config.DatabaseConfig{Host: "db", User: "u"},
	})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	storage, err := reg.Get(core.ScopeStorage)
	if err != nil {
		t.Fatalf("Get(storage) error = %v", err)
	}
	if storage.Audience != core.StorageAudience {
		t.Errorf("storage audience = %q, want %q", storage.Audience, core.StorageAudience)
	}
	if storage.Publish != core.PublishEnv {
		t.Errorf("storage publish = %q, want env", storage.Publish)
	}
	if storage.RefreshThreshold != DefaultRefreshThreshold {
		t.Errorf("storage threshold = %v, want %v", storage.RefreshThreshold, DefaultRefreshThreshold)
	}

	db, err := reg.Get(core.ScopeDatabase)
	if err != nil {
		t.Fatalf("Get(database) error = %v", err)
	}
	if db.Publish != core.PublishConnString {
		t.Errorf("database publish = %q, want connection-string", db.Publish)
	}

	if got := reg.Names(); len(got) != 2 || got[0] != core.ScopeDatabase || got[1] != core.ScopeStorage {
		t.Errorf("Names() = %v, want sorted pair", got)
	}
}

func TestBuildRegistryWithoutDatabase(t *testing.T) {
	reg, err := BuildRegistry(&config.Config{})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	if reg.Has(core.ScopeDatabase) {
		t.Error("database scope registered without database config")
	}
}

func TestBuildRegistryOverridesAndCustomScopes(t *testing.T) {
	reg, err := BuildRegistry(&config.Config{
		Scopes: []config.ScopeConfig{
			{Name: core.ScopeStorage, RefreshThreshold: 10 * time.Minute},
			{Name: "vault-access", Audience: "https://vault.azure.net/.default"},
		},
	})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	storage, _ := reg.Get(core.ScopeStorage)
	if storage.RefreshThreshold != 10*time.Minute {
		t.Errorf("override threshold = %v, want 10m", storage.RefreshThreshold)
	}
	if storage.Audience != core.StorageAudience {
		t.Errorf("override cleared audience: %q", storage.Audience)
	}

	vault, err := reg.Get("vault-access")
	if err != nil {
		t.Fatalf("Get(vault-access) error = %v", err)
	}
	if vault.Publish != core.PublishNone {
		t.Errorf("custom scope publish = %q, want none", vault.Publish)
	}
}

func TestBuildRegistryRejectsCustomScopeWithoutAudience(t *testing.T) {
	_, err := BuildRegistry(&config.Config{
		Scopes: []config.ScopeConfig{{Name: "mystery"}},
	})
	if err == nil {
		t.Fatal("BuildRegistry() succeeded, want audience error")
	}
}

func TestGetUnknownScope(t *testing.T) {
	reg, _ := BuildRegistry(&config.Config{})
	_, err := reg.Get("nope")
	if !errors.Is(err, core.ErrUnknownScope) {
		t.Errorf("Get(nope) error = %v, want ErrUnknownScope", err)
	}
}
