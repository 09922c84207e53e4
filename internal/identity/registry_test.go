package identity

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rob634/rmhtitiler-sub001/internal/config"
)

func TestBuildChainLocalMode(t *testing.T) {
	chain, err := BuildChain(config.IdentityConfig{
		Mode: config.ModeLocal,
		Sources: map[string]map[string]any{
			config.SourceCLI: {
				"binary":  "az",
				"timeout": "20s",
			},
			config.SourceSharedKey: {
				"account_key": testAccountKey,
				"ttl":         "30m",
			},
		},
	}, config.StorageConfig{Account: "rmhtiles"}, clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}

	want := []string{"azure-cli", "shared-key"}
	if got := chain.SourceNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceNames() = %v, want %v", got, want)
	}
	if chain.Mode() != config.ModeLocal {
		t.Errorf("Mode() = %q", chain.Mode())
	}
}

func TestBuildChainPlatformMode(t *testing.T) {
	chain, err := BuildChain(config.IdentityConfig{
		Mode: config.ModePlatform,
		Sources: map[string]map[string]any{
			config.SourceMetadata: {
				"endpoint":  "http://localhost:8989",
				"client_id": "11111111-2222-3333-4444-555555555555",
			},
		},
	}, config.StorageConfig{Account: "rmhtiles"}, clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("BuildChain() error = %v", err)
	}

	want := []string{"managed-identity"}
	if got := chain.SourceNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceNames() = %v, want %v", got, want)
	}
}

func TestBuildChainRejectsUnknownOptions(t *testing.T) {
	_, err := BuildChain(config.IdentityConfig{
		Mode: config.ModeLocal,
		Sources: map[string]map[string]any{
			config.SourceCLI: {"binry": "az"},
		},
	}, config.StorageConfig{Account: "rmhtiles"}, clockwork.NewRealClock())
	if err == nil {
		t.Fatal("BuildChain() accepted a misspelled option")
	}
	if !strings.Contains(err.Error(), "cli") {
		t.Errorf("error %v does not name the offending source", err)
	}
}

func TestBuildChainRejectsUnknownMode(t *testing.T) {
	_, err := BuildChain(config.IdentityConfig{Mode: "remote"},
		config.StorageConfig{Account: "rmhtiles"}, clockwork.NewRealClock())
	if err == nil {
		t.Fatal("BuildChain() accepted an unknown mode")
	}
}

func TestDecodeSourceConfigDurations(t *testing.T) {
	var cfg CLIConfig
	err := decodeSourceConfig(map[string]any{"timeout": "45s"}, &cfg)
	if err != nil {
		t.Fatalf("decodeSourceConfig() error = %v", err)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Timeout)
	}
}
