package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

const (
	defaultCLIBinary  = "az"
	defaultCLITimeout = 30 * time.Second
)

type CLIConfig struct {
	// Binary is the platform CLI executable, looked up on PATH.
	Binary string `mapstructure:"binary"`

	// Timeout bounds a single CLI invocation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// CLISource shells out to the platform CLI of a logged-in developer.
// It only ever appears in local-mode chains.
type CLISource struct {
	binary  string
	timeout time.Duration
	run     runFunc
}

type runFunc func(ctx context.Context, binary string, args ...string) (stdout, stderr []byte, err error)

func NewCLISource(cfg CLIConfig) *CLISource {
	s := &CLISource{
		binary:  cfg.Binary,
		timeout: cfg.Timeout,
		run:     runCommand,
	}
	if s.binary == "" {
		s.binary = defaultCLIBinary
	}
	if s.timeout <= 0 {
		s.timeout = defaultCLITimeout
	}
	return s
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (s *CLISource) Name() string {
	return "azure-cli"
}

func (s *CLISource) Supports(core.Scope) bool {
	return true
}

// cliTokenResponse mirrors `az account get-access-token --output json`.
type cliTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
	TokenType   string `json:"tokenType"`
}

func (s *CLISource) Acquire(ctx context.Context, scope core.Scope) (*core.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resource := strings.TrimSuffix(scope.Audience, "/.default")
	stdout, stderr, err := s.run(ctx, s.binary,
		"account", "get-access-token",
		"--resource", resource,
		"--output", "json",
	)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, core.SourceUnavailableError("%s binary not found on PATH", s.binary)
		}
		msg := strings.TrimSpace(string(stderr))
		if isNotLoggedIn(msg) {
			return nil, core.SourceUnavailableError("%s has no active login: %s", s.binary, firstLine(msg))
		}
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("running %s: %s", s.binary, firstLine(msg))
	}

	var res cliTokenResponse
	if err := json.Unmarshal(stdout, &res); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", s.binary, err)
	}
	if res.AccessToken == "" {
		return nil, fmt.Errorf("%s returned no access token", s.binary)
	}

	expiresAt, err := parseCLIExpiry(res.ExpiresOn, res.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("determining token expiry: %w", err)
	}

	return &core.Token{
		Scope:     scope.Name,
		Value:     res.AccessToken,
		Source:    s.Name(),
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// cliExpiryLayouts are the timestamp shapes the CLI has been seen
// emitting. The first two are local time without a zone.
var cliExpiryLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// parseCLIExpiry prefers the CLI's own expiresOn field and falls back
// to the token's exp claim when the field is absent or unreadable.
func parseCLIExpiry(expiresOn, token string) (time.Time, error) {
	if expiresOn != "" {
		for _, layout := range cliExpiryLayouts {
			if t, err := time.ParseInLocation(layout, expiresOn, time.Local); err == nil {
				return t, nil
			}
		}
	}
	return tokenExpiry(token)
}

func isNotLoggedIn(stderr string) bool {
	for _, marker := range []string{"az login", "not logged in", "Please run 'az login'"} {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
