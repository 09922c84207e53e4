package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

const (
	accountSASVersion = "2022-11-02"

	defaultSASTTL           = time.Hour
	defaultSASPermissions   = "rl"
	defaultSASServices      = "b"
	defaultSASResourceTypes = "sco"

	// Grants start slightly in the past so a storage-side clock that
	// runs behind ours still accepts them immediately.
	sasClockSkew = 10 * time.Minute

	sasTimeLayout = "2006-01-02T15:04:05Z"
)

type SharedKeyConfig struct {
	// AccountKey is the base64-encoded storage account key. Leaving it
	// empty keeps the source in the chain but permanently unavailable.
	AccountKey string `mapstructure:"account_key"`

	TTL           time.Duration `mapstructure:"ttl"`
	Permissions   string        `mapstructure:"permissions"`
	Services      string        `mapstructure:"services"`
	ResourceTypes string        `mapstructure:"resource_types"`
}

// SharedKeySource signs account-level access grants with the storage
// account key. Local-mode fallback for machines without a CLI login;
// it can only ever serve the storage audience.
type SharedKeySource struct {
	account       string
	key           []byte
	ttl           time.Duration
	permissions   string
	services      string
	resourceTypes string
	clock         clockwork.Clock
}

func NewSharedKeySource(account string, cfg SharedKeyConfig, clock clockwork.Clock) (*SharedKeySource, error) {
	s := &SharedKeySource{
		account:       account,
		ttl:           cfg.TTL,
		permissions:   cfg.Permissions,
		services:      cfg.Services,
		resourceTypes: cfg.ResourceTypes,
		clock:         clock,
	}
	if cfg.AccountKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("decoding account key: %w", err)
		}
		s.key = key
	}
	if s.ttl <= 0 {
		s.ttl = defaultSASTTL
	}
	if s.permissions == "" {
		s.permissions = defaultSASPermissions
	}
	if s.services == "" {
		s.services = defaultSASServices
	}
	if s.resourceTypes == "" {
		s.resourceTypes = defaultSASResourceTypes
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s, nil
}

func (s *SharedKeySource) Name() string {
	return "shared-key"
}

func (s *SharedKeySource) Supports(scope core.Scope) bool {
	return scope.Audience == core.StorageAudience
}

func (s *SharedKeySource) Acquire(_ context.Context, scope core.Scope) (*core.Token, error) {
	if len(s.key) == 0 {
		return nil, core.SourceUnavailableError("no account key configured")
	}

	// Whole-second timestamps keep the signature deterministic for a
	// given instant.
	now := s.clock.Now().UTC().Truncate(time.Second)
	start := now.Add(-sasClockSkew)
	expiry := now.Add(s.ttl)

	grant := s.sign(start, expiry)

	return &core.Token{
		Scope:     scope.Name,
		Value:     grant,
		Source:    s.Name(),
		IssuedAt:  now,
		ExpiresAt: expiry,
	}, nil
}

// sign produces the account-level grant query string for the window
// [start, expiry]. Field order follows the service's signing contract
// for version 2022-11-02.
func (s *SharedKeySource) sign(start, expiry time.Time) string {
	st := start.Format(sasTimeLayout)
	se := expiry.Format(sasTimeLayout)

	stringToSign := strings.Join([]string{
		s.account,
		s.permissions,
		s.services,
		s.resourceTypes,
		st,
		se,
		"",                // allowed IP range
		"https",           // allowed protocol
		accountSASVersion,
		"",                // encryption scope
		"",                // trailing newline
	}, "\n")

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	v := url.Values{}
	v.Set("sv", accountSASVersion)
	v.Set("ss", s.services)
	v.Set("srt", s.resourceTypes)
	v.Set("sp", s.permissions)
	v.Set("st", st)
	v.Set("se", se)
	v.Set("spr", "https")
	v.Set("sig", signature)
	return v.Encode()
}
