package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rob634/rmhtitiler-sub001/internal/core"
)

const (
	// DefaultMetadataEndpoint is the link-local instance metadata
	// address; it only answers from inside a platform VM or container.
	DefaultMetadataEndpoint = "http://169.254.169.254"

	defaultMetadataAPIVersion = "2018-02-01"
	defaultMetadataTimeout    = 10 * time.Second
	defaultRetryBudget        = 30 * time.Second
)

type MetadataConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIVersion string `mapstructure:"api_version"`

	// ClientID selects a user-assigned identity. Empty means the
	// system-assigned one.
	ClientID string `mapstructure:"client_id"`

	// Timeout bounds a single metadata request; RetryBudget bounds the
	// whole acquisition including retries.
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryBudget time.Duration `mapstructure:"retry_budget"`
}

// MetadataSource obtains tokens from the platform's instance metadata
// endpoint, i.e. the identity the deployment itself carries. It is the
// sole member of platform-mode chains.
type MetadataSource struct {
	endpoint    string
	apiVersion  string
	clientID    string
	client      *http.Client
	retryBudget time.Duration
}

func NewMetadataSource(cfg MetadataConfig) *MetadataSource {
	s := &MetadataSource{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		apiVersion:  cfg.APIVersion,
		clientID:    cfg.ClientID,
		retryBudget: cfg.RetryBudget,
	}
	if s.endpoint == "" {
		s.endpoint = DefaultMetadataEndpoint
	}
	if s.apiVersion == "" {
		s.apiVersion = defaultMetadataAPIVersion
	}
	if s.retryBudget <= 0 {
		s.retryBudget = defaultRetryBudget
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMetadataTimeout
	}
	s.client = &http.Client{Timeout: timeout}
	return s
}

func (s *MetadataSource) Name() string {
	return "managed-identity"
}

func (s *MetadataSource) Supports(core.Scope) bool {
	return true
}

// metadataTokenResponse mirrors the metadata endpoint's token document.
// Numeric fields arrive as strings in older API versions, so they get
// a tolerant decoder.
type metadataTokenResponse struct {
	AccessToken string        `json:"access_token"`
	ExpiresIn   unixQuantity  `json:"expires_in"`
	ExpiresOn   unixQuantity  `json:"expires_on"`
	TokenType   string        `json:"token_type"`
	Resource    string        `json:"resource"`
}

func (s *MetadataSource) Acquire(ctx context.Context, scope core.Scope) (*core.Token, error) {
	q := url.Values{}
	q.Set("api-version", s.apiVersion)
	q.Set("resource", strings.TrimSuffix(scope.Audience, "/.default"))
	if s.clientID != "" {
		q.Set("client_id", s.clientID)
	}
	reqURL := s.endpoint + "/metadata/identity/oauth2/token?" + q.Encode()

	var res metadataTokenResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Metadata", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("querying instance metadata: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reading metadata response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("metadata endpoint returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusBadRequest:
			// No identity is bound to this instance.
			return backoff.Permanent(core.SourceUnavailableError(
				"metadata endpoint returned %d: %s", resp.StatusCode, summarizeBody(body)))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(core.DeniedError(
				"metadata endpoint returned %d: %s", resp.StatusCode, summarizeBody(body)))
		default:
			return backoff.Permanent(fmt.Errorf(
				"metadata endpoint returned %d: %s", resp.StatusCode, summarizeBody(body)))
		}

		if err := json.Unmarshal(body, &res); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding metadata response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = s.retryBudget
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("acquiring via instance metadata: %w", err)
	}

	if res.AccessToken == "" {
		return nil, fmt.Errorf("metadata endpoint returned no access token")
	}

	expiresAt, err := metadataExpiry(res)
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

// metadataExpiry prefers the absolute expires_on timestamp, then the
// relative expires_in, then the token's own exp claim.
func metadataExpiry(res metadataTokenResponse) (time.Time, error) {
	if t, ok := res.ExpiresOn.AsTime(); ok {
		return t, nil
	}
	if secs, ok := res.ExpiresIn.AsInt(); ok {
		return time.Now().Add(time.Duration(secs) * time.Second), nil
	}
	return tokenExpiry(res.AccessToken)
}

// unixQuantity decodes a JSON field that is a number in some API
// versions and a numeric string in others.
type unixQuantity string

func (u *unixQuantity) UnmarshalJSON(b []byte) error {
	*u = unixQuantity(strings.Trim(string(b), `"`))
	return nil
}

func (u unixQuantity) AsInt() (int64, bool) {
	n, err := strconv.ParseInt(string(u), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (u unixQuantity) AsTime() (time.Time, bool) {
	n, ok := u.AsInt()
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

func summarizeBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
