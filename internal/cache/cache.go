package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/rob634/rmhtitiler-sub001/internal/audit"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
	"github.com/rob634/rmhtitiler-sub001/internal/metrics"
	"github.com/rob634/rmhtitiler-sub001/internal/scopes"
)

// entry is the cached state for one scope. Its mutex spans the
// staleness check and the acquisition, so at most one caller refreshes
// while the rest wait for the result.
type entry struct {
	mu          sync.Mutex
	token       *core.Token
	fingerprint string
	refreshes   uint64
	lastError   string
}

// Cache hands out valid tokens for registered scopes, acquiring and
// refreshing them through the identity chain as needed. Publishing to
// out-of-process consumers happens inside the refresh critical section,
// so the cache record and the published credential never diverge.
type Cache struct {
	registry   *scopes.Registry
	acquirer   core.Acquirer
	publishers map[string]core.CredentialPublisher
	auditor    core.Auditor
	metrics    *metrics.Collector
	clock      clockwork.Clock
	entries    map[string]*entry
}

var _ core.TokenGetter = (*Cache)(nil)

type Option func(*Cache)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

func WithAuditor(auditor core.Auditor) Option {
	return func(c *Cache) { c.auditor = auditor }
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = collector }
}

// WithPublisher routes refreshed tokens of one scope to a publisher.
func WithPublisher(scopeName string, publisher core.CredentialPublisher) Option {
	return func(c *Cache) { c.publishers[scopeName] = publisher }
}

func New(registry *scopes.Registry, acquirer core.Acquirer, opts ...Option) *Cache {
	c := &Cache{
		registry:   registry,
		acquirer:   acquirer,
		publishers: make(map[string]core.CredentialPublisher),
		auditor:    audit.NewNoopAuditor(),
		clock:      clockwork.NewRealClock(),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, name := range registry.Names() {
		c.entries[name] = &entry{}
	}
	return c
}

// Get returns a token for the scope that is valid right now. A cached
// token inside its refresh window triggers a refresh attempt; if that
// attempt fails while the cached token is still within validity, the
// cached token is served and the failure only logged. A failed refresh
// never overwrites the cached record.
func (c *Cache) Get(ctx context.Context, scopeName string) (*core.Token, error) {
	scope, err := c.registry.Get(scopeName)
	if err != nil {
		return nil, err
	}
	e := c.entries[scopeName]

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != nil && !e.token.NeedsRefresh(c.clock.Now(), scope.RefreshThreshold) {
		return copyToken(e.token), nil
	}
	return c.refreshLocked(ctx, scope, e)
}

func (c *Cache) refreshLocked(ctx context.Context, scope core.Scope, e *entry) (*core.Token, error) {
	logger := log.Ctx(ctx)
	action := core.AuditAcquire
	if e.token != nil {
		action = core.AuditRefresh
	}

	start := c.clock.Now()
	token, acquireErr := c.acquirer.Acquire(ctx, scope)
	elapsed := c.clock.Since(start)

	if c.metrics != nil {
		source := ""
		if token != nil {
			source = token.Source
		}
		c.metrics.ObserveRefresh(scope.Name, source, elapsed, acquireErr)
	}

	var failure error
	if acquireErr != nil {
		failure = acquireErr
		c.audit(core.AuditEntry{
			Action:        action,
			Scope:         scope.Name,
			DurationMS:    elapsed.Milliseconds(),
			CorrelationID: core.CorrelationID(ctx),
			Success:       false,
			Error:         acquireErr.Error(),
		})
	} else {
		fingerprint := audit.Fingerprint(token.Value)
		c.audit(core.AuditEntry{
			Action:        action,
			Scope:         scope.Name,
			Source:        token.Source,
			Fingerprint:   fingerprint,
			ExpiresAt:     token.ExpiresAt,
			DurationMS:    elapsed.Milliseconds(),
			CorrelationID: core.CorrelationID(ctx),
			Success:       true,
		})

		if publisher := c.publishers[scope.Name]; publisher != nil {
			if publishErr := publisher.Publish(scope, token); publishErr != nil {
				failure = fmt.Errorf("publishing credential: %w", publishErr)
				c.audit(core.AuditEntry{
					Action:        core.AuditPublish,
					Scope:         scope.Name,
					Source:        token.Source,
					Fingerprint:   fingerprint,
					CorrelationID: core.CorrelationID(ctx),
					Success:       false,
					Error:         publishErr.Error(),
				})
			} else {
				c.audit(core.AuditEntry{
					Action:        core.AuditPublish,
					Scope:         scope.Name,
					Source:        token.Source,
					Fingerprint:   fingerprint,
					ExpiresAt:     token.ExpiresAt,
					CorrelationID: core.CorrelationID(ctx),
					Success:       true,
				})
			}
		}

		if failure == nil {
			e.token = token
			e.fingerprint = fingerprint
			e.refreshes++
			e.lastError = ""
			if c.metrics != nil {
				c.metrics.SetExpiry(scope.Name, token.ExpiresAt)
			}
			logger.Info().
				Str("scope", scope.Name).
				Str("source", token.Source).
				Str("fingerprint", fingerprint).
				Time("expires_at", token.ExpiresAt).
				Msg("credential refreshed")
			return copyToken(token), nil
		}
	}

	// No usable fresh credential. The previous record stays untouched:
	// it is either still valid and serves as fallback, or the next Get
	// retries the whole sequence.
	e.lastError = failure.Error()

	if e.token != nil && c.clock.Now().Before(e.token.ExpiresAt) {
		logger.Warn().
			Err(failure).
			Str("scope", scope.Name).
			Time("expires_at", e.token.ExpiresAt).
			Msg("refresh failed, serving cached credential still within validity")
		if c.metrics != nil {
			c.metrics.ServedStale(scope.Name)
		}
		c.audit(core.AuditEntry{
			Action:        core.AuditServe,
			Scope:         scope.Name,
			Source:        e.token.Source,
			Fingerprint:   e.fingerprint,
			ExpiresAt:     e.token.ExpiresAt,
			CorrelationID: core.CorrelationID(ctx),
			Success:       true,
			Error:         failure.Error(),
		})
		return copyToken(e.token), nil
	}

	return nil, fmt.Errorf("no valid credential for scope %q: %w", scope.Name, failure)
}

// Warm eagerly resolves the given scopes. Errors are joined so one
// failing scope does not hide the others.
func (c *Cache) Warm(ctx context.Context, scopeNames ...string) error {
	var errs []error
	for _, name := range scopeNames {
		if _, err := c.Get(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("warming %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RefreshDue re-resolves every scope whose token is missing or inside
// its refresh window. The background task calls this so interactive
// requests rarely pay acquisition latency.
func (c *Cache) RefreshDue(ctx context.Context) error {
	var errs []error
	for _, scope := range c.registry.All() {
		e := c.entries[scope.Name]
		e.mu.Lock()
		due := e.token == nil || e.token.NeedsRefresh(c.clock.Now(), scope.RefreshThreshold)
		e.mu.Unlock()
		if !due {
			continue
		}
		if _, err := c.Get(ctx, scope.Name); err != nil {
			errs = append(errs, fmt.Errorf("refreshing %q: %w", scope.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the redacted view of every registered scope.
func (c *Cache) Status() []core.ScopeStatus {
	now := c.clock.Now()
	out := make([]core.ScopeStatus, 0, len(c.entries))
	for _, name := range c.registry.Names() {
		e := c.entries[name]
		e.mu.Lock()
		status := core.ScopeStatus{
			Scope:     name,
			Refreshes: e.refreshes,
			LastError: e.lastError,
		}
		if e.token != nil {
			status.Present = true
			status.Source = e.token.Source
			status.Fingerprint = e.fingerprint
			status.IssuedAt = e.token.IssuedAt
			status.ExpiresAt = e.token.ExpiresAt
			status.ExpiresInSeconds = e.token.TTL(now).Seconds()
		}
		e.mu.Unlock()
		out = append(out, status)
	}
	return out
}

func (c *Cache) audit(entry core.AuditEntry) {
	if entry.Time.IsZero() {
		entry.Time = c.clock.Now()
	}
	if err := c.auditor.Log(entry); err != nil {
		log.Warn().Err(err).Str("scope", entry.Scope).Msg("writing audit entry failed")
	}
}

func copyToken(t *core.Token) *core.Token {
	copied := *t
	return &copied
}
