package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rob634/rmhtitiler-sub001/internal/audit"
	"github.com/rob634/rmhtitiler-sub001/internal/config"
	"github.com/rob634/rmhtitiler-sub001/internal/core"
	"github.com/rob634/rmhtitiler-sub001/internal/scopes"
)

var baseTime = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

type fakeAcquirer struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu    sync.Mutex
	calls int
	fail  error

	gate      chan struct{}
	enterOnce sync.Once
	entered   chan struct{}
}

func newFakeAcquirer(clock clockwork.Clock) *fakeAcquirer {
	return &fakeAcquirer{
		clock:   clock,
		ttl:     time.Hour,
		entered: make(chan struct{}),
	}
}

func (f *fakeAcquirer) Acquire(_ context.Context, scope core.Scope) (*core.Token, error) {
	f.enterOnce.Do(func() { close(f.entered) })
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	now := f.clock.Now()
	return &core.Token{
		Scope:     scope.Name,
		Value:     fmt.Sprintf("token-%d", f.calls),
		Source:    "stub",
		IssuedAt:  now,
		ExpiresAt: now.Add(f.ttl),
	}, nil
}

func (f *fakeAcquirer) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeAcquirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	fail      error
}

func (p *fakePublisher) Publish(_ core.Scope, token *core.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.published = append(p.published, token.Value)
	return nil
}

func (p *fakePublisher) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *fakePublisher) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.published) == 0 {
		return ""
	}
	return p.published[len(p.published)-1]
}

func storageOnlyRegistry(t *testing.T) *scopes.Registry {
	t.Helper()
	reg, err := scopes.BuildRegistry(&config.Config{})
	require.NoError(t, err)
	return reg
}

func bothScopesRegistry(t *testing.T) *scopes.Registry {
	t.Helper()
	reg, err := scopes.BuildRegistry(&config.Config{
		Database: &config.DatabaseConfig{Host: "db", User: "u"},
	})
	require.NoError(t, err)
	return reg
}

func TestGetAcquiresOnFirstUse(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	auditor := audit.NewInMemoryAuditor()
	c := New(storageOnlyRegistry(t), acq,
		WithClock(clock), WithAuditor(auditor))

	token, err := c.Get(context.Background(), core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, "token-1", token.Value)
	assert.Equal(t, 1, acq.callCount())

	entries, err := auditor.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.AuditAcquire, entries[0].Action)
	assert.True(t, entries[0].Success)
	assert.NotContains(t, entries[0].Fingerprint, "token-1")
}

func TestGetServesCachedUntilRefreshWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(storageOnlyRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	first, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	// Expiry is in one hour, the refresh window opens five minutes
	// before that.
	clock.Advance(54 * time.Minute)
	cached, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, first.Value, cached.Value)
	assert.Equal(t, 1, acq.callCount())

	clock.Advance(2 * time.Minute)
	refreshed, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, "token-2", refreshed.Value)
	assert.Equal(t, 2, acq.callCount())
}

func TestConcurrentGetsShareOneAcquisition(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	acq.gate = make(chan struct{})
	c := New(storageOnlyRegistry(t), acq, WithClock(clock))

	type result struct {
		value string
		err   error
	}
	results := make(chan result, 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := c.Get(context.Background(), core.ScopeStorage)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{value: token.Value}
		}()
	}

	// One goroutine is inside the acquisition; give the rest a moment
	// to queue on the scope lock before releasing it.
	<-acq.entered
	time.Sleep(50 * time.Millisecond)
	close(acq.gate)
	wg.Wait()
	close(results)

	for res := range results {
		require.NoError(t, res.err)
		assert.Equal(t, "token-1", res.value)
	}
	assert.Equal(t, 1, acq.callCount(), "all callers must share a single acquisition")
}

func TestStaleTokenServedWhileStillValid(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	auditor := audit.NewInMemoryAuditor()
	c := New(storageOnlyRegistry(t), acq,
		WithClock(clock), WithAuditor(auditor))

	ctx := context.Background()
	first, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	// Inside the refresh window, before hard expiry.
	clock.Advance(56 * time.Minute)
	acq.setFail(errors.New("identity endpoint unreachable"))

	stale, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err, "a still-valid token must be served despite the failed refresh")
	assert.Equal(t, first.Value, stale.Value)
	assert.Equal(t, 2, acq.callCount())

	status := c.Status()
	require.Len(t, status, 1)
	assert.Contains(t, status[0].LastError, "unreachable")
	assert.Equal(t, uint64(1), status[0].Refreshes)

	entries, err := auditor.GetRecent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.AuditServe, entries[0].Action)
}

func TestExpiredTokenRefusedWhenRefreshFails(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(storageOnlyRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	_, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)
	acq.setFail(errors.New("identity endpoint unreachable"))

	_, err = c.Get(ctx, core.ScopeStorage)
	require.Error(t, err, "an expired token must never be handed out")
	assert.Contains(t, err.Error(), core.ScopeStorage)

	// The failure left the record alone; recovery is a plain retry.
	acq.setFail(nil)
	recovered, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, "token-3", recovered.Value)
}

func TestGetNeverReturnsExpiredToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(storageOnlyRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	_, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	token, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.True(t, clock.Now().Before(token.ExpiresAt),
		"returned token expired: %v <= now %v", token.ExpiresAt, clock.Now())
}

func TestPublishHappensInsideRefresh(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	publisher := &fakePublisher{}
	c := New(storageOnlyRegistry(t), acq,
		WithClock(clock), WithPublisher(core.ScopeStorage, publisher))

	ctx := context.Background()
	token, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, token.Value, publisher.last())

	// Cache hits must not republish.
	_, err = c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Len(t, publisher.published, 1)

	clock.Advance(56 * time.Minute)
	refreshed, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, refreshed.Value, publisher.last())
	assert.Len(t, publisher.published, 2)
}

func TestPublishFailureKeepsPreviousRecord(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	publisher := &fakePublisher{}
	c := New(storageOnlyRegistry(t), acq,
		WithClock(clock), WithPublisher(core.ScopeStorage, publisher))

	ctx := context.Background()
	first, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	clock.Advance(56 * time.Minute)
	publisher.setFail(errors.New("environment rejected update"))

	// Acquisition succeeded but the new token never became visible, so
	// the still-published previous token is what callers get.
	stale, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, first.Value, stale.Value)
	assert.Equal(t, first.Value, publisher.last())

	status := c.Status()
	require.Len(t, status, 1)
	assert.Equal(t, uint64(1), status[0].Refreshes)
	assert.Contains(t, status[0].LastError, "publishing")

	// Once publishing heals, the very next call repairs everything.
	publisher.setFail(nil)
	healed, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, "token-3", healed.Value)
	assert.Equal(t, "token-3", publisher.last())

	// Past hard expiry a publish failure becomes a caller-visible error.
	clock.Advance(57 * time.Minute)
	publisher.setFail(errors.New("environment rejected update"))
	clock.Advance(5 * time.Minute)
	_, err = c.Get(ctx, core.ScopeStorage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing")
}

func TestWarmJoinsFailures(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(bothScopesRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	require.NoError(t, c.Warm(ctx, core.ScopeStorage, core.ScopeDatabase))
	assert.Equal(t, 2, acq.callCount())

	clock.Advance(2 * time.Hour)
	acq.setFail(errors.New("identity endpoint unreachable"))
	err := c.Warm(ctx, core.ScopeStorage, core.ScopeDatabase)
	require.Error(t, err)
	assert.Contains(t, err.Error(), core.ScopeStorage)
	assert.Contains(t, err.Error(), core.ScopeDatabase)
}

func TestRefreshDueOnlyTouchesDueScopes(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(bothScopesRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	_, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	// Storage is fresh; only the never-acquired database scope is due.
	require.NoError(t, c.RefreshDue(ctx))
	assert.Equal(t, 2, acq.callCount())

	require.NoError(t, c.RefreshDue(ctx))
	assert.Equal(t, 2, acq.callCount(), "fresh scopes must not be re-acquired")

	clock.Advance(56 * time.Minute)
	require.NoError(t, c.RefreshDue(ctx))
	assert.Equal(t, 4, acq.callCount())
}

func TestGetUnknownScope(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	c := New(storageOnlyRegistry(t), newFakeAcquirer(clock), WithClock(clock))

	_, err := c.Get(context.Background(), "never-registered")
	assert.ErrorIs(t, err, core.ErrUnknownScope)
}

func TestStatusRedactsTokenValues(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(bothScopesRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	token, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	status := c.Status()
	require.Len(t, status, 2)

	var storage, database core.ScopeStatus
	for _, s := range status {
		switch s.Scope {
		case core.ScopeStorage:
			storage = s
		case core.ScopeDatabase:
			database = s
		}
	}

	assert.True(t, storage.Present)
	assert.Equal(t, "stub", storage.Source)
	assert.NotEmpty(t, storage.Fingerprint)
	assert.False(t, strings.Contains(storage.Fingerprint, token.Value))
	assert.InDelta(t, time.Hour.Seconds(), storage.ExpiresInSeconds, 1)

	assert.False(t, database.Present)
	assert.Empty(t, database.Fingerprint)
}

func TestAuditEntriesCarryCorrelationID(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	auditor := audit.NewInMemoryAuditor()
	c := New(storageOnlyRegistry(t), acq,
		WithClock(clock), WithAuditor(auditor))

	ctx := core.WithCorrelationID(context.Background(), "req-42")
	_, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)

	entries, err := auditor.GetRecent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-42", entries[0].CorrelationID)
}

func TestReturnedTokensAreCopies(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	acq := newFakeAcquirer(clock)
	c := New(storageOnlyRegistry(t), acq, WithClock(clock))

	ctx := context.Background()
	first, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	first.Value = "mutated"

	second, err := c.Get(ctx, core.ScopeStorage)
	require.NoError(t, err)
	assert.Equal(t, "token-1", second.Value)
}
