package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scene-composer-server/modules/common/apperr"
)

type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounter() *memCounter { return &memCounter{counts: map[string]int64{}} }

func (c *memCounter) IncrWithin(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memCounter) Decr(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]--
	return nil
}

func (c *memCounter) Count(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key], nil
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int
	err      error
}

func (l *memLedger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *memLedger) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.balances[userID] += amount
	return l.balances[userID], nil
}

func newService(rng Rand) (*Service, *memLedger, *memCounter) {
	ledger := &memLedger{balances: map[string]int{"u1": 10}}
	counter := newMemCounter()
	svc := NewService(ledger, counter, NewAdService(rng, 0.9, 0), 3, 2)
	svc.now = func() time.Time { return time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC) }
	return svc, ledger, counter
}

func TestWatchAdRewardsUpToDailyLimit(t *testing.T) {
	svc, ledger, _ := newService(fixedRand{0.1})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := svc.WatchAd(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Rewarded)
		assert.Equal(t, 2, res.Credits)
		assert.Equal(t, 10+2*i, res.Balance)
		assert.Equal(t, 3-i, res.AdsRemaining)
	}

	_, err := svc.WatchAd(ctx, "u1")
	require.ErrorIs(t, err, apperr.ErrLimitReached)
	assert.Equal(t, 16, ledger.balances["u1"])

	remaining, err := svc.AdsRemaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestWatchAdSkippedDoesNotCount(t *testing.T) {
	svc, ledger, _ := newService(fixedRand{0.95})
	ctx := context.Background()

	res, err := svc.WatchAd(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Equal(t, 10, res.Balance)
	assert.Equal(t, 3, res.AdsRemaining)

	remaining, err := svc.AdsRemaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
	assert.Equal(t, 10, ledger.balances["u1"])
}

func TestWatchAdCreditFailureRollsBack(t *testing.T) {
	svc, ledger, _ := newService(fixedRand{0})
	ledger.err = errors.New("supabase down")

	_, err := svc.WatchAd(context.Background(), "u1")
	require.Error(t, err)

	remaining, err := svc.AdsRemaining(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestAdCounterIsPerUTCDay(t *testing.T) {
	svc, _, counter := newService(fixedRand{0})
	_, err := svc.WatchAd(context.Background(), "u1")
	require.NoError(t, err)

	_, ok := counter.counts["credits:ads:u1:2026-10-18"]
	assert.True(t, ok)

	svc.now = func() time.Time { return time.Date(2026, 10, 19, 0, 30, 0, 0, time.UTC) }
	remaining, err := svc.AdsRemaining(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestShowRewardedAdRespectsContext(t *testing.T) {
	ads := NewAdService(fixedRand{0}, 0.9, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := ads.ShowRewardedAd(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
