package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TemirB/musicnft/internal/config"
)

func newTestBreaker(clock *time.Time) *Breaker {
	b := New(config.Breaker{Threshold: 2, OpenTimeout: time.Second, MaxHalfOpen: 1})
	b.now = func() time.Time { return *clock }
	return b
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)

	require.NoError(t, b.Allow())
	b.Failure()
	require.Equal(t, Closed, b.State())
	b.Failure()
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpenState)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)

	b.Failure()
	b.Success()
	b.Failure()
	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpen(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)
	b.Failure()
	b.Failure()

	clock = clock.Add(time.Second)
	require.NoError(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpenState, "only one trial call in half-open")

	b.Success()
	require.Equal(t, Closed, b.State())
	require.NoError(t, b.Allow())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newTestBreaker(&clock)
	b.Failure()
	b.Failure()

	clock = clock.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	b.Failure()
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpenState)
	require.Equal(t, "open", b.State().String())
}
