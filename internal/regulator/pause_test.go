package regulator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, cfg PauseConfig, hasOverride bool) *PauseCoordinator {
	t.Helper()
	p, err := NewPauseCoordinator(cfg, hasOverride)
	require.NoError(t, err)
	return p
}

func TestNewPauseCoordinator_Invalid(t *testing.T) {
	_, err := NewPauseCoordinator(PauseConfig{Duration: 0}, false)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPauseCoordinator(PauseConfig{Duration: time.Second, CacheCycles: -1}, false)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "active", ModeActive.String())
	assert.Equal(t, "checking_override", ModeCheckingOverride.String())
	assert.Equal(t, "paused", ModePaused.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestPauseCoordinator_TriggerCondition(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		power float64
		last  float64
		want  action
	}{
		{"below full output", -1000, 99, actionControl},
		{"full output, small surplus", -150, 100, actionControl},
		{"full output at threshold", -200, 100, actionControl},
		{"full output, large surplus", -201, 100, actionPause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestCoordinator(t, defaultPause(), false)
			assert.Equal(t, tt.want, p.evaluate(now, tt.power, tt.last))
		})
	}
}

func TestPauseCoordinator_PauseDeadline(t *testing.T) {
	p := newTestCoordinator(t, PauseConfig{ExcessThreshold: -200, Duration: 5 * time.Second}, false)
	start := time.Now()

	require.Equal(t, actionPause, p.evaluate(start, -500, 100))
	p.enterPause(start)
	assert.Equal(t, ModePaused, p.Mode())
	assert.Equal(t, start.Add(5*time.Second), p.ResumeAt())

	assert.Equal(t, actionHold, p.evaluate(start.Add(4999*time.Millisecond), -500, 0))
	assert.Equal(t, ModePaused, p.Mode())

	assert.Equal(t, actionControl, p.evaluate(start.Add(5*time.Second), -500, 0))
	assert.Equal(t, ModeActive, p.Mode())
	assert.True(t, p.ResumeAt().IsZero())
}

func TestPauseCoordinator_ProbeOutcome(t *testing.T) {
	now := time.Now()

	t.Run("on keeps active and caches", func(t *testing.T) {
		p := newTestCoordinator(t, defaultPause(), true)
		require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
		assert.Equal(t, ModeCheckingOverride, p.Mode())

		// Further ticks are held while the probe is outstanding
		assert.Equal(t, actionHold, p.evaluate(now, -500, 100))

		assert.Equal(t, actionControl, p.probeDone(true, nil))
		assert.Equal(t, ModeActive, p.Mode())
		assert.True(t, p.cache.value)
		assert.Equal(t, 30, p.cache.cyclesRemaining)
	})

	t.Run("off pauses", func(t *testing.T) {
		p := newTestCoordinator(t, defaultPause(), true)
		require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
		assert.Equal(t, actionPause, p.probeDone(false, nil))
	})

	t.Run("failure stays active and is not cached", func(t *testing.T) {
		p := newTestCoordinator(t, defaultPause(), true)
		require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
		assert.Equal(t, actionControl, p.probeDone(false, errors.New("timeout")))
		assert.Equal(t, ModeActive, p.Mode())
		assert.Zero(t, p.cache.cyclesRemaining)

		// Next trigger probes again
		assert.Equal(t, actionProbe, p.evaluate(now, -500, 100))
	})
}

func TestPauseCoordinator_CacheLifetime(t *testing.T) {
	const cycles = 4
	cfg := defaultPause()
	cfg.CacheCycles = cycles
	p := newTestCoordinator(t, cfg, true)
	now := time.Now()

	require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
	p.probeDone(true, nil)

	for i := 1; i < cycles; i++ {
		assert.Equal(t, actionControl, p.evaluate(now, -500, 100), "evaluation %d uses the cache", i)
	}
	assert.Equal(t, actionProbe, p.evaluate(now, -500, 100), "evaluation %d re-probes", cycles)
}

func TestPauseCoordinator_CachedOffPauses(t *testing.T) {
	p := newTestCoordinator(t, defaultPause(), true)
	now := time.Now()

	require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
	require.Equal(t, actionPause, p.probeDone(false, nil))
	p.enterPause(now)

	after := now.Add(time.Minute)
	require.Equal(t, actionControl, p.evaluate(after, -500, 0))

	assert.Equal(t, actionPause, p.evaluate(after, -500, 100), "cached off pauses without a probe")
}

func TestPauseCoordinator_CacheDisabled(t *testing.T) {
	cfg := defaultPause()
	cfg.CacheCycles = 0
	p := newTestCoordinator(t, cfg, true)
	now := time.Now()

	require.Equal(t, actionProbe, p.evaluate(now, -500, 100))
	p.probeDone(true, nil)
	assert.Equal(t, actionProbe, p.evaluate(now, -500, 100))
}

func TestOverrideCache_NeverNegative(t *testing.T) {
	var c OverrideCache
	for range 3 {
		_, ok := c.take()
		assert.False(t, ok)
		assert.Zero(t, c.cyclesRemaining)
	}
}
