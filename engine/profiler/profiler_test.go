package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/srender/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickReportsOncePerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	p := NewProfiler(WithInterval(time.Second), WithClock(clock.now))

	// 50 steps of 20ms land exactly on the interval
	const step = 20 * time.Millisecond
	for range 49 {
		clock.t = clock.t.Add(step)
		_, ok := p.Tick(renderer.FrameStats{})
		require.False(t, ok)
	}
	clock.t = clock.t.Add(step)
	r, ok := p.Tick(renderer.FrameStats{FenceValue: 50, Skipped: 3, Drawn: 12})
	require.True(t, ok)
	assert.InDelta(t, 50, r.FPS, 0.01)
	assert.Equal(t, step, r.FrameTime)
	assert.Equal(t, uint64(50), r.FenceValue)
	assert.Equal(t, uint64(3), r.Skipped)
	assert.Equal(t, 12, r.Drawn)
	assert.Positive(t, r.SysMB)

	clock.t = clock.t.Add(2 * time.Second)
	r, ok = p.Tick(renderer.FrameStats{Skipped: 5})
	require.True(t, ok)
	assert.Equal(t, uint64(2), r.Skipped, "skips are counted per interval")
	assert.InDelta(t, 0.5, r.FPS, 0.01)
}

func TestWithIntervalIgnoresNonPositive(t *testing.T) {
	p := NewProfiler(WithInterval(0))
	assert.Equal(t, time.Second, p.updateInterval)
}
