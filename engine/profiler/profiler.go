package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/srender/common"
	"github.com/Carmen-Shannon/srender/engine/renderer"
)

// Report is one interval of frame and memory statistics.
type Report struct {
	FPS float64
	// FrameTime is the mean time between ticks.
	FrameTime time.Duration

	HeapMB      float64
	SysMB       float64
	AllocRateMB float64
	GCCount     uint32
	// LastPause and MaxPause are GC pauses, MaxPause over the interval.
	LastPause time.Duration
	MaxPause  time.Duration

	// FenceValue is the last direct fence value signalled.
	FenceValue uint64
	// Skipped counts frames skipped during the interval for lack of command allocators.
	Skipped uint64
	Drawn   int
	Culled  int
	Skinned int
}

// Profiler tracks frame rate, memory and renderer statistics and logs them at a fixed interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	lastSkipped    uint64

	now func() time.Time
}

// ProfilerOption configures a Profiler.
type ProfilerOption func(p *Profiler)

// WithInterval sets how often Tick reports. Defaults to 1 second.
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a new Profiler. The first interval starts now.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick should be called once per rendered frame. When the interval has elapsed it reads the
// runtime memory statistics, logs a report at info level and starts a new interval.
//
// Parameters:
//   - stats: the renderer statistics of the frame just rendered
//
// Returns:
//   - Report: the report
//   - bool: true if an interval completed on this tick
func (p *Profiler) Tick(stats renderer.FrameStats) (Report, bool) {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Report{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	// TotalAlloc only grows, so its delta is the allocation churn of the interval.
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r := Report{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		FrameTime:   elapsed / time.Duration(p.frameCount),
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:       float64(p.memStats.Sys) / 1024 / 1024,
		AllocRateMB: float64(allocDelta) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
		FenceValue:  stats.FenceValue,
		Skipped:     stats.Skipped - min(p.lastSkipped, stats.Skipped),
		Drawn:       stats.Drawn,
		Culled:      stats.Culled,
		Skinned:     stats.Skinned,
	}

	if gcCount := p.memStats.NumGC; gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		r.LastPause = time.Duration(p.memStats.PauseNs[(gcCount-1)%256])
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			r.MaxPause = max(r.MaxPause, time.Duration(p.memStats.PauseNs[i%256]))
		}
	}

	common.Logger().Info("profile",
		"fps", r.FPS,
		"frame_time", r.FrameTime,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"gc_last", r.LastPause,
		"gc_max", r.MaxPause,
		"sys_mb", r.SysMB,
		"fence", r.FenceValue,
		"skipped", r.Skipped,
		"drawn", r.Drawn,
		"culled", r.Culled,
		"skinned", r.Skinned,
	)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.lastSkipped = stats.Skipped
	return r, true
}
