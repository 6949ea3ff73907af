package native

import (
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultRefreshRate is the display refresh rate Present paces to when no
// window surface paces it.
const DefaultRefreshRate = 60

// PresentedBuffer is the Image of a gpucore.Frame presented by a native
// chain: the back buffer texture and a view a compositor samples.
type PresentedBuffer struct {
	Texture hal.Texture
	View    hal.TextureView
	Format  gputypes.TextureFormat
}

// vsync holds presents to a vertical blank cadence. A present with sync
// interval n returns no earlier than n refresh periods after the previous
// one.
type vsync struct {
	period time.Duration
	last   time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func newVSync(period time.Duration) *vsync {
	return &vsync{period: period, now: time.Now, sleep: time.Sleep}
}

// wait blocks until interval blanks have passed since the previous present
// and returns how long it slept.
func (v *vsync) wait(interval uint32) time.Duration {
	if interval == 0 || v.period <= 0 {
		return 0
	}
	now := v.now()
	due := v.last.Add(time.Duration(interval) * v.period)
	if v.last.IsZero() || !due.After(now) {
		v.last = now
		return 0
	}
	d := due.Sub(now)
	v.sleep(d)
	v.last = due
	return d
}

// reset forgets the previous present.
func (v *vsync) reset() { v.last = time.Time{} }

func refreshPeriod(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}
