// Package host drives a swapframe renderer the way a UI host does: a
// periodic tick that renders and size notifications that resize.
//
// A Loop serializes both onto the goroutine that calls Run, so the target
// never sees concurrent Render and OnResize calls.
package host

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/swapframe"
	"github.com/gogpu/swapframe/internal/logging"
)

// DefaultInterval is the tick period used when WithInterval is not given.
const DefaultInterval = 16 * time.Millisecond

// ErrNilTarget is returned by Run when the loop has no target.
var ErrNilTarget = errors.New("host: nil target")

// Target is what a Loop drives. *swapframe.Renderer implements it.
type Target interface {
	Render() error
	OnResize(width, height uint32) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithInterval sets the tick period. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) {
		l.log = logging.Or(log)
	}
}

// WithFrameLimit stops Run after n rendered frames. Zero means no limit.
func WithFrameLimit(n uint64) Option {
	return func(l *Loop) {
		l.limit = n
	}
}

type size struct {
	width, height uint32
}

// Loop ticks a Target and forwards size changes to it.
type Loop struct {
	target   Target
	interval time.Duration
	limit    uint64
	log      *slog.Logger

	mu      sync.Mutex
	pending *size

	frames  uint64
	resizes uint64
	errs    uint64
}

// New returns a loop driving t.
func New(t Target, opts ...Option) *Loop {
	l := &Loop{
		target:   t,
		interval: DefaultInterval,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SizeChanged queues a resize to the given panel size, rounded up to whole
// pixels. A later call replaces an earlier one that has not been applied.
// Sizes with zero or negative area are dropped.
//
// SizeChanged is safe to call from any goroutine.
func (l *Loop) SizeChanged(width, height float64) {
	w, h, ok := pixels(width, height)
	if !ok {
		l.log.Debug("host: ignoring empty size", "width", width, "height", height)
		return
	}
	l.mu.Lock()
	l.pending = &size{width: w, height: h}
	l.mu.Unlock()
}

func pixels(width, height float64) (uint32, uint32, bool) {
	if !(width > 0) || !(height > 0) {
		return 0, 0, false
	}
	w, h := math.Ceil(width), math.Ceil(height)
	if w > math.MaxUint32 || h > math.MaxUint32 {
		return 0, 0, false
	}
	return uint32(w), uint32(h), true
}

func (l *Loop) takePending() (size, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return size{}, false
	}
	s := *l.pending
	l.pending = nil
	return s, true
}

// Frames returns the number of successful Render calls.
func (l *Loop) Frames() uint64 { return l.frames }

// Resizes returns the number of successful OnResize calls.
func (l *Loop) Resizes() uint64 { return l.resizes }

// Errors returns the number of non-fatal errors logged.
func (l *Loop) Errors() uint64 { return l.errs }

// Run ticks until ctx is done, the frame limit is reached, or the target
// returns a fatal error. It returns nil on the frame limit, ctx.Err() on
// cancellation and the fatal error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if l.target == nil {
		return ErrNilTarget
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Info("host: loop started", "interval", l.interval, "limit", l.limit)
	for {
		if err := l.Tick(); err != nil {
			return err
		}
		if l.limit > 0 && l.frames >= l.limit {
			l.log.Info("host: frame limit reached", "frames", l.frames)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick applies a pending resize and renders one frame. It returns only
// fatal errors; others are logged and counted.
func (l *Loop) Tick() error {
	if s, ok := l.takePending(); ok {
		if err := l.target.OnResize(s.width, s.height); err != nil {
			if swapframe.IsFatal(err) {
				l.log.Error("host: resize failed", "width", s.width, "height", s.height, "err", err)
				return err
			}
			l.errs++
			l.log.Warn("host: resize rejected", "width", s.width, "height", s.height, "err", err)
		} else {
			l.resizes++
		}
	}

	if err := l.target.Render(); err != nil {
		if swapframe.IsFatal(err) {
			l.log.Error("host: render failed", "frame", l.frames, "err", err)
			return err
		}
		l.errs++
		l.log.Warn("host: render error", "frame", l.frames, "err", err)
		return nil
	}
	l.frames++
	return nil
}
