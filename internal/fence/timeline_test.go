package fence

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/swapframe/backend/sim"
	"github.com/gogpu/swapframe/gpucore"
)

func newTimeline(t *testing.T, timeout time.Duration, opts ...sim.Option) (*Timeline, *sim.Device) {
	t.Helper()
	dev := sim.New(opts...)
	t.Cleanup(dev.Destroy)
	q, err := dev.CreateCommandQueue()
	if err != nil {
		t.Fatalf("CreateCommandQueue: %v", err)
	}
	tl, err := New(dev, q, timeout, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(tl.Destroy)
	return tl, dev
}

// TestSignalMonotonic tests that tokens increase by one per signal.
func TestSignalMonotonic(t *testing.T) {
	tl, _ := newTimeline(t, time.Second)
	for want := Token(1); want <= 5; want++ {
		tok, err := tl.Signal()
		if err != nil {
			t.Fatalf("Signal: %v", err)
		}
		if tok != want {
			t.Errorf("Signal() = %d, want %d", tok, want)
		}
		if tl.Last() != want {
			t.Errorf("Last() = %d, want %d", tl.Last(), want)
		}
	}
}

// TestZeroTokenComplete tests that the zero token never blocks.
func TestZeroTokenComplete(t *testing.T) {
	tl, _ := newTimeline(t, time.Second, sim.WithPaused())
	if !tl.Reached(0) {
		t.Error("Reached(0) = false, want true")
	}
	if err := tl.Wait(0); err != nil {
		t.Errorf("Wait(0) = %v, want nil", err)
	}
	if tl.BlockingWaits() != 0 {
		t.Errorf("BlockingWaits() = %d, want 0", tl.BlockingWaits())
	}
}

// TestWaitBlocksUntilReached tests a wait on a paused GPU returns once the
// GPU resumes.
func TestWaitBlocksUntilReached(t *testing.T) {
	tl, dev := newTimeline(t, 0, sim.WithPaused())
	tok, err := tl.Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if tl.Reached(tok) {
		t.Fatal("Reached before GPU ran")
	}

	time.AfterFunc(20*time.Millisecond, dev.Resume)
	if err := tl.Wait(tok); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !tl.Reached(tok) {
		t.Error("Reached after Wait = false")
	}
	if tl.BlockingWaits() != 1 {
		t.Errorf("BlockingWaits() = %d, want 1", tl.BlockingWaits())
	}
}

// TestWaitTimeoutIsHang tests that an expired wait reports a hung device.
func TestWaitTimeoutIsHang(t *testing.T) {
	tl, _ := newTimeline(t, 10*time.Millisecond, sim.WithPaused())
	tok, err := tl.Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	err = tl.Wait(tok)
	if !errors.Is(err, gpucore.ErrDeviceHung) {
		t.Errorf("Wait() = %v, want ErrDeviceHung", err)
	}
}

// TestWaitBeyondLast tests that waiting for an unsignaled value fails fast.
func TestWaitBeyondLast(t *testing.T) {
	tl, _ := newTimeline(t, time.Second)
	err := tl.Wait(7)
	if !errors.Is(err, gpucore.ErrInvalidArgument) {
		t.Errorf("Wait(7) = %v, want ErrInvalidArgument", err)
	}
}

// TestDrain tests that Completed equals Last after a drain.
func TestDrain(t *testing.T) {
	tl, _ := newTimeline(t, time.Second, sim.WithLatency(time.Millisecond))
	for i := 0; i < 3; i++ {
		if _, err := tl.Signal(); err != nil {
			t.Fatalf("Signal: %v", err)
		}
	}
	if err := tl.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got, want := tl.Completed(), uint64(tl.Last()); got != want {
		t.Errorf("Completed() = %d, want %d", got, want)
	}
	if tl.Last() != 4 {
		t.Errorf("Last() = %d, want 4", tl.Last())
	}
}

// TestDeviceLost tests that a lost device surfaces through Wait and Signal.
func TestDeviceLost(t *testing.T) {
	tl, dev := newTimeline(t, 0, sim.WithPaused())
	tok, err := tl.Signal()
	if err != nil {
		t.Fatalf("Signal: %v", err)
	}
	dev.Lose()
	if err := tl.Wait(tok); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Wait() = %v, want ErrDeviceLost", err)
	}
	if _, err := tl.Signal(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Signal() = %v, want ErrDeviceLost", err)
	}
	if tl.Last() != tok {
		t.Errorf("Last() = %d after failed signal, want %d", tl.Last(), tok)
	}
}
