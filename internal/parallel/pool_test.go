package parallel

import (
	"sync/atomic"
	"testing"
)

// TestExecuteAll tests that every function runs before ExecuteAll returns.
func TestExecuteAll(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var n atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { n.Add(1) }
	}
	p.ExecuteAll(work)
	if got := n.Load(); got != 100 {
		t.Errorf("ran %d functions, want 100", got)
	}
}

// TestBands tests that bands cover the range exactly once.
func TestBands(t *testing.T) {
	p := NewWorkerPool(3)
	defer p.Close()

	tests := []struct {
		name           string
		lo, hi, minRow int
		wantBands      int
	}{
		{"split", 10, 110, 8, 3},
		{"short range", 0, 10, 8, 1},
		{"exact", 0, 6, 2, 3},
		{"empty", 5, 5, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			covered := make([]atomic.Int32, tt.hi)
			var bands atomic.Int32
			p.Bands(tt.lo, tt.hi, tt.minRow, func(lo, hi int) {
				bands.Add(1)
				for y := lo; y < hi; y++ {
					covered[y].Add(1)
				}
			})
			if int(bands.Load()) != tt.wantBands {
				t.Errorf("bands = %d, want %d", bands.Load(), tt.wantBands)
			}
			for y := tt.lo; y < tt.hi; y++ {
				if c := covered[y].Load(); c != 1 {
					t.Errorf("row %d covered %d times, want 1", y, c)
				}
			}
		})
	}
}

// TestClose tests that a closed pool still runs work inline.
func TestClose(t *testing.T) {
	p := NewWorkerPool(0)
	if p.Workers() < 1 {
		t.Fatalf("Workers() = %d, want at least 1", p.Workers())
	}
	p.Close()
	p.Close()

	ran := false
	p.ExecuteAll([]func(){func() { ran = true }})
	if !ran {
		t.Error("ExecuteAll after Close did not run")
	}
}
