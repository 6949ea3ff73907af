package cache

import (
	"errors"
	"sync"
	"testing"
)

func value(v int) func() (int, error) {
	return func() (int, error) { return v, nil }
}

// TestGetOrCreateCounters tests storage and the hit and miss counters.
func TestGetOrCreateCounters(t *testing.T) {
	c := New[string, int](0)
	if v, err := c.GetOrCreate("a", value(1)); err != nil || v != 1 {
		t.Fatalf("GetOrCreate(a) = %d, %v, want 1, nil", v, err)
	}
	if v, err := c.GetOrCreate("a", value(2)); err != nil || v != 1 {
		t.Errorf("GetOrCreate(a) again = %d, %v, want cached 1, nil", v, err)
	}
	s := c.Stats()
	if s.Len != 1 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v, want Len 1, Hits 1, Misses 1", s)
	}
}

// TestEviction tests that the least recently used entry goes first.
func TestEviction(t *testing.T) {
	c := New[int, int](2)
	c.GetOrCreate(1, value(1))
	c.GetOrCreate(2, value(2))
	c.GetOrCreate(1, value(1))
	c.GetOrCreate(3, value(3))

	if s := c.Stats(); s.Len != 2 || s.Capacity != 2 {
		t.Fatalf("Stats() = %+v, want Len 2, Capacity 2", s)
	}
	for _, k := range []int{1, 3} {
		if v, _ := c.GetOrCreate(k, value(-1)); v != k {
			t.Errorf("entry %d = %d, want kept", k, v)
		}
	}
	if v, _ := c.GetOrCreate(2, value(-1)); v != -1 {
		t.Errorf("entry 2 = %d, want evicted and recreated", v)
	}
}

// TestGetOrCreate tests that values are created once and errors are not
// cached.
func TestGetOrCreate(t *testing.T) {
	c := New[string, int](4)
	errBoom := errors.New("boom")

	if _, err := c.GetOrCreate("k", func() (int, error) { return 0, errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("GetOrCreate error = %v, want %v", err, errBoom)
	}
	if n := c.Stats().Len; n != 0 {
		t.Errorf("Len after failed create = %d, want 0", n)
	}

	var calls int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCreate("k", func() (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 42, nil
			})
			if err != nil || v != 42 {
				t.Errorf("GetOrCreate = %d, %v, want 42, nil", v, err)
			}
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}
