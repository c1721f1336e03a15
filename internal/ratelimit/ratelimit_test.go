package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time explicitly.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestAdmitBurstThenThrottle(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	for i := 0; i < 60; i++ {
		if d := c.Admit("tenant-a", 60); !d.Ok {
			t.Fatalf("admit %d throttled unexpectedly", i+1)
		}
	}
	d := c.Admit("tenant-a", 60)
	if d.Ok {
		t.Fatal("61st admit should throttle")
	}
	if d.RetryAfter != 1 {
		t.Errorf("retry_after = %d, want 1", d.RetryAfter)
	}
}

func TestAdmitPartialRefill(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	for i := 0; i < 60; i++ {
		c.Admit("tenant-a", 60)
	}
	clock.Advance(30 * time.Second)

	// 30 seconds at 1 token/s refills exactly 30 tokens.
	admitted := 0
	for i := 0; i < 40; i++ {
		if c.Admit("tenant-a", 60).Ok {
			admitted++
		}
	}
	if admitted != 30 {
		t.Errorf("admitted %d after 30s refill, want 30", admitted)
	}
}

func TestLevelNeverExceedsCapacity(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	c.Admit("tenant-a", 60)
	clock.Advance(time.Hour)
	if lvl := c.Level("tenant-a", 60); lvl != 60 {
		t.Errorf("level = %v, want capped at 60", lvl)
	}
}

func TestLevelAfterAdmissions(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.Admit("tenant-a", 60)
	}
	lvl := c.Level("tenant-a", 60)
	if lvl < 0 || lvl > 60 {
		t.Fatalf("level %v out of [0,60]", lvl)
	}
	if lvl != 50 {
		t.Errorf("level = %v, want 50", lvl)
	}
}

func TestAdmitRetryAfterLowRate(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	// Capacity 6 refills at 0.1 tokens/s; an empty bucket needs 10s per token.
	for i := 0; i < 6; i++ {
		c.Admit("tenant-b", 6)
	}
	d := c.Admit("tenant-b", 6)
	if d.Ok {
		t.Fatal("expected throttle")
	}
	if d.RetryAfter != 10 {
		t.Errorf("retry_after = %d, want 10", d.RetryAfter)
	}
}

func TestAdmitTenantsIndependent(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	for i := 0; i < 60; i++ {
		c.Admit("tenant-a", 60)
	}
	if d := c.Admit("tenant-a", 60); d.Ok {
		t.Fatal("tenant-a should be exhausted")
	}
	if d := c.Admit("tenant-b", 60); !d.Ok {
		t.Error("tenant-b should not be throttled by tenant-a exhaustion")
	}
}

func TestAdmitCapacityChangeAdopted(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	for i := 0; i < 5; i++ {
		c.Admit("tenant-a", 5)
	}
	if d := c.Admit("tenant-a", 5); d.Ok {
		t.Fatal("expected throttle at old capacity")
	}
	clock.Advance(time.Minute)
	admitted := 0
	for i := 0; i < 10; i++ {
		if c.Admit("tenant-a", 10).Ok {
			admitted++
		}
	}
	if admitted != 10 {
		t.Errorf("admitted %d at new capacity, want 10", admitted)
	}
}

func TestAdmitConcurrent(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Admit("tenant-a", 60).Ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 60 {
		t.Errorf("admitted %d of 100 concurrent, want exactly 60", admitted)
	}
}
