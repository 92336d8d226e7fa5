package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}

	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("clock time %v outside [%v, %v]", now, before, after)
	}
}

func TestMockClock_NowAndAdvance(t *testing.T) {
	fixed := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &MockClock{CurrentTime: fixed}

	if !clock.Now().Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, clock.Now())
	}
	clock.Advance(90 * time.Second)
	if got := Since(clock, fixed); got != 90*time.Second {
		t.Errorf("expected 90s elapsed, got %v", got)
	}
}

func TestMockClock_ConcurrentAdvance(t *testing.T) {
	clock := &MockClock{CurrentTime: time.Unix(0, 0)}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Advance(time.Millisecond)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()
	if got := clock.Now(); !got.Equal(time.Unix(1, 0)) {
		t.Errorf("expected 1s after epoch, got %v", got)
	}
}
