package crawl

import (
	"errors"
	"testing"
	"time"
)

func TestPollSucceedsWhenConditionHolds(t *testing.T) {
	calls := 0
	err := Poll(func() (bool, error) {
		calls++
		return calls >= 3, nil
	}, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPollTimesOut(t *testing.T) {
	err := Poll(func() (bool, error) { return false, nil },
		time.Millisecond, 10*time.Millisecond)
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("expected ErrPollTimeout, got %v", err)
	}
}

func TestPollPropagatesCheckError(t *testing.T) {
	boom := errors.New("boom")
	err := Poll(func() (bool, error) { return false, boom },
		time.Millisecond, time.Second)
	if !errors.Is(err, boom) {
		t.Errorf("expected check error, got %v", err)
	}
}

func TestPollChecksImmediately(t *testing.T) {
	start := time.Now()
	if err := Poll(func() (bool, error) { return true, nil },
		time.Second, time.Minute); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("first check should not wait for the interval")
	}
}
