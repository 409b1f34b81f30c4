package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireFailsFastWhenHeld(t *testing.T) {
	m := NewManager()
	lease, err := m.Acquire(context.Background(), "dev", "run-a", Options{})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = m.Acquire(context.Background(), "dev", "run-b", Options{})
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected held error, got %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) || held.Holder != "run-a" {
		t.Fatalf("expected holder run-a surfaced, got %v", err)
	}

	m.Release(lease)
	if _, err := m.Acquire(context.Background(), "dev", "run-b", Options{}); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	m := NewManager()
	lease, err := m.Acquire(context.Background(), "dev", "run-a", Options{})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), "dev", "run-b", Options{Wait: true, WaitTimeout: 2 * time.Second})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Release(lease)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}

func TestAcquireWaitTimesOut(t *testing.T) {
	m := NewManager()
	if _, err := m.Acquire(context.Background(), "dev", "run-a", Options{}); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	_, err := m.Acquire(context.Background(), "dev", "run-b", Options{Wait: true, WaitTimeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected held error after wait timeout, got %v", err)
	}
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	m := NewManager()
	stale, err := m.Acquire(context.Background(), "dev", "run-a", Options{TTL: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	lease, err := m.Acquire(context.Background(), "dev", "run-b", Options{})
	if err != nil {
		t.Fatalf("takeover after expiry: %v", err)
	}
	if lease.Holder != "run-b" {
		t.Fatalf("unexpected holder %q", lease.Holder)
	}

	// The stale lease must not free the new owner's lock.
	m.Release(stale)
	if holder, ok := m.Holder("dev"); !ok || holder != "run-b" {
		t.Fatalf("stale release stomped new owner: %q %v", holder, ok)
	}
}

func TestIndependentEnvironmentsAcquireConcurrently(t *testing.T) {
	m := NewManager()
	if _, err := m.Acquire(context.Background(), "dev", "run-a", Options{}); err != nil {
		t.Fatalf("dev acquire: %v", err)
	}
	if _, err := m.Acquire(context.Background(), "prod", "run-b", Options{}); err != nil {
		t.Fatalf("prod acquire must not block on dev: %v", err)
	}
}

func TestNoConcurrentHoldersUnderContention(t *testing.T) {
	m := NewManager()
	var inside atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), "dev", "runner", Options{Wait: true, WaitTimeout: 5 * time.Second})
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if inside.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			m.Release(lease)
		}()
	}
	wg.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("%d overlapping critical sections", overlaps.Load())
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	m := NewManager()
	if _, err := m.Acquire(context.Background(), "dev", "run-a", Options{}); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := m.Acquire(ctx, "dev", "run-b", Options{Wait: true, WaitTimeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
