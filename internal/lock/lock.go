// Package lock serializes reconciliation per target environment.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrHeld reports that another run holds the environment lock. Matchable
// with errors.Is against HeldError values.
var ErrHeld = errors.New("lock: held")

// HeldError carries the blocking holder for diagnostics.
type HeldError struct {
	Environment string
	Holder      string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("lock: environment %s held by %s", e.Environment, e.Holder)
}

func (e *HeldError) Unwrap() error { return ErrHeld }

// Lease is proof of lock ownership for one environment.
type Lease struct {
	Environment string
	Holder      string
	AcquiredAt  time.Time
}

// Options control acquisition behavior.
type Options struct {
	// Wait blocks up to WaitTimeout for the current holder to release;
	// otherwise acquisition fails fast with a HeldError.
	Wait        bool
	WaitTimeout time.Duration

	// TTL guards against crashed holders: an expired lease is treated as
	// free by the next acquirer.
	TTL time.Duration
}

type liveLease struct {
	Lease
	expiresAt time.Time
	released  chan struct{}
}

// Manager owns at most one live lease per environment. Independent
// environments acquire concurrently.
type Manager struct {
	mu     sync.Mutex
	leases map[string]*liveLease
}

func NewManager() *Manager {
	return &Manager{leases: make(map[string]*liveLease)}
}

// Acquire returns a lease for environment or fails per opts. It never
// grants two concurrent leases for the same environment.
func (m *Manager) Acquire(ctx context.Context, environment, holder string, opts Options) (Lease, error) {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	var waitDeadline time.Time
	if opts.Wait {
		timeout := opts.WaitTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		waitDeadline = time.Now().Add(timeout)
	}

	for {
		m.mu.Lock()
		cur := m.leases[environment]
		if cur == nil || time.Now().After(cur.expiresAt) {
			lease := &liveLease{
				Lease: Lease{
					Environment: environment,
					Holder:      holder,
					AcquiredAt:  time.Now(),
				},
				expiresAt: time.Now().Add(opts.TTL),
				released:  make(chan struct{}),
			}
			m.leases[environment] = lease
			m.mu.Unlock()
			return lease.Lease, nil
		}
		released := cur.released
		blocking := cur.Holder
		expiresAt := cur.expiresAt
		m.mu.Unlock()

		if !opts.Wait {
			return Lease{}, &HeldError{Environment: environment, Holder: blocking}
		}

		// Wake on release, holder expiry, wait timeout, or cancellation.
		wake := expiresAt
		if waitDeadline.Before(wake) {
			wake = waitDeadline
		}
		timer := time.NewTimer(time.Until(wake))
		select {
		case <-released:
			timer.Stop()
		case <-timer.C:
			if !time.Now().Before(waitDeadline) {
				return Lease{}, fmt.Errorf("lock: wait timeout: %w",
					&HeldError{Environment: environment, Holder: blocking})
			}
		case <-ctx.Done():
			timer.Stop()
			return Lease{}, ctx.Err()
		}
	}
}

// Release frees the environment when the lease still owns it. Stale leases
// from an expired takeover are ignored rather than stomping the new owner.
func (m *Manager) Release(lease Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.leases[lease.Environment]
	if cur == nil {
		return
	}
	if cur.Holder != lease.Holder || !cur.AcquiredAt.Equal(lease.AcquiredAt) {
		return
	}
	close(cur.released)
	delete(m.leases, lease.Environment)
}

// Holder reports the live holder for an environment, if any.
func (m *Manager) Holder(environment string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.leases[environment]
	if cur == nil || time.Now().After(cur.expiresAt) {
		return "", false
	}
	return cur.Holder, true
}
