// Package paralock coordinates paragraph editing through short-lived
// leases. A lease is granted on acquire, refreshed by re-acquiring, and
// consumed by a successful save. Expiry is lazy: nothing runs in the
// background, expired rows simply stop counting and get purged on the
// next acquire.
package paralock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"boardroom/api/internal/store"
)

// Store is the persistence surface the manager needs.
type Store interface {
	AcquireParagraphLock(ctx context.Context, paragraphID, holderID string, ttl time.Duration) (bool, error)
	GetParagraphLock(ctx context.Context, paragraphID string, ttl time.Duration) (store.ParagraphLock, error)
	ReleaseParagraphLock(ctx context.Context, paragraphID, holderID string) (bool, error)
	SaveParagraphWithLock(ctx context.Context, paragraphID, holderID, content string, ttl time.Duration) (bool, error)
	GetParagraph(ctx context.Context, paragraphID string) (store.Paragraph, error)
}

// Manager enforces single-writer paragraph editing.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(s Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{store: s, ttl: ttl}
}

// TTL returns the lease duration.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// AcquireResult reports the outcome of an acquire attempt. When Granted is
// false, HeldBy names the current holder.
type AcquireResult struct {
	Granted   bool
	HeldBy    string
	HeldByID  string
	ExpiresAt time.Time
}

// SaveResult reports the outcome of a save attempt. A save rejected for a
// lost lease carries the current holder if someone else took over.
type SaveResult struct {
	Saved     bool
	HeldBy    string
	HeldByID  string
	Paragraph store.Paragraph
}

// Acquire grants the caller the lease on a paragraph, or reports who holds
// it. Re-acquiring an own lease refreshes its activity stamp, which is how
// an editor keeps a long edit alive.
func (m *Manager) Acquire(ctx context.Context, paragraphID, holderID string) (AcquireResult, error) {
	if _, err := m.store.GetParagraph(ctx, paragraphID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AcquireResult{}, ErrParagraphNotFound
		}
		return AcquireResult{}, fmt.Errorf("lookup paragraph: %w", err)
	}

	granted, err := m.store.AcquireParagraphLock(ctx, paragraphID, holderID, m.ttl)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("acquire lock: %w", err)
	}
	if granted {
		return AcquireResult{Granted: true, ExpiresAt: time.Now().Add(m.ttl)}, nil
	}

	lock, err := m.store.GetParagraphLock(ctx, paragraphID, m.ttl)
	if errors.Is(err, sql.ErrNoRows) {
		// The blocking lease lapsed between the two statements. One
		// retry settles it.
		granted, err := m.store.AcquireParagraphLock(ctx, paragraphID, holderID, m.ttl)
		if err != nil {
			return AcquireResult{}, fmt.Errorf("acquire lock retry: %w", err)
		}
		if granted {
			return AcquireResult{Granted: true, ExpiresAt: time.Now().Add(m.ttl)}, nil
		}
		lock, err = m.store.GetParagraphLock(ctx, paragraphID, m.ttl)
		if err != nil {
			return AcquireResult{}, fmt.Errorf("inspect lock: %w", err)
		}
		return AcquireResult{HeldBy: lock.HolderName, HeldByID: lock.HolderID, ExpiresAt: lock.LastActivityAt.Add(m.ttl)}, nil
	}
	if err != nil {
		return AcquireResult{}, fmt.Errorf("inspect lock: %w", err)
	}
	return AcquireResult{HeldBy: lock.HolderName, HeldByID: lock.HolderID, ExpiresAt: lock.LastActivityAt.Add(m.ttl)}, nil
}

// Release drops the caller's lease without saving. Releasing a lease the
// caller no longer holds is a no-op, not an error: the lease may have
// expired and been taken by someone else, and their lock must survive.
func (m *Manager) Release(ctx context.Context, paragraphID, holderID string) (bool, error) {
	released, err := m.store.ReleaseParagraphLock(ctx, paragraphID, holderID)
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}
	return released, nil
}

// Save writes new paragraph content and consumes the lease in one step.
// The write happens only when the caller still holds a live lease; a
// lapsed lease rejects the save even if nobody else has locked since.
func (m *Manager) Save(ctx context.Context, paragraphID, holderID, content string) (SaveResult, error) {
	saved, err := m.store.SaveParagraphWithLock(ctx, paragraphID, holderID, content, m.ttl)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save with lock: %w", err)
	}
	if !saved {
		result := SaveResult{}
		lock, err := m.store.GetParagraphLock(ctx, paragraphID, m.ttl)
		if err == nil {
			result.HeldBy = lock.HolderName
			result.HeldByID = lock.HolderID
		} else if !errors.Is(err, sql.ErrNoRows) {
			return SaveResult{}, fmt.Errorf("inspect lock: %w", err)
		}
		return result, nil
	}

	p, err := m.store.GetParagraph(ctx, paragraphID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("reload paragraph: %w", err)
	}
	return SaveResult{Saved: true, Paragraph: p}, nil
}

// Inspect returns the live lock on a paragraph, if any.
func (m *Manager) Inspect(ctx context.Context, paragraphID string) (store.ParagraphLock, bool, error) {
	lock, err := m.store.GetParagraphLock(ctx, paragraphID, m.ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ParagraphLock{}, false, nil
	}
	if err != nil {
		return store.ParagraphLock{}, false, fmt.Errorf("inspect lock: %w", err)
	}
	return lock, true, nil
}

// ErrParagraphNotFound is returned when the target paragraph does not exist.
var ErrParagraphNotFound = errors.New("paragraph not found")
