package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"companion/internal/database"
	"companion/internal/models"
)

const (
	// DefaultLockWait bounds how long a tick waits for the shared state
	// before skipping cleanly.
	DefaultLockWait = 250 * time.Millisecond

	// MutexSkipWarnThreshold is the consecutive-skip count above which the
	// two loops are considered mis-tuned against each other.
	MutexSkipWarnThreshold = 3
)

const stateRowID = 1

// StateService owns the single durable ProactiveState record. Every mutation
// from either loop goes through WithLock or TryWithLock so no writer can
// observe a partially updated record.
type StateService struct {
	db       *database.DB
	sem      chan struct{}
	lockWait time.Duration
	metrics  *Metrics

	skipMu       sync.Mutex
	pendingSkips int
}

// NewStateService creates the state service. There is exactly one per process.
func NewStateService(db *database.DB) *StateService {
	sem := make(chan struct{}, 1)
	sem <- struct{}{}
	return &StateService{
		db:       db,
		sem:      sem,
		lockWait: DefaultLockWait,
	}
}

// SetMetrics attaches the metrics registry (optional).
func (s *StateService) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetLockWait overrides the bounded acquisition window (used in tests).
func (s *StateService) SetLockWait(d time.Duration) {
	s.lockWait = d
}

// Load reads the current state. A missing row yields the initial record.
func (s *StateService) Load(ctx context.Context) (models.ProactiveState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM proactive_state WHERE id = ?`, stateRowID).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.InitialProactiveState(), nil
	}
	if err != nil {
		return models.ProactiveState{}, fmt.Errorf("failed to load proactive state: %w", err)
	}

	var st models.ProactiveState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return models.ProactiveState{}, &DataIntegrityError{Record: "proactive_state", Err: err}
	}
	return st, nil
}

// Commit atomically replaces the state record.
func (s *StateService) Commit(ctx context.Context, st models.ProactiveState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal proactive state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proactive_state (id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		stateRowID, string(raw), database.FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to commit proactive state: %w", err)
	}
	return nil
}

// WithLock runs fn inside the exclusive critical section: load the latest
// state, let fn mutate it, commit the result. Blocks until the lock is free
// or ctx is done. Used by non-tick callers (activity recorder, quiet command).
func (s *StateService) WithLock(ctx context.Context, fn func(*models.ProactiveState) error) error {
	select {
	case <-s.sem:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.sem <- struct{}{} }()

	return s.runLocked(ctx, fn, false)
}

// TryWithLock is the tick variant: it waits at most the lock bound, then
// skips with ErrLockBusy instead of blocking the loop. Skipped ticks are
// charged to ConsecutiveMutexSkips on the next successful tick; a tick that
// acquires without prior contention resets the counter.
func (s *StateService) TryWithLock(ctx context.Context, fn func(*models.ProactiveState) error) error {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case <-s.sem:
	case <-timer.C:
		s.skipMu.Lock()
		s.pendingSkips++
		s.skipMu.Unlock()
		if s.metrics != nil {
			s.metrics.LockSkips.Inc()
		}
		return ErrLockBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.sem <- struct{}{} }()

	return s.runLocked(ctx, fn, true)
}

func (s *StateService) runLocked(ctx context.Context, fn func(*models.ProactiveState) error, tick bool) error {
	st, err := s.Load(ctx)
	if err != nil {
		return err
	}

	if tick {
		s.skipMu.Lock()
		skips := s.pendingSkips
		s.pendingSkips = 0
		s.skipMu.Unlock()

		if skips > 0 {
			st.ConsecutiveMutexSkips += skips
		} else {
			st.ConsecutiveMutexSkips = 0
		}
		if st.ConsecutiveMutexSkips > MutexSkipWarnThreshold {
			slog.Warn("proactive loops are starving each other on the shared state lock",
				"consecutive_skips", st.ConsecutiveMutexSkips)
		}
	}

	if err := fn(&st); err != nil {
		return err
	}

	return s.Commit(ctx, st)
}
