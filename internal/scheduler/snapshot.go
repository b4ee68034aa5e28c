package scheduler

import (
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
)

// Snapshot is one immutable published value of a family.
type Snapshot[T any] struct {
	Value     *T        `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
	CycleID   string    `json:"cycleId"`
}

// Failure records the last failed cycle.
type Failure struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// SnapshotStore holds the last good snapshot of one family. Readers never
// block; the refresh loop is the only writer.
type SnapshotStore[T any] struct {
	family  string
	current atomic.Pointer[Snapshot[T]]
	failure atomic.Pointer[Failure]
}

func NewSnapshotStore[T any](family string) *SnapshotStore[T] {
	return &SnapshotStore[T]{family: family}
}

func (s *SnapshotStore[T]) Family() string { return s.family }

// Load returns the current snapshot or nil before the first success.
func (s *SnapshotStore[T]) Load() *Snapshot[T] {
	return s.current.Load()
}

// Value returns the current value or nil.
func (s *SnapshotStore[T]) Value() *T {
	if snap := s.current.Load(); snap != nil {
		return snap.Value
	}
	return nil
}

// Swap publishes v and clears the failure mark.
func (s *SnapshotStore[T]) Swap(v *T, at time.Time, cycleID string) *Snapshot[T] {
	snap := &Snapshot[T]{Value: v, UpdatedAt: at.UTC(), CycleID: cycleID}
	s.current.Store(snap)
	s.failure.Store(nil)
	return snap
}

// restore installs snap only when it is newer than what is held.
func (s *SnapshotStore[T]) restore(snap *Snapshot[T]) bool {
	for {
		cur := s.current.Load()
		if cur != nil && !snap.UpdatedAt.After(cur.UpdatedAt) {
			return false
		}
		if s.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// Fail records a failed cycle; the current snapshot stays.
func (s *SnapshotStore[T]) Fail(err error, at time.Time) {
	s.failure.Store(&Failure{Kind: models.KindOf(err), Message: err.Error(), At: at.UTC()})
}

// LastFailure returns the failure of the latest cycle, or nil when the
// latest cycle succeeded.
func (s *SnapshotStore[T]) LastFailure() *Failure {
	return s.failure.Load()
}
