package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tbourn/dogblood-backend/internal/observability"
)

// Slots bounds how many requests may be inside outbound steps (extraction,
// model calls, rendering) at once. A nil *Slots imposes no bound.
type Slots struct {
	sem *semaphore.Weighted
}

// NewSlots returns a limiter with n slots; n < 1 is treated as 1.
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	return &Slots{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func is idempotent.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	if s == nil {
		return func() {}, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	observability.AnalysisSlotsInUse.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			observability.AnalysisSlotsInUse.Dec()
			s.sem.Release(1)
		})
	}, nil
}
