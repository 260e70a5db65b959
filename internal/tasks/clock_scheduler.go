package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudo-init-do/servicehub/internal/clock"
)

// ClockScheduler runs tasks in-process on timers from a clock.Clock. With a
// clock.Manual the tasks only run when the test advances time.
type ClockScheduler struct {
	clock    clock.Clock
	log      zerolog.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewClockScheduler(c clock.Clock, log zerolog.Logger) *ClockScheduler {
	return &ClockScheduler{clock: c, log: log, handlers: make(map[string]HandlerFunc)}
}

func (s *ClockScheduler) HandleFunc(taskType string, h HandlerFunc) {
	s.mu.Lock()
	s.handlers[taskType] = h
	s.mu.Unlock()
}

func (s *ClockScheduler) Schedule(_ context.Context, taskType string, p Payload, delay time.Duration) error {
	s.mu.RLock()
	h, ok := s.handlers[taskType]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for %s", taskType)
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = s.clock.Now()
	}

	s.clock.AfterFunc(delay, func() {
		if err := h(context.Background(), p); err != nil {
			s.log.Error().Err(err).
				Str("task", taskType).
				Str("transaction_id", p.TransactionID).
				Msg("task failed")
			return
		}
		s.log.Debug().Str("task", taskType).Str("transaction_id", p.TransactionID).Msg("task done")
	})
	return nil
}
