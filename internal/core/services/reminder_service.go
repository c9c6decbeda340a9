package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reminder is a one-shot scheduled notification.
type Reminder struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"user_id"`
	Message string    `json:"message"`
	FireAt  time.Time `json:"fire_at"`
}

// ReminderSink receives reminders when they fire.
type ReminderSink func(r Reminder)

// ReminderService schedules in-memory one-shot reminders. Reminders do
// not survive a restart.
type ReminderService struct {
	logger *slog.Logger
	sink   ReminderSink

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewReminderService(logger *slog.Logger, sink ReminderSink) *ReminderService {
	return &ReminderService{
		logger:  logger,
		sink:    sink,
		pending: make(map[string]*time.Timer),
	}
}

// Schedule registers a reminder after the given delay. Returns the
// reminder ID for later cancellation.
func (s *ReminderService) Schedule(ctx context.Context, userID int64, message string, delay time.Duration) Reminder {
	r := Reminder{
		ID:      uuid.NewString(),
		UserID:  userID,
		Message: message,
		FireAt:  time.Now().Add(delay),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[r.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, r.ID)
		s.mu.Unlock()

		s.logger.Info("reminder fired", "reminder_id", r.ID, "user_id", userID)
		if s.sink != nil {
			s.sink(r)
		}
	})

	s.logger.Info("reminder scheduled", "reminder_id", r.ID, "fire_at", r.FireAt)
	return r
}

// Cancel stops a pending reminder. Returns false if it already fired
// or never existed.
func (s *ReminderService) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.pending[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.pending, id)
	return true
}

// PendingCount returns how many reminders are waiting to fire.
func (s *ReminderService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops all pending timers.
func (s *ReminderService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
