// Package notify schedules reminders, such as the end of a sprint.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Notifier schedules a reminder. It is fire-and-forget.
type Notifier interface {
	Schedule(title, body string, at time.Time)
}

// Notification is a reminder that came due.
type Notification struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// DeliverFunc hands a due notification to whatever shows it to the user.
type DeliverFunc func(Notification)

// Scheduler fires notifications on timers. Pending timers are dropped on Stop.
type Scheduler struct {
	mu      sync.Mutex
	logger  *slog.Logger
	deliver DeliverFunc
	now     func() time.Time
	timers  map[*time.Timer]struct{}
	stopped bool
}

// NewScheduler creates a scheduler. A nil deliver logs the notification.
func NewScheduler(logger *slog.Logger, deliver DeliverFunc) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		logger: logger,
		now:    time.Now,
		timers: make(map[*time.Timer]struct{}),
	}
	if deliver == nil {
		deliver = s.logNotification
	}
	s.deliver = deliver
	return s
}

var _ Notifier = (*Scheduler)(nil)

// Schedule fires the notification at the given instant, or right away when
// the instant is already past.
func (s *Scheduler) Schedule(title, body string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("scheduler stopped; notification dropped", slog.String("title", title))
		return
	}

	n := Notification{Title: title, Body: body, At: at}
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.timers[timer]
		delete(s.timers, timer)
		s.mu.Unlock()
		if pending {
			s.deliver(n)
		}
	})
	s.timers[timer] = struct{}{}

	s.logger.Debug("notification scheduled", slog.String("title", title), slog.Time("at", at))
}

// Pending returns the number of notifications that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending notification.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for t := range s.timers {
		t.Stop()
		delete(s.timers, t)
	}
}

func (s *Scheduler) logNotification(n Notification) {
	s.logger.Info("notification", slog.String("title", n.Title), slog.String("body", n.Body), slog.Time("at", n.At))
}
