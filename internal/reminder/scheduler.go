// Package reminder runs the daily follow-up reminder loop.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/shepherd/internal/followup"
)

const (
	KindDailyDigest = "daily_digest"

	// Sent-log rows older than this are pruned once a day.
	retention = 90 * 24 * time.Hour
)

type Followups interface {
	TodaysFollowups(ctx context.Context, includeOverdue bool) ([]followup.Followup, error)
	NextFollowup(ctx context.Context) (*followup.Followup, error)
}

type Sender interface {
	Send(ctx context.Context, text string) error
}

// SentLog remembers delivered reminders across restarts.
type SentLog interface {
	WasSent(kind, refID string) (bool, error)
	RecordSent(kind, refID string) error
	CleanupSent(before time.Time) error
}

// Scheduler sends one reminder per day once the local clock passes the
// configured time of day.
type Scheduler struct {
	mu       sync.RWMutex
	engine   Followups
	sender   Sender
	sent     SentLog
	hour     int
	minute   int
	location *time.Location
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a reminder scheduler firing at sendAt ("HH:MM").
func NewScheduler(engine Followups, sender Sender, sent SentLog, sendAt string, opts ...Option) (*Scheduler, error) {
	hour, minute, err := ParseTimeOfDay(sendAt)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		engine:   engine,
		sender:   sender,
		sent:     sent,
		hour:     hour,
		minute:   minute,
		location: time.Local,
		interval: time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("parse reminder time %q: want HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}

// Start begins the scheduler loop. A check runs immediately so a daemon
// started after the send time still delivers that day's reminder.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().In(s.location)
	due := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.location)
	if now.Before(due) {
		return
	}

	refID := now.Format("2006-01-02")
	sent, err := s.sent.WasSent(KindDailyDigest, refID)
	if err != nil {
		s.logger.Error("check sent reminder", "error", err)
		return
	}
	if sent {
		return
	}

	if err := s.SendNow(ctx); err != nil {
		s.logger.Error("send daily reminder", "date", refID, "error", err)
		return
	}
	if err := s.sent.RecordSent(KindDailyDigest, refID); err != nil {
		s.logger.Error("record sent reminder", "error", err)
	}
	if err := s.sent.CleanupSent(now.Add(-retention)); err != nil {
		s.logger.Warn("cleanup reminder log", "error", err)
	}
	s.logger.Info("daily reminder sent", "date", refID)
}

// SendNow composes and delivers the reminder immediately, bypassing the
// time-of-day check and the sent log.
func (s *Scheduler) SendNow(ctx context.Context) error {
	text, err := s.Compose(ctx)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, text)
}

// Compose builds the reminder text: today's follow-ups including overdue
// ones, or the next upcoming follow-up when nothing is due.
func (s *Scheduler) Compose(ctx context.Context) (string, error) {
	today, err := s.engine.TodaysFollowups(ctx, true)
	if err != nil {
		return "", fmt.Errorf("load today's follow-ups: %w", err)
	}
	if len(today) > 0 {
		return followup.FormatDigest(today), nil
	}

	next, err := s.engine.NextFollowup(ctx)
	if err != nil {
		return "", fmt.Errorf("load next follow-up: %w", err)
	}
	if next == nil {
		return "All follow-ups for this month are complete.", nil
	}
	return "Nothing due today. Next up:\n\n" + followup.FormatReminder(*next), nil
}
