package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ReminderLog records which reminders the daemon has already delivered so
// restarts do not resend them.
type ReminderLog struct {
	db *sql.DB
}

func NewReminderLog(db *sql.DB) *ReminderLog {
	return &ReminderLog{db: db}
}

// RecordSent marks a reminder as delivered. Recording the same reminder twice is a no-op.
func (s *ReminderLog) RecordSent(kind, refID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO reminder_log (kind, reference_id) VALUES (?, ?)`,
		kind, refID,
	)
	if err != nil {
		return fmt.Errorf("record sent reminder: %w", err)
	}
	return nil
}

// WasSent checks if a reminder was already delivered.
func (s *ReminderLog) WasSent(kind, refID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reminder_log WHERE kind = ? AND reference_id = ?`,
		kind, refID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent reminder: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes log rows older than the given time.
func (s *ReminderLog) CleanupSent(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM reminder_log WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup sent reminders: %w", err)
	}
	return nil
}
