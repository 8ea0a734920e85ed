package email

import (
	"context"
	"log/slog"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// LogSender records reminders in the log instead of sending them.
// It always reports success, so reminder counters still advance.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "log_sender")}
}

// SendReminder logs the reminder.
func (s *LogSender) SendReminder(_ context.Context, p student.ReminderProfile) bool {
	s.logger.Info("reminder (smtp disabled)",
		"student_id", p.StudentID,
		"email", p.Email,
		"subject", ReminderSubject,
	)
	return true
}
