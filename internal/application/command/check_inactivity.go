package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK INACTIVITY COMMAND
// Finds students who stopped submitting and sends them a reminder.
// ══════════════════════════════════════════════════════════════════════════════

// ReminderSender delivers the inactivity reminder. It reports success as a
// boolean and never fails loudly: delivery problems are the sender's to log.
type ReminderSender interface {
	SendReminder(ctx context.Context, profile student.ReminderProfile) bool
}

// CheckInactivityCommand runs the sweep. An empty StudentID means every student.
type CheckInactivityCommand struct {
	StudentID string
}

// CheckInactivityResult summarizes a sweep.
type CheckInactivityResult struct {
	Candidates int `json:"candidates"`
	Notified   int `json:"notified"`
	Failed     int `json:"failed"`
}

// CheckInactivityHandler handles the CheckInactivityCommand.
// It is the only writer of remindersSent.
type CheckInactivityHandler struct {
	repo   student.Repository
	sender ReminderSender
	policy student.InactivityPolicy
	clock  timeutil.Clock
	cache  student.Cache
	logger *slog.Logger
}

// NewCheckInactivityHandler creates a new CheckInactivityHandler.
func NewCheckInactivityHandler(
	repo student.Repository,
	sender ReminderSender,
	policy student.InactivityPolicy,
	clock timeutil.Clock,
	cache student.Cache,
	logger *slog.Logger,
) *CheckInactivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckInactivityHandler{
		repo:   repo,
		sender: sender,
		policy: policy,
		clock:  clock,
		cache:  cache,
		logger: logger.With("handler", "check_inactivity"),
	}
}

// Handle executes the sweep and returns how many students were notified.
func (h *CheckInactivityHandler) Handle(ctx context.Context, cmd CheckInactivityCommand) (*CheckInactivityResult, error) {
	now := h.clock.Now()

	candidates, err := h.repo.FindInactive(ctx, h.policy.Criteria(now, cmd.StudentID))
	if err != nil {
		return nil, fmt.Errorf("check_inactivity: find inactive: %w", err)
	}

	// The store pre-filters; the policy stays authoritative.
	inactive := h.policy.Classify(candidates, now)
	result := &CheckInactivityResult{Candidates: len(inactive)}

	for _, s := range inactive {
		result.Notified += h.remind(ctx, s)
	}
	result.Failed = result.Candidates - result.Notified

	h.logger.Info("inactivity check completed",
		"student_id", cmd.StudentID,
		"candidates", result.Candidates,
		"notified", result.Notified,
		"failed", result.Failed,
	)

	return result, nil
}

// remind returns 1 when the reminder was sent and counted.
func (h *CheckInactivityHandler) remind(ctx context.Context, s *student.Student) int {
	if !h.sender.SendReminder(ctx, s.Profile()) {
		h.logger.Warn("reminder not delivered", "student_id", s.ID, "email", s.Email)
		return 0
	}

	if err := h.repo.IncrementReminders(ctx, s.ID); err != nil {
		// The mail went out; only the counter is behind.
		h.logger.Error("failed to increment reminders",
			"student_id", s.ID,
			"error", err,
		)
		return 1
	}
	invalidate(ctx, h.cache, h.logger, s.ID)

	h.logger.Info("reminder sent",
		"student_id", s.ID,
		"reminders_sent", s.RemindersSent+1,
	)
	return 1
}
