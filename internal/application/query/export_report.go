package query

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT REPORT QUERY
// Табличный отчёт по всем студентам: одна строка на студента,
// статистика задач за 30 и 90 дней.
// ══════════════════════════════════════════════════════════════════════════════

// Окна статистики в отчёте.
const (
	ReportShortWindowDays = 30
	ReportLongWindowDays  = 90
)

// ReportColumns - заголовок отчёта в фиксированном порядке.
var ReportColumns = []string{
	"name",
	"email",
	"phone",
	"cfHandle",
	"currentRating",
	"maxRating",
	"totalContests",
	"totalSubmissions",
	"problemsSolved30Days",
	"avgRating30Days",
	"problemsSolved90Days",
	"avgRating90Days",
	"lastSynced",
	"lastActivity",
	"remindersSent",
}

// ExportReportQuery - параметров нет.
type ExportReportQuery struct{}

// ReportRow - строка отчёта.
type ReportRow struct {
	Name                 string
	Email                string
	Phone                string
	Handle               string
	CurrentRating        int
	MaxRating            int
	TotalContests        int
	TotalSubmissions     int
	ProblemsSolved30Days int
	AvgRating30Days      int
	ProblemsSolved90Days int
	AvgRating90Days      int
	LastSynced           *time.Time
	LastActivity         *time.Time
	RemindersSent        int
}

// Record возвращает значения строки в порядке ReportColumns.
func (r ReportRow) Record() []string {
	return []string{
		r.Name,
		r.Email,
		r.Phone,
		r.Handle,
		strconv.Itoa(r.CurrentRating),
		strconv.Itoa(r.MaxRating),
		strconv.Itoa(r.TotalContests),
		strconv.Itoa(r.TotalSubmissions),
		strconv.Itoa(r.ProblemsSolved30Days),
		strconv.Itoa(r.AvgRating30Days),
		strconv.Itoa(r.ProblemsSolved90Days),
		strconv.Itoa(r.AvgRating90Days),
		formatTime(r.LastSynced),
		formatTime(r.LastActivity),
		strconv.Itoa(r.RemindersSent),
	}
}

// ExportReportHandler обрабатывает ExportReportQuery.
type ExportReportHandler struct {
	repo   student.Repository
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewExportReportHandler создаёт обработчик.
func NewExportReportHandler(repo student.Repository, clock timeutil.Clock, logger *slog.Logger) *ExportReportHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportReportHandler{
		repo:   repo,
		clock:  clock,
		logger: logger.With("handler", "export_report"),
	}
}

// Handle строит отчёт. Нужна полная история, поэтому студенты читаются целиком.
func (h *ExportReportHandler) Handle(ctx context.Context, _ ExportReportQuery) ([]ReportRow, error) {
	students, err := h.repo.List(ctx, student.ListOptions{WithHistory: true})
	if err != nil {
		return nil, fmt.Errorf("export_report: %w", err)
	}

	now := h.clock.Now()
	rows := make([]ReportRow, 0, len(students))
	for _, s := range students {
		short := student.ComputeProblemStats(s, ReportShortWindowDays, now)
		long := student.ComputeProblemStats(s, ReportLongWindowDays, now)

		rows = append(rows, ReportRow{
			Name:                 s.Name,
			Email:                s.Email,
			Phone:                s.Phone,
			Handle:               s.Handle.String(),
			CurrentRating:        s.CurrentRating,
			MaxRating:            s.MaxRating,
			TotalContests:        len(s.Contests),
			TotalSubmissions:     len(s.Submissions),
			ProblemsSolved30Days: short.TotalSolved,
			AvgRating30Days:      short.AvgRating,
			ProblemsSolved90Days: long.TotalSolved,
			AvgRating90Days:      long.AvgRating,
			LastSynced:           s.LastSynced,
			LastActivity:         s.LastActivity,
			RemindersSent:        s.RemindersSent,
		})
	}

	h.logger.Info("report built", "rows", len(rows))
	return rows, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
