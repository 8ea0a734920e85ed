package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
	"github.com/alem-hub/cf-progress-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT STATS QUERY
// Данные для страницы профиля: контесты за окно, статистика задач и
// тепловая карта посылок.
// ══════════════════════════════════════════════════════════════════════════════

// MaxWindowDays ограничивает окно сверху.
const MaxWindowDays = 3650

// GetStudentStatsQuery содержит параметры запроса статистики.
type GetStudentStatsQuery struct {
	StudentID string

	// ContestDays - окно для истории контестов (по умолчанию 365).
	ContestDays int

	// ProblemDays - окно для статистики задач (по умолчанию 30).
	ProblemDays int
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetStudentStatsQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("stats", "Validate", shared.ErrInvalidID, "student id is required")
	}
	if q.ContestDays < 0 || q.ProblemDays < 0 {
		return shared.NewDomainError("stats", "Validate", shared.ErrInvalidInput, "window days cannot be negative")
	}
	if q.ContestDays == 0 {
		q.ContestDays = student.DefaultContestWindowDays
	}
	if q.ProblemDays == 0 {
		q.ProblemDays = student.DefaultProblemWindowDays
	}
	if q.ContestDays > MaxWindowDays {
		q.ContestDays = MaxWindowDays
	}
	if q.ProblemDays > MaxWindowDays {
		q.ProblemDays = MaxWindowDays
	}
	return nil
}

// HeatmapDay - число принятых посылок за один календарный день.
type HeatmapDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StudentStatsDTO - ответ запроса статистики.
type StudentStatsDTO struct {
	StudentID     string `json:"studentId"`
	Handle        string `json:"cfHandle"`
	CurrentRating int    `json:"currentRating"`
	MaxRating     int    `json:"maxRating"`

	ContestDays int               `json:"contestDays"`
	Contests    []student.Contest `json:"contests"`

	ProblemStats student.ProblemStats `json:"problemStats"`

	// Heatmap - дни окна задач по возрастанию даты, включая нулевые.
	Heatmap []HeatmapDay `json:"heatmap"`

	LastSynced *time.Time `json:"lastSynced"`
}

// GetStudentStatsHandler обрабатывает GetStudentStatsQuery.
type GetStudentStatsHandler struct {
	loader *studentLoader
	clock  timeutil.Clock
	loc    *time.Location
}

// NewGetStudentStatsHandler создаёт обработчик.
// loc задаёт часовой пояс для границ дней тепловой карты.
func NewGetStudentStatsHandler(
	repo student.Repository,
	cache student.Cache,
	clock timeutil.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *GetStudentStatsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStudentStatsHandler{
		loader: newStudentLoader(repo, cache, logger.With("handler", "get_student_stats")),
		clock:  clock,
		loc:    loc,
	}
}

// Handle считает статистику студента на текущий момент.
func (h *GetStudentStatsHandler) Handle(ctx context.Context, q GetStudentStatsQuery) (*StudentStatsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s, err := h.loader.load(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	return &StudentStatsDTO{
		StudentID:     s.ID,
		Handle:        s.Handle.String(),
		CurrentRating: s.CurrentRating,
		MaxRating:     s.MaxRating,
		ContestDays:   q.ContestDays,
		Contests:      student.ContestsInWindow(s, q.ContestDays, now),
		ProblemStats:  student.ComputeProblemStats(s, q.ProblemDays, now),
		Heatmap:       h.heatmap(s, q.ProblemDays, now),
		LastSynced:    s.LastSynced,
	}, nil
}

// heatmap разворачивает карту дней в упорядоченный ряд без пропусков.
func (h *GetStudentStatsHandler) heatmap(s *student.Student, days int, now time.Time) []HeatmapDay {
	counts := student.SubmissionHeatmap(s, days, now, h.loc)

	first := timeutil.StartOfDay(timeutil.DaysBefore(now, days), h.loc)
	last := timeutil.StartOfDay(now, h.loc)

	out := make([]HeatmapDay, 0, days+1)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := timeutil.DateKey(d, h.loc)
		out = append(out, HeatmapDay{Date: key, Count: counts[key]})
	}
	return out
}
