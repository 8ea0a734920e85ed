package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Список всех студентов без истории контестов и посылок.
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery - параметров нет.
type ListStudentsQuery struct{}

// ListStudentsHandler обрабатывает ListStudentsQuery.
type ListStudentsHandler struct {
	repo   student.Repository
	logger *slog.Logger
}

// NewListStudentsHandler создаёт обработчик.
func NewListStudentsHandler(repo student.Repository, logger *slog.Logger) *ListStudentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListStudentsHandler{repo: repo, logger: logger.With("handler", "list_students")}
}

// Handle возвращает сводки студентов в порядке хранилища.
func (h *ListStudentsHandler) Handle(ctx context.Context, _ ListStudentsQuery) ([]StudentDTO, error) {
	students, err := h.repo.List(ctx, student.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}

	out := make([]StudentDTO, 0, len(students))
	for _, s := range students {
		out = append(out, NewStudentDTO(s.Summary()))
	}

	h.logger.Debug("students listed", "count", len(out))
	return out, nil
}
