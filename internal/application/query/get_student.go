package query

import (
	"context"
	"log/slog"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT QUERY
// Полная запись студента. Читает через кеш, если он подключён.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentQuery содержит ID студента.
type GetStudentQuery struct {
	StudentID string
}

// Validate проверяет параметры запроса.
func (q GetStudentQuery) Validate() error {
	if q.StudentID == "" {
		return shared.NewDomainError("student", "Get", shared.ErrInvalidID, "student id is required")
	}
	return nil
}

// GetStudentHandler обрабатывает GetStudentQuery.
type GetStudentHandler struct {
	loader *studentLoader
}

// NewGetStudentHandler создаёт обработчик. cache может быть nil.
func NewGetStudentHandler(repo student.Repository, cache student.Cache, logger *slog.Logger) *GetStudentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetStudentHandler{
		loader: newStudentLoader(repo, cache, logger.With("handler", "get_student")),
	}
}

// Handle возвращает студента с полной историей.
func (h *GetStudentHandler) Handle(ctx context.Context, q GetStudentQuery) (*StudentDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s, err := h.loader.load(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}

	dto := NewStudentDTO(s)
	return &dto, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// studentLoader
// ─────────────────────────────────────────────────────────────────────────────

// studentLoader - чтение студента через кеш (cache-aside).
// Ошибки кеша только логируются.
type studentLoader struct {
	repo   student.Repository
	cache  student.Cache
	logger *slog.Logger
}

func newStudentLoader(repo student.Repository, cache student.Cache, logger *slog.Logger) *studentLoader {
	return &studentLoader{repo: repo, cache: cache, logger: logger}
}

func (l *studentLoader) load(ctx context.Context, id string) (*student.Student, error) {
	if l.cache != nil {
		s, err := l.cache.GetStudent(ctx, id)
		if err == nil && s != nil {
			return s, nil
		}
		if err != nil && !shared.IsNotFound(err) {
			l.logger.Warn("cache read failed", "student_id", id, "error", err)
		}
	}

	// Версия читается до запроса в БД: если запись изменится и кеш
	// инвалидируется, пока мы читаем, устаревшая копия не попадёт в кеш.
	var version int64
	cacheable := false
	if l.cache != nil {
		v, err := l.cache.Version(ctx, id)
		if err != nil {
			l.logger.Warn("cache version read failed", "student_id", id, "error", err)
		} else {
			version, cacheable = v, true
		}
	}

	s, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := l.cache.SetStudent(ctx, s, version); err != nil {
			l.logger.Warn("cache write failed", "student_id", id, "error", err)
		}
	}
	return s, nil
}
