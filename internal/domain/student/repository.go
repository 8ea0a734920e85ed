package student

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - единственный источник истины для записей студентов.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// CRUD Operations
	// ─────────────────────────────────────────────────────────────────────────

	// Create создаёт нового студента.
	// Возвращает ErrStudentAlreadyExists, если email или хэндл заняты.
	Create(ctx context.Context, student *Student) error

	// GetByID возвращает студента с полной историей.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// FindConflicting ищет другого студента с тем же email или хэндлом.
	// excludeID исключает самого студента при обновлении.
	// Возвращает ErrStudentNotFound, если конфликта нет.
	FindConflicting(ctx context.Context, email string, handle Handle, excludeID string) (*Student, error)

	// Save перезаписывает профиль, историю и сводные поля студента целиком.
	// RemindersSent не перезаписывается - он меняется только через IncrementReminders.
	// Возвращает ErrStudentNotFound, если студент не найден.
	Save(ctx context.Context, student *Student) error

	// SaveSyncResult записывает только то, что меняет синхронизация: рейтинги,
	// историю, LastActivity, LastSynced и UpdatedAt. Профиль не трогается.
	// Возвращает ErrStudentNotFound, если студент не найден.
	SaveSyncResult(ctx context.Context, student *Student) error

	// Delete удаляет студента.
	// Возвращает ErrStudentNotFound, если студент не найден.
	Delete(ctx context.Context, id string) error

	// ─────────────────────────────────────────────────────────────────────────
	// Bulk Operations
	// ─────────────────────────────────────────────────────────────────────────

	// List возвращает всех студентов.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Outreach
	// ─────────────────────────────────────────────────────────────────────────

	// FindInactive возвращает студентов, подходящих под критерии неактивности.
	FindInactive(ctx context.Context, criteria InactivityCriteria) ([]*Student, error)

	// IncrementReminders атомарно увеличивает RemindersSent на 1.
	IncrementReminders(ctx context.Context, id string) error
}

// ListOptions управляет выборкой списка.
type ListOptions struct {
	// WithHistory - загружать контесты и посылки.
	WithHistory bool
}

// Cache - опциональный кеш данных студентов.
type Cache interface {
	GetStudent(ctx context.Context, id string) (*Student, error)

	// Version возвращает счётчик инвалидаций студента.
	// Читать до загрузки записи из хранилища.
	Version(ctx context.Context, id string) (int64, error)

	// SetStudent сохраняет запись, только если после чтения version
	// студент не инвалидировался.
	SetStudent(ctx context.Context, s *Student, version int64) error

	InvalidateStudent(ctx context.Context, id string) error
}

// SyncLock не даёт запустить две синхронизации одного студента одновременно.
type SyncLock interface {
	// Acquire возвращает false, если блокировка уже захвачена.
	Acquire(ctx context.Context, studentID string, ttl time.Duration) (release func(), ok bool, err error)
}
