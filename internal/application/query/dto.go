// Package query contains read operations (CQRS - Queries).
// Запросы не меняют состояние системы и отдают готовые DTO.
package query

import (
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTO
// Формат записи студента, который отдаёт API.
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO - запись студента. Contests и Submissions пустые в списке.
type StudentDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`

	// Handle - хэндл Codeforces.
	Handle string `json:"cfHandle"`

	CurrentRating int `json:"currentRating"`
	MaxRating     int `json:"maxRating"`

	Contests    []student.Contest    `json:"contests,omitempty"`
	Submissions []student.Submission `json:"submissions,omitempty"`

	LastActivity *time.Time `json:"lastActivity"`
	LastSynced   *time.Time `json:"lastSynced"`

	RemindersSent int  `json:"remindersSent"`
	EmailDisabled bool `json:"emailDisabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewStudentDTO переводит доменную сущность в DTO.
func NewStudentDTO(s *student.Student) StudentDTO {
	return StudentDTO{
		ID:            s.ID,
		Name:          s.Name,
		Email:         s.Email,
		Phone:         s.Phone,
		Handle:        s.Handle.String(),
		CurrentRating: s.CurrentRating,
		MaxRating:     s.MaxRating,
		Contests:      s.Contests,
		Submissions:   s.Submissions,
		LastActivity:  s.LastActivity,
		LastSynced:    s.LastSynced,
		RemindersSent: s.RemindersSent,
		EmailDisabled: s.EmailDisabled,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
