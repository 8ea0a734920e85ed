package student

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// INACTIVITY POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Значения по умолчанию для правила неактивности.
const (
	DefaultInactivityThreshold = 7 * 24 * time.Hour
	DefaultReminderBudget      = 3
)

// InactivityPolicy определяет, кому отправлять напоминание.
type InactivityPolicy struct {
	// Threshold - сколько времени без посылок считается неактивностью.
	Threshold time.Duration

	// MaxReminders - бюджет напоминаний на одного студента.
	MaxReminders int
}

// DefaultInactivityPolicy возвращает правило: 7 дней, не более 3 напоминаний.
func DefaultInactivityPolicy() InactivityPolicy {
	return InactivityPolicy{
		Threshold:    DefaultInactivityThreshold,
		MaxReminders: DefaultReminderBudget,
	}
}

// Cutoff возвращает момент, раньше которого активность считается устаревшей.
func (p InactivityPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.Threshold)
}

// IsInactive проверяет предикат неактивности:
// письма не отключены, бюджет не исчерпан, и активности нет или она старше порога.
func (p InactivityPolicy) IsInactive(s *Student, now time.Time) bool {
	if s.EmailDisabled {
		return false
	}
	if s.RemindersSent >= p.MaxReminders {
		return false
	}
	if s.LastActivity == nil {
		return true
	}
	return s.LastActivity.Before(p.Cutoff(now))
}

// Classify возвращает подмножество неактивных студентов, сохраняя порядок.
func (p InactivityPolicy) Classify(students []*Student, now time.Time) []*Student {
	out := make([]*Student, 0, len(students))
	for _, s := range students {
		if p.IsInactive(s, now) {
			out = append(out, s)
		}
	}
	return out
}

// Criteria переводит правило в параметры запроса к хранилищу.
// studentID ограничивает выборку одним студентом; пустая строка - все студенты.
func (p InactivityPolicy) Criteria(now time.Time, studentID string) InactivityCriteria {
	return InactivityCriteria{
		StudentID:    studentID,
		ActiveBefore: p.Cutoff(now),
		MaxReminders: p.MaxReminders,
	}
}

// InactivityCriteria - параметры выборки кандидатов на напоминание.
type InactivityCriteria struct {
	StudentID    string
	ActiveBefore time.Time
	MaxReminders int
}
