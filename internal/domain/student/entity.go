// Package student содержит доменную модель студента, отслеживаемого на Codeforces.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Handle представляет хэндл студента на Codeforces.
type Handle string

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,24}$`)

// IsValid проверяет корректность хэндла Codeforces.
func (h Handle) IsValid() bool {
	return handlePattern.MatchString(string(h))
}

// String возвращает строковое представление хэндла.
func (h Handle) String() string {
	return string(h)
}

// VerdictAccepted - вердикт принятого решения.
const VerdictAccepted = "OK"

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY RECORDS
// Записи истории неизменяемы после загрузки и заменяются целиком при синхронизации.
// ══════════════════════════════════════════════════════════════════════════════

// Contest - одно изменение рейтинга по итогам контеста.
type Contest struct {
	ContestID               int    `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
}

// UpdatedAt возвращает время обновления рейтинга.
func (c Contest) UpdatedAt() time.Time {
	return time.Unix(c.RatingUpdateTimeSeconds, 0).UTC()
}

// Problem - задача, на которую отправлено решение.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Rating    int      `json:"rating,omitempty"` // 0 - задача без рейтинга
	Tags      []string `json:"tags"`
}

// Key возвращает ключ уникальности задачи "contestId-index".
func (p Problem) Key() string {
	return strconv.Itoa(p.ContestID) + "-" + p.Index
}

// IsRated возвращает true, если у задачи есть рейтинг сложности.
func (p Problem) IsRated() bool {
	return p.Rating > 0
}

// Member - участник команды-автора посылки.
type Member struct {
	Handle string `json:"handle"`
}

// Author описывает, от чьего имени отправлена посылка.
type Author struct {
	ContestID        int      `json:"contestId,omitempty"`
	Members          []Member `json:"members"`
	ParticipantType  string   `json:"participantType"`
	Ghost            bool     `json:"ghost"`
	StartTimeSeconds int64    `json:"startTimeSeconds,omitempty"`
}

// Submission - одна проверенная посылка.
type Submission struct {
	ID                  int64    `json:"id"`
	ContestID           int      `json:"contestId,omitempty"`
	CreationTimeSeconds int64    `json:"creationTimeSeconds"`
	RelativeTimeSeconds int64    `json:"relativeTimeSeconds"`
	Problem             *Problem `json:"problem"`
	Author              *Author  `json:"author,omitempty"`
	ProgrammingLanguage string   `json:"programmingLanguage"`
	Verdict             string   `json:"verdict"`
	Testset             string   `json:"testset"`
	PassedTestCount     int      `json:"passedTestCount"`
	TimeConsumedMillis  int      `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64    `json:"memoryConsumedBytes"`
}

// IsScoreable возвращает true, если у посылки есть задача с contestId и index.
// Остальные посылки отбрасываются при синхронизации.
func (s Submission) IsScoreable() bool {
	return s.Problem != nil && s.Problem.ContestID != 0 && s.Problem.Index != ""
}

// IsAccepted возвращает true для вердикта "OK".
func (s Submission) IsAccepted() bool {
	return s.Verdict == VerdictAccepted
}

// CreatedAt возвращает время отправки.
func (s Submission) CreatedAt() time.Time {
	return time.Unix(s.CreationTimeSeconds, 0).UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - корневая сущность, один зарегистрированный участник.
type Student struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	Name  string
	Email string
	Phone string

	// Handle - хэндл на Codeforces, уникален.
	Handle Handle

	// CurrentRating и MaxRating пересчитываются только при непустой истории контестов.
	CurrentRating int
	MaxRating     int

	// Contests и Submissions принадлежат только этому студенту.
	Contests    []Contest
	Submissions []Submission

	// LastActivity - время последней посылки, nil если посылок нет.
	LastActivity *time.Time

	// LastSynced - время последней успешной синхронизации.
	LastSynced *time.Time

	// RemindersSent меняется только атомарным инкрементом в хранилище.
	RemindersSent int

	// EmailDisabled - ручной отказ от напоминаний.
	EmailDisabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudentParams содержит параметры для создания нового студента.
type NewStudentParams struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Handle        string
	EmailDisabled bool
}

// NewStudent создаёт нового студента с валидацией.
func NewStudent(params NewStudentParams, now time.Time) (*Student, error) {
	s := &Student{
		ID:            params.ID,
		Name:          strings.TrimSpace(params.Name),
		Email:         normalizeEmail(params.Email),
		Phone:         strings.TrimSpace(params.Phone),
		Handle:        Handle(strings.TrimSpace(params.Handle)),
		EmailDisabled: params.EmailDisabled,
		Contests:      []Contest{},
		Submissions:   []Submission{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.ID == "" {
		return nil, ErrInvalidID
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate проверяет обязательные поля.
func (s *Student) Validate() error {
	if s.Name == "" || len(s.Name) > 100 {
		return ErrInvalidName
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		return ErrInvalidEmail
	}
	if s.Phone == "" {
		return ErrInvalidPhone
	}
	if !s.Handle.IsValid() {
		return ErrInvalidHandle
	}
	return nil
}

// UpdateDetails содержит изменяемые поля профиля. nil - поле не меняется.
type UpdateDetails struct {
	Name          *string
	Email         *string
	Phone         *string
	Handle        *string
	EmailDisabled *bool
}

// ApplyDetails применяет изменения профиля.
// Возвращает true, если изменился хэндл и нужна повторная синхронизация.
func (s *Student) ApplyDetails(d UpdateDetails, now time.Time) (handleChanged bool, err error) {
	updated := *s

	if d.Name != nil {
		updated.Name = strings.TrimSpace(*d.Name)
	}
	if d.Email != nil {
		updated.Email = normalizeEmail(*d.Email)
	}
	if d.Phone != nil {
		updated.Phone = strings.TrimSpace(*d.Phone)
	}
	if d.Handle != nil {
		updated.Handle = Handle(strings.TrimSpace(*d.Handle))
	}
	if d.EmailDisabled != nil {
		updated.EmailDisabled = *d.EmailDisabled
	}

	if err := updated.Validate(); err != nil {
		return false, err
	}

	handleChanged = updated.Handle != s.Handle
	updated.UpdatedAt = now
	*s = updated
	return handleChanged, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sync mutations
// ─────────────────────────────────────────────────────────────────────────────

// ReplaceContests заменяет историю контестов целиком.
// Рейтинги пересчитываются только для непустой истории: текущий рейтинг берётся
// из последней записи в порядке ответа API, без сортировки.
func (s *Student) ReplaceContests(contests []Contest) {
	if contests == nil {
		contests = []Contest{}
	}
	s.Contests = contests

	if len(contests) == 0 {
		return
	}

	s.CurrentRating = contests[len(contests)-1].NewRating
	maxRating := contests[0].NewRating
	for _, c := range contests[1:] {
		if c.NewRating > maxRating {
			maxRating = c.NewRating
		}
	}
	s.MaxRating = maxRating
}

// ReplaceSubmissions заменяет историю посылок целиком, отбрасывая посылки
// без задачи, и пересчитывает LastActivity. Возвращает число отброшенных.
func (s *Student) ReplaceSubmissions(submissions []Submission) (dropped int) {
	kept := make([]Submission, 0, len(submissions))
	var latest int64
	for _, sub := range submissions {
		if !sub.IsScoreable() {
			dropped++
			continue
		}
		kept = append(kept, sub)
		if sub.CreationTimeSeconds > latest {
			latest = sub.CreationTimeSeconds
		}
	}
	s.Submissions = kept

	// Пустая история стирает прежнюю активность.
	if len(kept) == 0 {
		s.LastActivity = nil
		return dropped
	}
	t := time.Unix(latest, 0).UTC()
	s.LastActivity = &t
	return dropped
}

// MarkSynced фиксирует время синхронизации.
func (s *Student) MarkSynced(now time.Time) {
	t := now
	s.LastSynced = &t
	s.UpdatedAt = now
}

// ─────────────────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────────────────

// ReminderProfile - данные для письма-напоминания.
type ReminderProfile struct {
	StudentID     string
	Name          string
	Email         string
	Handle        string
	CurrentRating int
	MaxRating     int
}

// Profile возвращает профиль для письма-напоминания.
func (s *Student) Profile() ReminderProfile {
	return ReminderProfile{
		StudentID:     s.ID,
		Name:          s.Name,
		Email:         s.Email,
		Handle:        s.Handle.String(),
		CurrentRating: s.CurrentRating,
		MaxRating:     s.MaxRating,
	}
}

// Summary возвращает копию студента без истории контестов и посылок.
func (s *Student) Summary() *Student {
	c := *s
	c.Contests = nil
	c.Submissions = nil
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrStudentNotFound - студент не найден.
	ErrStudentNotFound = shared.NewDomainError("student", "Find", shared.ErrNotFound, "Student not found")

	// ErrStudentAlreadyExists - email или хэндл уже заняты.
	ErrStudentAlreadyExists = shared.NewDomainError("student", "Create", shared.ErrAlreadyExists,
		"Student with this email or Codeforces handle already exists")

	// ErrInvalidID - пустой идентификатор.
	ErrInvalidID = shared.NewDomainError("student", "Validate", shared.ErrInvalidID, "student id is required")

	// ErrInvalidName - пустое или слишком длинное имя.
	ErrInvalidName = shared.NewDomainError("student", "Validate", shared.ErrValidation, "name is required (max 100 chars)")

	// ErrInvalidEmail - невалидный email.
	ErrInvalidEmail = shared.NewDomainError("student", "Validate", shared.ErrValidation, "a valid email is required")

	// ErrInvalidPhone - пустой телефон.
	ErrInvalidPhone = shared.NewDomainError("student", "Validate", shared.ErrValidation, "phone is required")

	// ErrInvalidHandle - невалидный хэндл Codeforces.
	ErrInvalidHandle = shared.NewDomainError("student", "Validate", shared.ErrValidation,
		"codeforces handle must be 1-24 chars of letters, digits, '_', '-', '.'")
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
