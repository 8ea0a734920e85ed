package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

var _ student.Repository = (*StudentRepository)(nil)

const summaryColumns = `id::text, name, email, phone, handle, current_rating, max_rating,
		last_activity, last_synced, reminders_sent, email_disabled, created_at, updated_at`

// selectColumns returns the column list; without history the JSONB columns
// are replaced by empty arrays so one scanner serves both shapes.
func selectColumns(withHistory bool) string {
	if withHistory {
		return summaryColumns + ", contests, submissions"
	}
	return summaryColumns + `, '[]'::jsonb, '[]'::jsonb`
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (
			id, name, email, phone, handle, current_rating, max_rating,
			contests, submissions, last_activity, last_synced,
			reminders_sent, email_disabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	contests, submissions, err := marshalHistory(s)
	if err != nil {
		return err
	}

	_, err = r.conn.Exec(ctx, query,
		s.ID,
		s.Name,
		s.Email,
		s.Phone,
		s.Handle.String(),
		s.CurrentRating,
		s.MaxRating,
		contests,
		submissions,
		s.LastActivity,
		s.LastSynced,
		s.RemindersSent,
		s.EmailDisabled,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return student.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// GetByID returns a student with full history.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, student.ErrStudentNotFound
	}

	query := `SELECT ` + selectColumns(true) + ` FROM students WHERE id = $1`
	return r.scanStudent(r.conn.QueryRow(ctx, query, id))
}

// FindConflicting returns another student sharing email or handle.
func (r *StudentRepository) FindConflicting(
	ctx context.Context,
	email string,
	handle student.Handle,
	excludeID string,
) (*student.Student, error) {
	var exclude *string
	if excludeID != "" {
		exclude = &excludeID
	}

	query := `SELECT ` + selectColumns(false) + `
		FROM students
		WHERE (email = $1 OR handle = $2)
		  AND ($3::uuid IS NULL OR id <> $3::uuid)
		LIMIT 1
	`
	return r.scanStudent(r.conn.QueryRow(ctx, query, email, handle.String(), exclude))
}

// Save overwrites profile, history and summary fields. reminders_sent is
// left alone; it only moves through IncrementReminders.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	query := `
		UPDATE students SET
			name = $1,
			email = $2,
			phone = $3,
			handle = $4,
			current_rating = $5,
			max_rating = $6,
			contests = $7,
			submissions = $8,
			last_activity = $9,
			last_synced = $10,
			email_disabled = $11,
			updated_at = $12
		WHERE id = $13
	`

	contests, submissions, err := marshalHistory(s)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		s.Name,
		s.Email,
		s.Phone,
		s.Handle.String(),
		s.CurrentRating,
		s.MaxRating,
		contests,
		submissions,
		s.LastActivity,
		s.LastSynced,
		s.EmailDisabled,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return student.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to save student: %w", err)
	}

	if result.RowsAffected() == 0 {
		return student.ErrStudentNotFound
	}

	return nil
}

// SaveSyncResult writes only the columns a sync produces. Profile columns
// may have been edited while the sync was running and are left as they are.
func (r *StudentRepository) SaveSyncResult(ctx context.Context, s *student.Student) error {
	query := `
		UPDATE students SET
			current_rating = $1,
			max_rating = $2,
			contests = $3,
			submissions = $4,
			last_activity = $5,
			last_synced = $6,
			updated_at = $7
		WHERE id = $8
	`

	contests, submissions, err := marshalHistory(s)
	if err != nil {
		return err
	}

	result, err := r.conn.Exec(ctx, query,
		s.CurrentRating,
		s.MaxRating,
		contests,
		submissions,
		s.LastActivity,
		s.LastSynced,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync result: %w", err)
	}

	if result.RowsAffected() == 0 {
		return student.ErrStudentNotFound
	}

	return nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return student.ErrStudentNotFound
	}

	result, err := r.conn.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}

	if result.RowsAffected() == 0 {
		return student.ErrStudentNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Bulk Operations
// ─────────────────────────────────────────────────────────────────────────────

// List returns all students in creation order.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	query := `SELECT ` + selectColumns(opts.WithHistory) + ` FROM students ORDER BY created_at, id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	return r.scanStudents(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Outreach
// ─────────────────────────────────────────────────────────────────────────────

// FindInactive selects reminder candidates with the inactivity predicate
// pushed down into SQL.
func (r *StudentRepository) FindInactive(ctx context.Context, c student.InactivityCriteria) ([]*student.Student, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns(false) + `
		FROM students
		WHERE email_disabled = FALSE
		  AND reminders_sent < $1
		  AND (last_activity IS NULL OR last_activity < $2)`)

	args := []any{c.MaxReminders, c.ActiveBefore}
	if c.StudentID != "" {
		if _, err := uuid.Parse(c.StudentID); err != nil {
			return nil, nil
		}
		args = append(args, c.StudentID)
		sb.WriteString(fmt.Sprintf(" AND id = $%d", len(args)))
	}
	sb.WriteString(` ORDER BY created_at, id`)

	rows, err := r.conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find inactive students: %w", err)
	}
	defer rows.Close()

	return r.scanStudents(rows)
}

// IncrementReminders atomically bumps reminders_sent by one.
func (r *StudentRepository) IncrementReminders(ctx context.Context, id string) error {
	query := `
		UPDATE students
		SET reminders_sent = reminders_sent + 1, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment reminders: %w", err)
	}

	if result.RowsAffected() == 0 {
		return student.ErrStudentNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *StudentRepository) scanStudent(row pgx.Row) (*student.Student, error) {
	s, err := scanRow(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, student.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}
	return s, nil
}

func (r *StudentRepository) scanStudents(rows pgx.Rows) ([]*student.Student, error) {
	var students []*student.Student
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student rows: %w", err)
	}
	return students, nil
}

func scanRow(row pgx.Row) (*student.Student, error) {
	var (
		s                     student.Student
		handle                string
		contests, submissions []byte
	)

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Email,
		&s.Phone,
		&handle,
		&s.CurrentRating,
		&s.MaxRating,
		&s.LastActivity,
		&s.LastSynced,
		&s.RemindersSent,
		&s.EmailDisabled,
		&s.CreatedAt,
		&s.UpdatedAt,
		&contests,
		&submissions,
	)
	if err != nil {
		return nil, err
	}

	s.Handle = student.Handle(handle)
	if err := unmarshalHistory(&s, contests, submissions); err != nil {
		return nil, err
	}
	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONB helpers
// ─────────────────────────────────────────────────────────────────────────────

func marshalHistory(s *student.Student) (contests, submissions []byte, err error) {
	c := s.Contests
	if c == nil {
		c = []student.Contest{}
	}
	sub := s.Submissions
	if sub == nil {
		sub = []student.Submission{}
	}

	if contests, err = json.Marshal(c); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal contests: %w", err)
	}
	if submissions, err = json.Marshal(sub); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal submissions: %w", err)
	}
	return contests, submissions, nil
}

func unmarshalHistory(s *student.Student, contests, submissions []byte) error {
	s.Contests = []student.Contest{}
	s.Submissions = []student.Submission{}

	if len(contests) > 0 {
		if err := json.Unmarshal(contests, &s.Contests); err != nil {
			return fmt.Errorf("failed to unmarshal contests: %w", err)
		}
	}
	if len(submissions) > 0 {
		if err := json.Unmarshal(submissions, &s.Submissions); err != nil {
			return fmt.Errorf("failed to unmarshal submissions: %w", err)
		}
	}
	return nil
}
