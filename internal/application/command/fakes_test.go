package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// ─────────────────────────────────────────────────────────────────────────────
// memRepo
// ─────────────────────────────────────────────────────────────────────────────

type memRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student
	order    []string

	listErr      error
	incrementErr error
	saves        int
}

func newMemRepo(students ...*student.Student) *memRepo {
	r := &memRepo{students: make(map[string]*student.Student)}
	for _, s := range students {
		r.put(s)
	}
	return r
}

func (r *memRepo) put(s *student.Student) {
	cp := *s
	if _, ok := r.students[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.students[s.ID] = &cp
}

func (r *memRepo) get(id string) *student.Student {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *memRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.students {
		if existing.Email == s.Email || existing.Handle == s.Handle {
			return student.ErrStudentAlreadyExists
		}
	}
	r.put(s)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	if s := r.get(id); s != nil {
		return s, nil
	}
	return nil, student.ErrStudentNotFound
}

func (r *memRepo) FindConflicting(_ context.Context, email string, handle student.Handle, excludeID string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		s := r.students[id]
		if s.ID == excludeID {
			continue
		}
		if s.Email == email || s.Handle == handle {
			cp := *s
			return &cp, nil
		}
	}
	return nil, student.ErrStudentNotFound
}

func (r *memRepo) Save(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.students[s.ID]
	if !ok {
		return student.ErrStudentNotFound
	}
	cp := *s
	cp.RemindersSent = existing.RemindersSent
	r.students[s.ID] = &cp
	r.saves++
	return nil
}

func (r *memRepo) SaveSyncResult(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.students[s.ID]
	if !ok {
		return student.ErrStudentNotFound
	}
	cp := *existing
	cp.CurrentRating = s.CurrentRating
	cp.MaxRating = s.MaxRating
	cp.Contests = s.Contests
	cp.Submissions = s.Submissions
	cp.LastActivity = s.LastActivity
	cp.LastSynced = s.LastSynced
	cp.UpdatedAt = s.UpdatedAt
	r.students[s.ID] = &cp
	r.saves++
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[id]; !ok {
		return student.ErrStudentNotFound
	}
	delete(r.students, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memRepo) List(_ context.Context, _ student.ListOptions) ([]*student.Student, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*student.Student, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.students[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) FindInactive(_ context.Context, c student.InactivityCriteria) ([]*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.Student
	for _, id := range r.order {
		s := r.students[id]
		if c.StudentID != "" && s.ID != c.StudentID {
			continue
		}
		if s.EmailDisabled || s.RemindersSent >= c.MaxReminders {
			continue
		}
		if s.LastActivity != nil && !s.LastActivity.Before(c.ActiveBefore) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) IncrementReminders(_ context.Context, id string) error {
	if r.incrementErr != nil {
		return r.incrementErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return student.ErrStudentNotFound
	}
	s.RemindersSent++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// fakeFetcher
// ─────────────────────────────────────────────────────────────────────────────

type fakeProfile struct {
	contests    []student.Contest
	submissions []student.Submission
	ratingErr   error
	statusErr   error
}

type fakeFetcher struct {
	mu       sync.Mutex
	profiles map[string]fakeProfile
	calls    []string

	// onRating runs before a rating fetch, outside the fetcher's lock.
	onRating func(handle string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{profiles: make(map[string]fakeProfile)}
}

var errUnknownHandle = errors.New("fake: unknown handle")

func (f *fakeFetcher) FetchRatingHistory(_ context.Context, handle string) ([]student.Contest, error) {
	if f.onRating != nil {
		f.onRating(handle)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "rating:"+handle)
	p, ok := f.profiles[handle]
	if !ok {
		return nil, errUnknownHandle
	}
	if p.ratingErr != nil {
		return nil, p.ratingErr
	}
	return append([]student.Contest(nil), p.contests...), nil
}

func (f *fakeFetcher) FetchSubmissions(_ context.Context, handle string, _, _ int) ([]student.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "status:"+handle)
	p, ok := f.profiles[handle]
	if !ok {
		return nil, errUnknownHandle
	}
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return append([]student.Submission(nil), p.submissions...), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// fakeSender
// ─────────────────────────────────────────────────────────────────────────────

type fakeSender struct {
	mu     sync.Mutex
	fail   map[string]bool
	sentTo []string
}

func (f *fakeSender) SendReminder(_ context.Context, p student.ReminderProfile) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[p.Email] {
		return false
	}
	f.sentTo = append(f.sentTo, p.Email)
	return true
}

// ─────────────────────────────────────────────────────────────────────────────
// builders
// ─────────────────────────────────────────────────────────────────────────────

func mustStudent(id, handle string) *student.Student {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:     id,
		Name:   "Student " + id,
		Email:  handle + "@example.com",
		Phone:  "+10000000000",
		Handle: handle,
	}, testNow.Add(-30*24*time.Hour))
	if err != nil {
		panic(err)
	}
	return s
}

func contest(id, oldRating, newRating int, at time.Time) student.Contest {
	return student.Contest{
		ContestID:               id,
		ContestName:             "Round",
		OldRating:               oldRating,
		NewRating:               newRating,
		RatingUpdateTimeSeconds: at.Unix(),
	}
}

func submission(id int64, contestID int, index, verdict string, at time.Time) student.Submission {
	return student.Submission{
		ID:                  id,
		ContestID:           contestID,
		CreationTimeSeconds: at.Unix(),
		Problem:             &student.Problem{ContestID: contestID, Index: index, Rating: 1200},
		Verdict:             verdict,
	}
}
