package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/shared"
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

func TestHistoryRoundTrip(t *testing.T) {
	s := &student.Student{
		Contests: []student.Contest{{ContestID: 1, NewRating: 1500}},
		Submissions: []student.Submission{{
			ID:      7,
			Verdict: "OK",
			Problem: &student.Problem{ContestID: 1, Index: "A", Tags: []string{"dp"}},
			Author:  &student.Author{ParticipantType: "CONTESTANT", Members: []student.Member{{Handle: "ada"}}},
		}},
	}

	contests, submissions, err := marshalHistory(s)
	require.NoError(t, err)

	var back student.Student
	require.NoError(t, unmarshalHistory(&back, contests, submissions))
	assert.Equal(t, s.Contests, back.Contests)
	assert.Equal(t, s.Submissions, back.Submissions)
}

func TestMarshalHistory_NilBecomesEmptyArray(t *testing.T) {
	contests, submissions, err := marshalHistory(&student.Student{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(contests))
	assert.Equal(t, "[]", string(submissions))

	var back student.Student
	require.NoError(t, unmarshalHistory(&back, nil, nil))
	assert.NotNil(t, back.Contests)
	assert.NotNil(t, back.Submissions)
}

func TestSelectColumns(t *testing.T) {
	assert.True(t, strings.HasSuffix(selectColumns(true), "contests, submissions"))
	assert.Contains(t, selectColumns(false), "'[]'::jsonb")
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{{Version: 2}, {Version: 1}, {Version: 3}}
	applied := map[int]time.Time{1: time.Now()}

	pending := PendingMigrations(all, applied)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].Version)
	assert.Equal(t, 3, pending[1].Version)
}

func TestGetMigrations_Versioned(t *testing.T) {
	migrations := GetMigrations()
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
	assert.Contains(t, migrations[0].UpSQL, "idx_students_handle")
}

func TestNonUUIDLookupsAreNotFound(t *testing.T) {
	repo := NewStudentRepository(nil)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.True(t, shared.IsNotFound(err))

	err = repo.Delete(context.Background(), "not-a-uuid")
	assert.True(t, shared.IsNotFound(err))

	found, err := repo.FindInactive(context.Background(), student.InactivityCriteria{StudentID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, found)
}
