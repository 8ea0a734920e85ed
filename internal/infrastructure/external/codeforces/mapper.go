package codeforces

import (
	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to domain transformations
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts Codeforces DTOs to domain records. It keeps API quirks
// (optional pointers, missing problems) out of the student package.
// Filtering of malformed submissions is a domain rule and happens in
// student.ReplaceSubmissions, not here.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Contests maps a user.rating result, preserving API order.
func (m *Mapper) Contests(dtos []RatingChangeDTO) []student.Contest {
	out := make([]student.Contest, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, student.Contest{
			ContestID:               d.ContestID,
			ContestName:             d.ContestName,
			Handle:                  d.Handle,
			Rank:                    d.Rank,
			OldRating:               d.OldRating,
			NewRating:               d.NewRating,
			RatingUpdateTimeSeconds: d.RatingUpdateTimeSeconds,
		})
	}
	return out
}

// Submissions maps a user.status result, preserving API order.
func (m *Mapper) Submissions(dtos []SubmissionDTO) []student.Submission {
	out := make([]student.Submission, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, m.Submission(d))
	}
	return out
}

// Submission maps a single submission.
func (m *Mapper) Submission(d SubmissionDTO) student.Submission {
	return student.Submission{
		ID:                  d.ID,
		ContestID:           derefInt(d.ContestID),
		CreationTimeSeconds: d.CreationTimeSeconds,
		RelativeTimeSeconds: d.RelativeTimeSeconds,
		Problem:             m.problem(d.Problem),
		Author:              m.author(d.Author),
		ProgrammingLanguage: d.ProgrammingLanguage,
		Verdict:             d.Verdict,
		Testset:             d.Testset,
		PassedTestCount:     d.PassedTestCount,
		TimeConsumedMillis:  d.TimeConsumedMillis,
		MemoryConsumedBytes: d.MemoryConsumedBytes,
	}
}

func (m *Mapper) problem(d *ProblemDTO) *student.Problem {
	if d == nil {
		return nil
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return &student.Problem{
		ContestID: derefInt(d.ContestID),
		Index:     d.Index,
		Name:      d.Name,
		Type:      d.Type,
		Rating:    derefInt(d.Rating),
		Tags:      tags,
	}
}

func (m *Mapper) author(d *PartyDTO) *student.Author {
	if d == nil {
		return nil
	}
	members := make([]student.Member, 0, len(d.Members))
	for _, mem := range d.Members {
		members = append(members, student.Member{Handle: mem.Handle})
	}
	a := &student.Author{
		ContestID:       derefInt(d.ContestID),
		Members:         members,
		ParticipantType: d.ParticipantType,
		Ghost:           d.Ghost,
	}
	if d.StartTimeSeconds != nil {
		a.StartTimeSeconds = *d.StartTimeSeconds
	}
	return a
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
