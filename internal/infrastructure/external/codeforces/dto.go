package codeforces

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPER
// ══════════════════════════════════════════════════════════════════════════════

// StatusOK is the envelope status of a successful call.
const StatusOK = "OK"

// APIResponse is the envelope every Codeforces API method returns.
// Result is set when Status is "OK", Comment otherwise.
type APIResponse[T any] struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
	Result  T      `json:"result"`
}

// ══════════════════════════════════════════════════════════════════════════════
// user.rating
// ══════════════════════════════════════════════════════════════════════════════

// RatingChangeDTO is one element of user.rating.
type RatingChangeDTO struct {
	ContestID               int    `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
}

// ══════════════════════════════════════════════════════════════════════════════
// user.status
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionDTO is one element of user.status.
type SubmissionDTO struct {
	ID                  int64       `json:"id"`
	ContestID           *int        `json:"contestId,omitempty"`
	CreationTimeSeconds int64       `json:"creationTimeSeconds"`
	RelativeTimeSeconds int64       `json:"relativeTimeSeconds"`
	Problem             *ProblemDTO `json:"problem"`
	Author              *PartyDTO   `json:"author"`
	ProgrammingLanguage string      `json:"programmingLanguage"`
	Verdict             string      `json:"verdict,omitempty"`
	Testset             string      `json:"testset"`
	PassedTestCount     int         `json:"passedTestCount"`
	TimeConsumedMillis  int         `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64       `json:"memoryConsumedBytes"`
}

// ProblemDTO describes a problem. ContestID is absent for problemset-only
// entries (e.g. acmsguru); Rating is absent for unrated problems.
type ProblemDTO struct {
	ContestID      *int     `json:"contestId,omitempty"`
	ProblemsetName string   `json:"problemsetName,omitempty"`
	Index          string   `json:"index"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Points         float64  `json:"points,omitempty"`
	Rating         *int     `json:"rating,omitempty"`
	Tags           []string `json:"tags"`
}

// PartyDTO describes the submitting party.
type PartyDTO struct {
	ContestID        *int        `json:"contestId,omitempty"`
	Members          []MemberDTO `json:"members"`
	ParticipantType  string      `json:"participantType"`
	Ghost            bool        `json:"ghost"`
	StartTimeSeconds *int64      `json:"startTimeSeconds,omitempty"`
}

// MemberDTO is a party member.
type MemberDTO struct {
	Handle string `json:"handle"`
}
