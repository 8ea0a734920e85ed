package student

import (
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS ENGINE
// Чистые функции над сохранённой историей студента, без побочных эффектов.
// Окно включает записи строго позже момента now - days*24h.
// ══════════════════════════════════════════════════════════════════════════════

// Стандартные окна статистики.
const (
	DefaultContestWindowDays = 365
	DefaultProblemWindowDays = 30
)

// FilterByWindow оставляет записи, чья метка времени (epoch seconds)
// попадает в последние days дней относительно now.
func FilterByWindow[T any](records []T, days int, now time.Time, timestamp func(T) int64) []T {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour).Unix()
	out := make([]T, 0, len(records))
	for _, r := range records {
		if timestamp(r) > cutoff {
			out = append(out, r)
		}
	}
	return out
}

// ContestsInWindow возвращает контесты за последние days дней.
func ContestsInWindow(s *Student, days int, now time.Time) []Contest {
	return FilterByWindow(s.Contests, days, now, func(c Contest) int64 {
		return c.RatingUpdateTimeSeconds
	})
}

// SubmissionsInWindow возвращает посылки за последние days дней.
func SubmissionsInWindow(s *Student, days int, now time.Time) []Submission {
	return FilterByWindow(s.Submissions, days, now, func(sub Submission) int64 {
		return sub.CreationTimeSeconds
	})
}

// AcceptedInWindow возвращает принятые посылки (вердикт ровно "OK") за окно.
func AcceptedInWindow(s *Student, days int, now time.Time) []Submission {
	inWindow := SubmissionsInWindow(s, days, now)
	accepted := make([]Submission, 0, len(inWindow))
	for _, sub := range inWindow {
		if sub.IsAccepted() {
			accepted = append(accepted, sub)
		}
	}
	return accepted
}

// UniqueSolved дедуплицирует принятые посылки по паре (contestId, index).
// Сохраняется первая встреченная посылка.
func UniqueSolved(accepted []Submission) []Problem {
	seen := make(map[string]struct{}, len(accepted))
	out := make([]Problem, 0, len(accepted))
	for _, sub := range accepted {
		if sub.Problem == nil {
			continue
		}
		key := sub.Problem.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, *sub.Problem)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Rating buckets
// ─────────────────────────────────────────────────────────────────────────────

// RatingBucket - включительный диапазон рейтинга задач.
type RatingBucket struct {
	Label string
	Min   int
	Max   int // math.MaxInt для открытого верхнего края
}

// Contains проверяет попадание рейтинга в корзину.
func (b RatingBucket) Contains(rating int) bool {
	return rating >= b.Min && rating <= b.Max
}

// RatingBuckets - фиксированный упорядоченный набор из семи корзин.
var RatingBuckets = []RatingBucket{
	{Label: "<1200", Min: 0, Max: 1199},
	{Label: "1200-1399", Min: 1200, Max: 1399},
	{Label: "1400-1599", Min: 1400, Max: 1599},
	{Label: "1600-1899", Min: 1600, Max: 1899},
	{Label: "1900-2099", Min: 1900, Max: 2099},
	{Label: "2100-2399", Min: 2100, Max: 2399},
	{Label: "2400+", Min: 2400, Max: math.MaxInt},
}

// BucketCount - число решённых задач в корзине.
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Problem stats
// ─────────────────────────────────────────────────────────────────────────────

// ProblemStats - агрегаты по уникальным решённым задачам за окно.
type ProblemStats struct {
	Days               int           `json:"days"`
	TotalSolved        int           `json:"totalSolved"`
	AvgRating          int           `json:"avgRating"`
	MaxRating          int           `json:"maxRating"`
	AvgPerDay          float64       `json:"avgPerDay"`
	RatingDistribution []BucketCount `json:"ratingDistribution"`
}

// ComputeProblemStats считает статистику решённых задач за последние days дней.
func ComputeProblemStats(s *Student, days int, now time.Time) ProblemStats {
	solved := UniqueSolved(AcceptedInWindow(s, days, now))

	stats := ProblemStats{
		Days:               days,
		TotalSolved:        len(solved),
		RatingDistribution: make([]BucketCount, len(RatingBuckets)),
	}
	for i, b := range RatingBuckets {
		stats.RatingDistribution[i] = BucketCount{Label: b.Label}
	}

	var sum, rated int
	for _, p := range solved {
		if !p.IsRated() {
			continue
		}
		sum += p.Rating
		rated++
		if p.Rating > stats.MaxRating {
			stats.MaxRating = p.Rating
		}
		for i, b := range RatingBuckets {
			if b.Contains(p.Rating) {
				stats.RatingDistribution[i].Count++
				break
			}
		}
	}

	if rated > 0 {
		stats.AvgRating = int(math.Round(float64(sum) / float64(rated)))
	}
	if days > 0 {
		stats.AvgPerDay = math.Round(float64(len(solved))/float64(days)*10) / 10
	}

	return stats
}

// DistributionMap возвращает распределение в виде map label -> count.
func (ps ProblemStats) DistributionMap() map[string]int {
	m := make(map[string]int, len(ps.RatingDistribution))
	for _, b := range ps.RatingDistribution {
		m[b.Label] = b.Count
	}
	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Heatmap
// ─────────────────────────────────────────────────────────────────────────────

// SubmissionHeatmap считает принятые посылки по календарным дням (YYYY-MM-DD в loc).
func SubmissionHeatmap(s *Student, days int, now time.Time, loc *time.Location) map[string]int {
	if loc == nil {
		loc = time.UTC
	}
	heat := make(map[string]int)
	for _, sub := range AcceptedInWindow(s, days, now) {
		heat[sub.CreatedAt().In(loc).Format("2006-01-02")]++
	}
	return heat
}
