// Package dashboard provides read-only analytics over the candidate roster.
package dashboard

import (
	"math"
	"sort"
	"strings"

	"github.com/thebtf/intervue/pkg/models"
)

// Recommendation tiers.
const (
	HighlyRecommended = "Highly Recommended"
	Recommended       = "Recommended"
	Consider          = "Consider"
	NotRecommended    = "Not Recommended"
)

// Efficiency scores by fraction of the time limit used.
const (
	fastEfficiency   = 100
	steadyEfficiency = 80
	slowEfficiency   = 60

	fastRatio   = 0.5
	steadyRatio = 0.75
	targetRatio = 0.75
)

// CandidateRef identifies a candidate in the overview.
type CandidateRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Overview is the roster-wide summary.
type Overview struct {
	TopPerformer       *CandidateRef               `json:"topPerformer"`
	DifficultyStats    map[models.Difficulty][]int `json:"difficultyStats"`
	TotalCandidates    int                         `json:"totalCandidates"`
	CompletedCount     int                         `json:"completedCount"`
	CompletionRate     int                         `json:"completionRate"`
	AvgScore           int                         `json:"avgScore"`
	AvgTimePerQuestion int                         `json:"avgTimePerQuestion"`
}

// CandidateAnalytics is the per-candidate breakdown of a completed session.
type CandidateAnalytics struct {
	DifficultyPerformance map[models.Difficulty]int `json:"difficultyPerformance"`
	Recommendation        string                    `json:"recommendation"`
	RecommendationColor   string                    `json:"recommendationColor"`
	Answered              int                       `json:"answered"`
	Total                 int                       `json:"total"`
	AnswerRate            int                       `json:"answerRate"`
	TimeManagement        int                       `json:"timeManagement"`
}

// Summarize computes the overview of a roster snapshot. Candidates are read
// in roster order and never modified.
func Summarize(candidates []*models.CandidateSession) Overview {
	ov := Overview{
		TotalCandidates: len(candidates),
		DifficultyStats: make(map[models.Difficulty][]int, len(models.Difficulties)),
	}
	for _, d := range models.Difficulties {
		ov.DifficultyStats[d] = []int{}
	}

	var (
		scoreSum  int
		timeSum   int
		timeCount int
	)
	for _, c := range candidates {
		if c == nil || c.Status != models.StatusCompleted {
			continue
		}
		ov.CompletedCount++
		scoreSum += c.Score
		if ov.TopPerformer == nil || c.Score > ov.TopPerformer.Score {
			ov.TopPerformer = &CandidateRef{ID: c.ID, Name: c.Name, Score: c.Score}
		}
		for i := range c.Questions {
			q := &c.Questions[i]
			if !q.Answered() || q.TimeTaken == nil {
				continue
			}
			timeSum += *q.TimeTaken
			timeCount++
			if q.AnswerText() != "" {
				if _, ok := ov.DifficultyStats[q.Difficulty]; ok {
					ov.DifficultyStats[q.Difficulty] = append(ov.DifficultyStats[q.Difficulty], *q.TimeTaken)
				}
			}
		}
	}

	ov.CompletionRate = percent(ov.CompletedCount, ov.TotalCandidates)
	if ov.CompletedCount > 0 {
		ov.AvgScore = roundDiv(scoreSum, ov.CompletedCount)
	}
	if timeCount > 0 {
		ov.AvgTimePerQuestion = roundDiv(timeSum, timeCount)
	}
	return ov
}

// Analyze returns the breakdown for a completed candidate. It reports false
// for sessions that are not completed or have no questions.
func Analyze(c *models.CandidateSession) (*CandidateAnalytics, bool) {
	if c == nil || c.Status != models.StatusCompleted || len(c.Questions) == 0 {
		return nil, false
	}

	a := &CandidateAnalytics{
		Total:                 len(c.Questions),
		DifficultyPerformance: make(map[models.Difficulty]int, len(models.Difficulties)),
	}
	sums := make(map[models.Difficulty]int, len(models.Difficulties))
	counts := make(map[models.Difficulty]int, len(models.Difficulties))
	var ratioSum float64

	for i := range c.Questions {
		q := &c.Questions[i]
		if q.TimeTaken != nil && q.TimeLimit > 0 {
			ratioSum += float64(*q.TimeTaken) / float64(q.TimeLimit)
		}
		if q.AnswerText() == "" {
			continue
		}
		a.Answered++
		if q.Difficulty.Valid() {
			counts[q.Difficulty]++
			sums[q.Difficulty] += Efficiency(*q)
		}
	}

	for _, d := range models.Difficulties {
		if counts[d] > 0 {
			a.DifficultyPerformance[d] = roundDiv(sums[d], counts[d])
		} else {
			a.DifficultyPerformance[d] = 0
		}
	}

	a.AnswerRate = percent(a.Answered, a.Total)
	avgRatio := ratioSum / float64(a.Total)
	a.TimeManagement = int(math.Round((1 - math.Abs(avgRatio-targetRatio)) * 100))
	a.Recommendation, a.RecommendationColor = Recommend(c.Score)
	return a, true
}

// Efficiency scores how quickly a question was answered: 100 within half the
// limit, 80 within three quarters, otherwise 60.
func Efficiency(q models.Question) int {
	taken := 0
	if q.TimeTaken != nil {
		taken = *q.TimeTaken
	}
	limit := float64(q.TimeLimit)
	switch {
	case float64(taken) <= limit*fastRatio:
		return fastEfficiency
	case float64(taken) <= limit*steadyRatio:
		return steadyEfficiency
	default:
		return slowEfficiency
	}
}

// Recommend maps a score to a tier and a display color.
func Recommend(score int) (tier, color string) {
	switch {
	case score >= 80:
		return HighlyRecommended, "success"
	case score >= 65:
		return Recommended, "success"
	case score >= 50:
		return Consider, "warning"
	default:
		return NotRecommended, "error"
	}
}

// Filter returns the candidates with the given status. An empty status
// returns all candidates.
func Filter(candidates []*models.CandidateSession, status models.SessionStatus) []*models.CandidateSession {
	if status == "" {
		return candidates
	}
	out := make([]*models.CandidateSession, 0, len(candidates))
	for _, c := range candidates {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// SortKey names a roster table column.
type SortKey string

const (
	SortName      SortKey = "name"
	SortScore     SortKey = "score"
	SortStartedAt SortKey = "startedAt"
)

// ParseSort reads "key" or "-key" (descending). Unknown keys keep roster order.
func ParseSort(s string) (SortKey, bool) {
	desc := strings.HasPrefix(s, "-")
	return SortKey(strings.TrimPrefix(s, "-")), desc
}

// Sort orders candidates in place, stable with respect to roster order.
func Sort(candidates []*models.CandidateSession, key SortKey, desc bool) {
	var less func(a, b *models.CandidateSession) bool
	switch key {
	case SortName:
		less = func(a, b *models.CandidateSession) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortScore:
		less = func(a, b *models.CandidateSession) bool { return a.Score < b.Score }
	case SortStartedAt:
		less = func(a, b *models.CandidateSession) bool { return a.StartedAt.Before(b.StartedAt) }
	default:
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if desc {
			return less(candidates[j], candidates[i])
		}
		return less(candidates[i], candidates[j])
	})
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

func roundDiv(sum, n int) int {
	return int(math.Round(float64(sum) / float64(n)))
}
