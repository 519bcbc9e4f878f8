// Package models contains domain models for intervue.
package models

// Difficulty is the difficulty bucket of an interview question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists the buckets in interview order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// QuestionsPerInterview is the fixed size of an interview.
const QuestionsPerInterview = 6

// QuestionsPerDifficulty is how many questions each bucket contributes.
const QuestionsPerDifficulty = 2

// TimeLimit returns the answer window in seconds for the difficulty.
func (d Difficulty) TimeLimit() int {
	switch d {
	case DifficultyEasy:
		return 20
	case DifficultyMedium:
		return 60
	case DifficultyHard:
		return 120
	default:
		return 0
	}
}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d.TimeLimit() > 0
}

// Question is one timed interview question.
type Question struct {
	Answer     *string    `json:"answer"`
	TimeTaken  *int       `json:"timeTaken"`
	Difficulty Difficulty `json:"difficulty"`
	Question   string     `json:"question"`
	ID         int        `json:"id"`
	TimeLimit  int        `json:"timeLimit"`
}

// NewQuestion builds an unanswered question with the time limit of its
// difficulty.
func NewQuestion(id int, difficulty Difficulty, text string) Question {
	return Question{
		ID:         id,
		Difficulty: difficulty,
		Question:   text,
		TimeLimit:  difficulty.TimeLimit(),
	}
}

// Answered reports whether the answer has been recorded.
func (q *Question) Answered() bool {
	return q.Answer != nil
}

// AnswerText returns the recorded answer or "".
func (q *Question) AnswerText() string {
	if q.Answer == nil {
		return ""
	}
	return *q.Answer
}

// Record sets answer and time taken together.
func (q *Question) Record(answer string, timeTaken int) {
	a := answer
	t := timeTaken
	q.Answer = &a
	q.TimeTaken = &t
}

// Clone returns a copy that does not share the answer pointers.
func (q Question) Clone() Question {
	c := q
	if q.Answer != nil {
		a := *q.Answer
		c.Answer = &a
	}
	if q.TimeTaken != nil {
		t := *q.TimeTaken
		c.TimeTaken = &t
	}
	return c
}

// CloneQuestions deep-copies a question list.
func CloneQuestions(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i := range qs {
		out[i] = qs[i].Clone()
	}
	return out
}
