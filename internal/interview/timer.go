package interview

import (
	"time"

	"github.com/thebtf/intervue/pkg/models"
)

// TimerState is the countdown view of the active question.
type TimerState struct {
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
	TimeLimit     int    `json:"timeLimit"`
	Remaining     int    `json:"remaining"`
	Running       bool   `json:"running"`
	Expired       bool   `json:"expired"`
}

// ElapsedSeconds returns whole seconds between start and now, never negative.
func ElapsedSeconds(start, now time.Time) int {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// RemainingSeconds returns limit minus the whole seconds elapsed since start.
// The result may be zero or negative once the limit has passed.
func RemainingSeconds(limit int, start, now time.Time) int {
	return limit - ElapsedSeconds(start, now)
}

// TimerFor derives the timer state from the stored start time.
func TimerFor(c *models.CandidateSession, now time.Time) TimerState {
	st := TimerState{SessionID: c.ID, QuestionIndex: c.CurrentQuestionIndex}
	q := c.CurrentQuestion()
	if c.Status != models.StatusInterviewing || q == nil {
		return st
	}
	st.TimeLimit = q.TimeLimit
	st.Remaining = q.TimeLimit
	if c.TimerStartTime == nil || q.Answered() {
		return st
	}
	remaining := RemainingSeconds(q.TimeLimit, *c.TimerStartTime, now)
	st.Running = true
	if remaining <= 0 {
		st.Expired = true
		remaining = 0
	}
	st.Remaining = remaining
	return st
}
