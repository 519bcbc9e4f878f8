// Package interview provides the candidate session state machine and the
// chat flow that drives it.
package interview

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/pkg/models"
)

var (
	// ErrNoActiveSession is returned when an operation needs an active session.
	ErrNoActiveSession = roster.ErrNoActiveSession
	// ErrInvalidTransition is returned when an operation is not allowed in the
	// session's current state. The session is left unchanged.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrAlreadyAnswered is returned when a question index was already answered.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrInvalidInput is returned for structurally invalid arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// Contact holds the contact fields extracted from a résumé.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Machine applies the session lifecycle operations to the active session of
// a roster. Every operation validates before mutating and runs under the
// roster's write lock, so operations never interleave.
type Machine struct {
	store *roster.Store
	now   func() time.Time
	newID func() string
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock overrides the clock.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.now = now
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) MachineOption {
	return func(m *Machine) {
		m.newID = gen
	}
}

// NewMachine creates a Machine over the given roster.
func NewMachine(store *roster.Store, opts ...MachineOption) *Machine {
	m := &Machine{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the machine clock's current time.
func (m *Machine) Now() time.Time {
	return m.now()
}

// Store returns the underlying roster.
func (m *Machine) Store() *roster.Store {
	return m.store
}

// CreateSession appends a new session built from the extracted contact
// fields and makes it active. Missing fields are computed in request order.
func (m *Machine) CreateSession(contact Contact, resumeText string) (*models.CandidateSession, error) {
	for _, v := range []string{contact.Name, contact.Email, contact.Phone, resumeText} {
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("create session: %w: text is not valid UTF-8", ErrInvalidInput)
		}
	}

	sess := models.NewCandidateSession(
		m.newID(),
		strings.TrimSpace(contact.Name),
		strings.TrimSpace(contact.Email),
		strings.TrimSpace(contact.Phone),
		resumeText,
		m.now(),
	)
	if err := m.store.Insert(sess, true); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("sessionId", sess.ID).
		Int("missing", len(sess.MissingFields)).
		Msg("Candidate session created")
	return sess.Clone(), nil
}

// RecordMessage appends a transcript entry to the active session. It reports
// false, and does nothing, when there is no active session.
func (m *Machine) RecordMessage(msgType models.MessageType, content string) bool {
	now := m.now()
	err := m.store.UpdateActive(func(c *models.CandidateSession) error {
		c.Messages = append(c.Messages, models.Message{Type: msgType, Content: content, Timestamp: now})
		return nil
	})
	return err == nil
}

// SupplyField fills a missing contact field during info collection.
func (m *Machine) SupplyField(field models.Field, value string) error {
	value = strings.TrimSpace(value)
	if !field.Valid() || value == "" {
		return fmt.Errorf("supply %q: %w", field, ErrInvalidInput)
	}
	return m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInfoCollection {
			return fmt.Errorf("supply %q in %s: %w", field, c.Status, ErrInvalidTransition)
		}
		if !c.IsMissing(field) {
			return fmt.Errorf("supply %q: not missing: %w", field, ErrInvalidTransition)
		}
		c.SetField(field, value)
		return nil
	})
}

// BeginInterview fixes the question set and moves the active session from
// info_collection to interviewing. Exactly QuestionsPerInterview questions
// are required.
func (m *Machine) BeginInterview(questions []models.Question) error {
	if len(questions) != models.QuestionsPerInterview {
		return fmt.Errorf("begin interview with %d questions: %w", len(questions), ErrInvalidInput)
	}
	fixed := make([]models.Question, len(questions))
	for i, q := range questions {
		if !q.Difficulty.Valid() || strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("begin interview: question %d: %w", i+1, ErrInvalidInput)
		}
		fixed[i] = models.NewQuestion(i+1, q.Difficulty, q.Question)
	}

	var id string
	err := m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInfoCollection || len(c.Questions) != 0 {
			return fmt.Errorf("begin interview in %s: %w", c.Status, ErrInvalidTransition)
		}
		if len(c.MissingFields) != 0 {
			return fmt.Errorf("begin interview with %d missing fields: %w", len(c.MissingFields), ErrInvalidTransition)
		}
		c.Questions = fixed
		c.Status = models.StatusInterviewing
		c.CurrentQuestionIndex = 0
		id = c.ID
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("sessionId", id).Msg("Interview started")
	return nil
}

// StartTimer starts the countdown for the pending question.
func (m *Machine) StartTimer() error {
	now := m.now()
	return m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInterviewing {
			return fmt.Errorf("start timer in %s: %w", c.Status, ErrInvalidTransition)
		}
		q := c.CurrentQuestion()
		if q == nil || q.Answered() {
			return fmt.Errorf("start timer at index %d: %w", c.CurrentQuestionIndex, ErrInvalidTransition)
		}
		c.TimerStartTime = &now
		return nil
	})
}

// UpdateScratchAnswer overwrites the in-progress answer.
func (m *Machine) UpdateScratchAnswer(text string) error {
	return m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInterviewing {
			return fmt.Errorf("update answer in %s: %w", c.Status, ErrInvalidTransition)
		}
		c.CurrentAnswer = text
		return nil
	})
}

// SubmitAnswer records an answer for the current question.
func (m *Machine) SubmitAnswer(answer string, timeTaken int) error {
	return m.submit(-1, answer, timeTaken)
}

// SubmitAnswerAt records an answer only if index is still the current,
// unanswered question. A second submission for the same index returns
// ErrAlreadyAnswered and leaves the first answer in place.
func (m *Machine) SubmitAnswerAt(index int, answer string, timeTaken int) error {
	if index < 0 {
		return fmt.Errorf("submit at index %d: %w", index, ErrInvalidInput)
	}
	return m.submit(index, answer, timeTaken)
}

func (m *Machine) submit(index int, answer string, timeTaken int) error {
	return m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInterviewing {
			return fmt.Errorf("submit in %s: %w", c.Status, ErrInvalidTransition)
		}
		if index >= 0 && index != c.CurrentQuestionIndex {
			if index < len(c.Questions) && c.Questions[index].Answered() {
				return fmt.Errorf("submit at index %d: %w", index, ErrAlreadyAnswered)
			}
			return fmt.Errorf("submit at index %d, current %d: %w", index, c.CurrentQuestionIndex, ErrInvalidTransition)
		}
		q := c.CurrentQuestion()
		if q == nil {
			return fmt.Errorf("submit at index %d: %w", c.CurrentQuestionIndex, ErrInvalidTransition)
		}
		if q.Answered() {
			return fmt.Errorf("submit at index %d: %w", c.CurrentQuestionIndex, ErrAlreadyAnswered)
		}
		q.Record(answer, clamp(timeTaken, 0, q.TimeLimit))
		c.CurrentAnswer = ""
		c.TimerStartTime = nil
		return nil
	})
}

// AdvanceQuestion moves the pointer past an answered question and returns
// the new index. Reaching len(questions) does not complete the interview.
func (m *Machine) AdvanceQuestion() (int, error) {
	var next int
	err := m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInterviewing {
			return fmt.Errorf("advance in %s: %w", c.Status, ErrInvalidTransition)
		}
		q := c.CurrentQuestion()
		if q == nil || !q.Answered() {
			return fmt.Errorf("advance from unanswered index %d: %w", c.CurrentQuestionIndex, ErrInvalidTransition)
		}
		c.CurrentQuestionIndex++
		next = c.CurrentQuestionIndex
		return nil
	})
	return next, err
}

// CompleteInterview closes the interview once every question is behind the
// pointer. The score is clamped to 0..100.
func (m *Machine) CompleteInterview(score int, summary string) error {
	now := m.now()
	var id string
	err := m.store.UpdateActive(func(c *models.CandidateSession) error {
		if c.Status != models.StatusInterviewing {
			return fmt.Errorf("complete in %s: %w", c.Status, ErrInvalidTransition)
		}
		if c.CurrentQuestionIndex != len(c.Questions) {
			return fmt.Errorf("complete at index %d of %d: %w", c.CurrentQuestionIndex, len(c.Questions), ErrInvalidTransition)
		}
		c.Status = models.StatusCompleted
		c.Score = models.ClampScore(score)
		c.Summary = summary
		c.CompletedAt = &now
		c.TimerStartTime = nil
		c.CurrentAnswer = ""
		id = c.ID
		return nil
	})
	if err != nil {
		return err
	}
	log.Info().Str("sessionId", id).Int("score", models.ClampScore(score)).Msg("Interview completed")
	return nil
}

// DeactivateSession clears the active pointer. The session stays in the roster.
func (m *Machine) DeactivateSession() {
	m.store.ClearActive()
}

// ActivateSession makes an existing roster entry the active session.
func (m *Machine) ActivateSession(id string) error {
	return m.store.SetActive(id)
}

// Active returns a copy of the active session, or nil.
func (m *Machine) Active() *models.CandidateSession {
	return m.store.Active()
}

// Remaining returns the timer view of the active session at now.
func (m *Machine) Remaining(now time.Time) (TimerState, bool) {
	c := m.store.Active()
	if c == nil {
		return TimerState{}, false
	}
	return TimerFor(c, now), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
