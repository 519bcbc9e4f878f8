// Package models contains domain models for intervue.
package models

import (
	"time"
)

// SessionStatus represents the lifecycle stage of a candidate session.
type SessionStatus string

const (
	StatusInfoCollection SessionStatus = "info_collection"
	StatusInterviewing   SessionStatus = "interviewing"
	StatusCompleted      SessionStatus = "completed"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s SessionStatus) Rank() int {
	switch s {
	case StatusInfoCollection:
		return 0
	case StatusInterviewing:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	return s.Rank() >= 0
}

// Field names a piece of contact information collected from the candidate.
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// RequiredFields lists the contact fields in the order they are requested.
var RequiredFields = []Field{FieldName, FieldEmail, FieldPhone}

// Valid reports whether f is a known contact field.
func (f Field) Valid() bool {
	for _, rf := range RequiredFields {
		if f == rf {
			return true
		}
	}
	return false
}

// MessageType distinguishes interviewer output from candidate input.
type MessageType string

const (
	MessageBot  MessageType = "bot"
	MessageUser MessageType = "user"
)

// Message is one entry of the chat transcript.
type Message struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
}

// CandidateSession is one candidate's interview attempt.
type CandidateSession struct {
	StartedAt            time.Time     `json:"startedAt"`
	CompletedAt          *time.Time    `json:"completedAt"`
	TimerStartTime       *time.Time    `json:"timerStartTime"`
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Email                string        `json:"email"`
	Phone                string        `json:"phone"`
	ResumeText           string        `json:"resumeText"`
	Status               SessionStatus `json:"status"`
	CurrentAnswer        string        `json:"currentAnswer"`
	Summary              string        `json:"summary"`
	Messages             []Message     `json:"messages"`
	Questions            []Question    `json:"questions"`
	MissingFields        []Field       `json:"missingFields"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	Score                int           `json:"score"`
}

// NewCandidateSession creates a session in info_collection with missing
// fields computed from the supplied contact details.
func NewCandidateSession(id, name, email, phone, resumeText string, now time.Time) *CandidateSession {
	s := &CandidateSession{
		ID:                   id,
		Name:                 name,
		Email:                email,
		Phone:                phone,
		ResumeText:           resumeText,
		Status:               StatusInfoCollection,
		Messages:             []Message{},
		Questions:            []Question{},
		MissingFields:        []Field{},
		CurrentQuestionIndex: -1,
		StartedAt:            now,
	}
	for _, f := range RequiredFields {
		if s.FieldValue(f) == "" {
			s.MissingFields = append(s.MissingFields, f)
		}
	}
	return s
}

// FieldValue returns the current value of a contact field.
func (s *CandidateSession) FieldValue(f Field) string {
	switch f {
	case FieldName:
		return s.Name
	case FieldEmail:
		return s.Email
	case FieldPhone:
		return s.Phone
	}
	return ""
}

// SetField sets a contact field and drops it from MissingFields.
func (s *CandidateSession) SetField(f Field, value string) {
	switch f {
	case FieldName:
		s.Name = value
	case FieldEmail:
		s.Email = value
	case FieldPhone:
		s.Phone = value
	default:
		return
	}
	remaining := make([]Field, 0, len(s.MissingFields))
	for _, mf := range s.MissingFields {
		if mf != f {
			remaining = append(remaining, mf)
		}
	}
	s.MissingFields = remaining
}

// IsMissing reports whether f still has to be collected.
func (s *CandidateSession) IsMissing(f Field) bool {
	for _, mf := range s.MissingFields {
		if mf == f {
			return true
		}
	}
	return false
}

// CurrentQuestion returns the question the index points at, or nil when the
// index is outside the question list.
func (s *CandidateSession) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// AnsweredCount returns how many questions carry an answer.
func (s *CandidateSession) AnsweredCount() int {
	n := 0
	for i := range s.Questions {
		if s.Questions[i].Answered() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand out of a lock.
func (s *CandidateSession) Clone() *CandidateSession {
	if s == nil {
		return nil
	}
	c := *s
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.TimerStartTime = cloneTime(s.TimerStartTime)
	c.Messages = append(make([]Message, 0, len(s.Messages)), s.Messages...)
	c.MissingFields = append(make([]Field, 0, len(s.MissingFields)), s.MissingFields...)
	c.Questions = make([]Question, len(s.Questions))
	for i := range s.Questions {
		c.Questions[i] = s.Questions[i].Clone()
	}
	return &c
}

// Normalize replaces nil slices with empty ones so the JSON form always
// carries arrays.
func (s *CandidateSession) Normalize() {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Questions == nil {
		s.Questions = []Question{}
	}
	if s.MissingFields == nil {
		s.MissingFields = []Field{}
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
