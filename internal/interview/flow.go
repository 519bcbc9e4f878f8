package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/internal/ai"
	"github.com/thebtf/intervue/internal/metrics"
	"github.com/thebtf/intervue/internal/resume"
	"github.com/thebtf/intervue/pkg/models"
)

// DefaultTickInterval is how often Run samples the timer.
const DefaultTickInterval = 100 * time.Millisecond

// TimeoutAnswerText is shown in the transcript when time ran out on an empty
// answer.
const TimeoutAnswerText = "(No answer provided - time expired)"

var (
	// ErrEmptyAnswer is returned when a manual submission has no text.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrEmptyInput is returned when chat input has no text.
	ErrEmptyInput = errors.New("input is empty")
)

const (
	msgWelcomeUpload = "👋 Welcome to your AI interview! I've received your resume."
	msgWelcomeSample = "👋 Welcome to your AI interview! I've loaded sample data for you to test."
	msgAllInfo       = "✅ Great! I have all your information. Let me prepare your interview questions..."
	msgRecorded      = "✓ Answer recorded! Moving to next question..."
	msgCongrats      = "🎉 Congratulations! You've completed all questions. Let me evaluate your performance..."
)

// QuestionGenerator produces the interview questions for a résumé.
type QuestionGenerator interface {
	Generate(ctx context.Context, resumeText string) []models.Question
}

// Summarizer scores a finished interview.
type Summarizer interface {
	Summarize(ctx context.Context, name string, questions []models.Question) models.Evaluation
}

// Flow drives the candidate chat on top of a Machine. Each intent runs under
// one mutex, so a timeout and a manual submit for the same question cannot
// both take effect.
type Flow struct {
	machine   *Machine
	questions QuestionGenerator
	summaries Summarizer
	metrics   *metrics.Metrics
	onTimer   func(TimerState)
	tick      time.Duration
	mu        sync.Mutex
	lastTimer TimerState
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithMetrics records flow activity.
func WithMetrics(m *metrics.Metrics) FlowOption {
	return func(f *Flow) {
		f.metrics = m
	}
}

// WithTickInterval overrides the timer sampling interval.
func WithTickInterval(d time.Duration) FlowOption {
	return func(f *Flow) {
		if d > 0 {
			f.tick = d
		}
	}
}

// WithTimerListener registers a callback for displayed timer changes.
func WithTimerListener(fn func(TimerState)) FlowOption {
	return func(f *Flow) {
		f.onTimer = fn
	}
}

// NewFlow creates a Flow.
func NewFlow(m *Machine, questions QuestionGenerator, summaries Summarizer, opts ...FlowOption) *Flow {
	f := &Flow{
		machine:   m,
		questions: questions,
		summaries: summaries,
		tick:      DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Machine returns the underlying state machine.
func (f *Flow) Machine() *Machine {
	return f.machine
}

// StartFromResume extracts the résumé, creates and activates a session, and
// either asks for the first missing field or generates questions and starts
// the interview. Extraction failures create no session.
func (f *Flow) StartFromResume(ctx context.Context, data []byte, mimeType string) (*models.CandidateSession, error) {
	ext, err := resume.Extract(data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("extract resume: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sess, err := f.machine.CreateSession(Contact{Name: ext.Name, Email: ext.Email, Phone: ext.Phone}, ext.Text)
	if err != nil {
		return nil, err
	}
	f.metrics.SessionCreated(ctx, "upload")
	f.bot(msgWelcomeUpload)

	if err := f.promptNextLocked(ctx); err != nil {
		return nil, err
	}
	return f.machine.Store().FindByID(sess.ID)
}

// StartSample creates a session from the bundled sample résumé and starts
// the interview with the sample questions.
func (f *Flow) StartSample(ctx context.Context) (*models.CandidateSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sample := ai.SampleResume
	sess, err := f.machine.CreateSession(Contact{Name: sample.Name, Email: sample.Email, Phone: sample.Phone}, sample.Text)
	if err != nil {
		return nil, err
	}
	f.metrics.SessionCreated(ctx, "sample")
	f.bot(msgWelcomeSample)
	f.bot(msgAllInfo)

	if err := f.beginLocked(ai.SampleQuestions()); err != nil {
		return nil, err
	}
	return f.machine.Store().FindByID(sess.ID)
}

// HandleInput records chat input. During info collection it fills the first
// missing field; during the interview it replaces the scratch answer.
func (f *Flow) HandleInput(ctx context.Context, text string) error {
	input := strings.TrimSpace(text)
	if input == "" {
		return ErrEmptyInput
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.machine.Active()
	if active == nil {
		return ErrNoActiveSession
	}
	if active.Status == models.StatusCompleted {
		return fmt.Errorf("input on completed session: %w", ErrInvalidTransition)
	}
	f.machine.RecordMessage(models.MessageUser, input)

	switch active.Status {
	case models.StatusInfoCollection:
		if len(active.MissingFields) > 0 {
			field := active.MissingFields[0]
			if !validField(field, input) {
				f.bot(fmt.Sprintf("That doesn't look like a valid %s. Could you please provide your %s again?", field, field))
				return nil
			}
			if err := f.machine.SupplyField(field, input); err != nil {
				return err
			}
			f.bot(fmt.Sprintf("Thank you! %s recorded.", fieldLabel(field)))
		}
		return f.promptNextLocked(ctx)
	case models.StatusInterviewing:
		return f.machine.UpdateScratchAnswer(input)
	}
	return nil
}

// UpdateDraft replaces the scratch answer as the candidate types.
func (f *Flow) UpdateDraft(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.machine.UpdateScratchAnswer(text)
}

// Submit records a manual answer for the current question. Empty text falls
// back to the scratch answer; if both are empty ErrEmptyAnswer is returned.
// Time taken is derived from the stored timer start.
func (f *Flow) Submit(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.machine.Active()
	if active == nil {
		return ErrNoActiveSession
	}
	if active.Status != models.StatusInterviewing {
		return fmt.Errorf("submit in %s: %w", active.Status, ErrInvalidTransition)
	}
	q := active.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("submit at index %d: %w", active.CurrentQuestionIndex, ErrInvalidTransition)
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		answer = strings.TrimSpace(active.CurrentAnswer)
	}
	if answer == "" {
		return ErrEmptyAnswer
	}

	timeTaken := 0
	if active.TimerStartTime != nil {
		timeTaken = ElapsedSeconds(*active.TimerStartTime, f.machine.Now())
	}
	return f.recordAnswerLocked(ctx, active.CurrentQuestionIndex, answer, timeTaken, answer, false)
}

// Tick auto-submits the current answer when its timer has run out at now. It
// reports whether a submission happened.
func (f *Flow) Tick(ctx context.Context, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickLocked(ctx, now)
}

func (f *Flow) tickLocked(ctx context.Context, now time.Time) (bool, error) {
	active := f.machine.Active()
	if active == nil || active.Status != models.StatusInterviewing || active.TimerStartTime == nil {
		return false, nil
	}
	q := active.CurrentQuestion()
	if q == nil || q.Answered() {
		return false, nil
	}
	if RemainingSeconds(q.TimeLimit, *active.TimerStartTime, now) > 0 {
		return false, nil
	}

	display := active.CurrentAnswer
	if display == "" {
		display = TimeoutAnswerText
	}
	log.Info().Str("sessionId", active.ID).Int("question", q.ID).Msg("Question timed out, auto-submitting")
	if err := f.recordAnswerLocked(ctx, active.CurrentQuestionIndex, active.CurrentAnswer, q.TimeLimit, display, true); err != nil {
		return false, err
	}
	return true, nil
}

// StartNew deactivates the current session, leaving it in the roster.
func (f *Flow) StartNew() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.machine.DeactivateSession()
}

// Continue re-activates a session from the roster.
func (f *Flow) Continue(id string) (*models.CandidateSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.machine.ActivateSession(id); err != nil {
		return nil, err
	}
	return f.machine.Active(), nil
}

// Recover resumes an active session left between steps by a restart: it
// starts the interview for a session with nothing left to collect, completes
// one whose questions are all answered, and restarts a missing timer.
func (f *Flow) Recover(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.machine.Active()
	if active == nil {
		return nil
	}
	switch {
	case active.Status == models.StatusInfoCollection && len(active.MissingFields) == 0:
		log.Info().Str("sessionId", active.ID).Msg("Recovering session awaiting questions")
		return f.startInterviewLocked(ctx, active.ResumeText)
	case active.Status == models.StatusInterviewing && active.CurrentQuestionIndex == len(active.Questions):
		log.Info().Str("sessionId", active.ID).Msg("Recovering session awaiting summary")
		return f.finishLocked(ctx)
	case active.Status == models.StatusInterviewing && active.TimerStartTime == nil:
		if q := active.CurrentQuestion(); q != nil && !q.Answered() {
			return f.machine.StartTimer()
		}
	}
	return nil
}

// Run samples the timer until ctx is done, auto-submitting expired questions
// and notifying the timer listener when the displayed value changes.
func (f *Flow) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := f.machine.Now()
			// Skip the sample while an intent holds the lock; the next tick
			// re-reads the stored start time.
			if f.mu.TryLock() {
				if _, err := f.tickLocked(ctx, now); err != nil && !errors.Is(err, ErrAlreadyAnswered) {
					log.Warn().Err(err).Msg("Timer tick failed")
				}
				f.mu.Unlock()
			}
			f.notifyTimer(now)
		}
	}
}

func (f *Flow) notifyTimer(now time.Time) {
	if f.onTimer == nil {
		return
	}
	st, ok := f.machine.Remaining(now)
	if !ok || !st.Running || st == f.lastTimer {
		return
	}
	f.lastTimer = st
	f.onTimer(st)
}

// promptNextLocked asks for the next missing field, or starts the interview
// once nothing is missing.
func (f *Flow) promptNextLocked(ctx context.Context) error {
	active := f.machine.Active()
	if active == nil {
		return ErrNoActiveSession
	}
	if active.Status != models.StatusInfoCollection {
		return nil
	}
	if len(active.MissingFields) > 0 {
		field := active.MissingFields[0]
		f.bot(fmt.Sprintf("I noticed your %s is missing. Could you please provide your %s?", fieldLabel(field), field))
		return nil
	}
	f.bot(msgAllInfo)
	return f.startInterviewLocked(ctx, active.ResumeText)
}

func (f *Flow) startInterviewLocked(ctx context.Context, resumeText string) error {
	questions := f.questions.Generate(ctx, resumeText)
	return f.beginLocked(questions)
}

func (f *Flow) beginLocked(questions []models.Question) error {
	if err := f.machine.BeginInterview(questions); err != nil {
		return err
	}
	f.bot(readyMessage(questions))
	return f.showQuestionLocked()
}

func (f *Flow) showQuestionLocked() error {
	active := f.machine.Active()
	if active == nil {
		return ErrNoActiveSession
	}
	q := active.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("show question %d: %w", active.CurrentQuestionIndex, ErrInvalidTransition)
	}
	f.bot(fmt.Sprintf("**Question %d** (%s - %ds)\n\n%s", active.CurrentQuestionIndex+1, q.Difficulty, q.TimeLimit, q.Question))
	return f.machine.StartTimer()
}

func (f *Flow) recordAnswerLocked(ctx context.Context, index int, answer string, timeTaken int, display string, timedOut bool) error {
	if err := f.machine.SubmitAnswerAt(index, answer, timeTaken); err != nil {
		return err
	}
	f.metrics.AnswerSubmitted(ctx, timedOut)
	f.machine.RecordMessage(models.MessageUser, display)
	f.bot(msgRecorded)

	next, err := f.machine.AdvanceQuestion()
	if err != nil {
		return err
	}
	if next >= models.QuestionsPerInterview {
		return f.finishLocked(ctx)
	}
	return f.showQuestionLocked()
}

func (f *Flow) finishLocked(ctx context.Context) error {
	active := f.machine.Active()
	if active == nil {
		return ErrNoActiveSession
	}
	f.bot(msgCongrats)

	var ev models.Evaluation
	if ai.IsSampleResume(active.ResumeText) {
		ev = ai.SampleSummary(active.ID, active.Questions)
	} else {
		ev = f.summaries.Summarize(ctx, active.Name, active.Questions)
	}
	if err := f.machine.CompleteInterview(ev.Score, ev.Summary); err != nil {
		return err
	}
	score := models.ClampScore(ev.Score)
	f.metrics.InterviewCompleted(ctx, score)
	f.bot(fmt.Sprintf("## Interview Complete! 🎊\n\n**Final Score: %d/100**\n\n%s\n\nThank you for participating! You can view your detailed results in the Interviewer Dashboard.", score, ev.Summary))
	return nil
}

func (f *Flow) bot(content string) {
	f.machine.RecordMessage(models.MessageBot, content)
}

func readyMessage(questions []models.Question) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎯 Perfect! I've prepared %d questions for you:\n", len(questions)))
	for _, d := range models.Difficulties {
		n := 0
		for _, q := range questions {
			if q.Difficulty == d {
				n++
			}
		}
		sb.WriteString(fmt.Sprintf("• %d %s questions (%d seconds each)\n", n, d, d.TimeLimit()))
	}
	sb.WriteString("\nReady to begin? Let's start with Question 1!")
	return sb.String()
}

// validField checks the contact fields that have a format. Names are free text.
func validField(f models.Field, value string) bool {
	switch f {
	case models.FieldEmail:
		return resume.ValidEmail(value)
	case models.FieldPhone:
		return resume.ValidPhone(value)
	default:
		return true
	}
}

func fieldLabel(f models.Field) string {
	s := string(f)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
