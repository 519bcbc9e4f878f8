package interview

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/intervue/internal/ai"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/pkg/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

var fullContact = Contact{Name: "Jane Roe", Email: "jane@example.com", Phone: "5551234567"}

// MachineSuite is a test suite for the session state machine.
type MachineSuite struct {
	suite.Suite
	store   *roster.Store
	clock   *fakeClock
	machine *Machine
}

func (s *MachineSuite) SetupTest() {
	s.store = roster.NewStore(roster.NewMemoryBackend())
	s.Require().NoError(s.store.Load(context.Background()))
	s.clock = newFakeClock()
	s.machine = NewMachine(s.store, WithClock(s.clock.Now), WithIDGenerator(sequentialIDs()))
}

func (s *MachineSuite) TearDownTest() {
	_ = s.store.Close(context.Background())
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) startInterview() *models.CandidateSession {
	_, err := s.machine.CreateSession(fullContact, "resume")
	s.Require().NoError(err)
	s.Require().NoError(s.machine.BeginInterview(ai.DefaultBank().Questions()))
	return s.machine.Active()
}

// TestCreateSession_AllFields tests that a complete résumé can go straight
// to the interview.
func (s *MachineSuite) TestCreateSession_AllFields() {
	sess, err := s.machine.CreateSession(fullContact, "resume")
	s.Require().NoError(err)
	s.Equal("session-1", sess.ID)
	s.Empty(sess.MissingFields)
	s.Equal(models.StatusInfoCollection, sess.Status)
	s.Equal(sess.ID, s.store.ActiveID())

	s.Require().NoError(s.machine.BeginInterview(ai.DefaultBank().Questions()))
	active := s.machine.Active()
	s.Equal(models.StatusInterviewing, active.Status)
	s.Equal(0, active.CurrentQuestionIndex)
	s.Empty(active.MissingFields)
}

// TestCreateSession_MissingFields tests field detection and trimming.
func (s *MachineSuite) TestCreateSession_MissingFields() {
	sess, err := s.machine.CreateSession(Contact{Name: "  Jane Roe ", Phone: " "}, "resume")
	s.Require().NoError(err)
	s.Equal("Jane Roe", sess.Name)
	s.Equal([]models.Field{models.FieldEmail, models.FieldPhone}, sess.MissingFields)
}

// TestCreateSession_InvalidInput tests structural validation.
func (s *MachineSuite) TestCreateSession_InvalidInput() {
	_, err := s.machine.CreateSession(Contact{Name: "bad\xff"}, "resume")
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.machine.CreateSession(fullContact, "\xfe")
	s.ErrorIs(err, ErrInvalidInput)
	s.Equal(0, s.store.Len())
}

// TestRecordMessage_NoActive tests that messages without a session are ignored.
func (s *MachineSuite) TestRecordMessage_NoActive() {
	s.False(s.machine.RecordMessage(models.MessageBot, "hello"))

	_, err := s.machine.CreateSession(fullContact, "")
	s.Require().NoError(err)
	s.True(s.machine.RecordMessage(models.MessageUser, "hi"))
	msgs := s.machine.Active().Messages
	s.Require().Len(msgs, 1)
	s.Equal(models.MessageUser, msgs[0].Type)
	s.Equal(s.clock.Now(), msgs[0].Timestamp)
}

// TestSupplyField tests info collection rules.
func (s *MachineSuite) TestSupplyField() {
	s.ErrorIs(s.machine.SupplyField(models.FieldName, "x"), ErrNoActiveSession)

	_, err := s.machine.CreateSession(Contact{Name: "Jane Roe"}, "")
	s.Require().NoError(err)

	s.ErrorIs(s.machine.SupplyField(models.FieldEmail, "  "), ErrInvalidInput)
	s.ErrorIs(s.machine.SupplyField(models.Field("address"), "x"), ErrInvalidInput)
	s.ErrorIs(s.machine.SupplyField(models.FieldName, "Other"), ErrInvalidTransition)

	s.Require().NoError(s.machine.SupplyField(models.FieldPhone, "5551234567"))
	s.Require().NoError(s.machine.SupplyField(models.FieldEmail, "jane@example.com"))
	active := s.machine.Active()
	s.Empty(active.MissingFields)
	s.Equal("Jane Roe", active.Name)

	s.Require().NoError(s.machine.BeginInterview(ai.DefaultBank().Questions()))
	s.ErrorIs(s.machine.SupplyField(models.FieldEmail, "new@example.com"), ErrInvalidTransition)
}

// TestBeginInterview tests the one-shot start rules.
func (s *MachineSuite) TestBeginInterview() {
	s.ErrorIs(s.machine.BeginInterview(ai.DefaultBank().Questions()), ErrNoActiveSession)

	_, err := s.machine.CreateSession(Contact{Name: "Jane Roe"}, "")
	s.Require().NoError(err)

	s.ErrorIs(s.machine.BeginInterview(ai.DefaultBank().Questions()[:5]), ErrInvalidInput)
	s.ErrorIs(s.machine.BeginInterview(ai.DefaultBank().Questions()), ErrInvalidTransition, "fields still missing")

	s.Require().NoError(s.machine.SupplyField(models.FieldEmail, "jane@example.com"))
	s.Require().NoError(s.machine.SupplyField(models.FieldPhone, "5551234567"))

	qs := ai.DefaultBank().Questions()
	qs[0].ID = 42
	qs[0].TimeLimit = 999
	qs[0].Record("pre-answered", 3)
	s.Require().NoError(s.machine.BeginInterview(qs))

	active := s.machine.Active()
	s.Equal(1, active.Questions[0].ID)
	s.Equal(20, active.Questions[0].TimeLimit)
	s.Nil(active.Questions[0].Answer)

	s.ErrorIs(s.machine.BeginInterview(ai.DefaultBank().Questions()), ErrInvalidTransition)
}

// TestSubmitTwiceKeepsFirst tests at-most-once answers per question index.
func (s *MachineSuite) TestSubmitTwiceKeepsFirst() {
	s.startInterview()
	s.Require().NoError(s.machine.StartTimer())

	s.Require().NoError(s.machine.SubmitAnswerAt(0, "first", 7))
	s.ErrorIs(s.machine.SubmitAnswerAt(0, "second", 20), ErrAlreadyAnswered)
	s.ErrorIs(s.machine.SubmitAnswer("third", 1), ErrAlreadyAnswered)

	_, err := s.machine.AdvanceQuestion()
	s.Require().NoError(err)
	s.ErrorIs(s.machine.SubmitAnswerAt(0, "late", 20), ErrAlreadyAnswered)
	s.ErrorIs(s.machine.SubmitAnswerAt(3, "early", 20), ErrInvalidTransition)

	q := s.machine.Active().Questions[0]
	s.Equal("first", q.AnswerText())
	s.Require().NotNil(q.TimeTaken)
	s.Equal(7, *q.TimeTaken)
	s.Nil(s.machine.Active().Questions[1].Answer)
}

// TestSubmitClearsScratchAndTimer tests side effects of submission.
func (s *MachineSuite) TestSubmitClearsScratchAndTimer() {
	s.startInterview()
	s.Require().NoError(s.machine.StartTimer())
	s.Require().NoError(s.machine.UpdateScratchAnswer("draft"))
	s.Equal("draft", s.machine.Active().CurrentAnswer)

	s.Require().NoError(s.machine.SubmitAnswer("final", 500))
	active := s.machine.Active()
	s.Equal("", active.CurrentAnswer)
	s.Nil(active.TimerStartTime)
	s.Equal(20, *active.Questions[0].TimeTaken, "time taken is clamped to the limit")
}

// TestAdvanceAndComplete tests that the index reaches len(questions) without
// auto-completion and that completion is one-shot.
func (s *MachineSuite) TestAdvanceAndComplete() {
	s.startInterview()

	_, err := s.machine.AdvanceQuestion()
	s.ErrorIs(err, ErrInvalidTransition, "cannot advance past an unanswered question")
	s.ErrorIs(s.machine.CompleteInterview(80, "early"), ErrInvalidTransition)

	for i := 0; i < models.QuestionsPerInterview; i++ {
		s.Require().NoError(s.machine.SubmitAnswer(fmt.Sprintf("a%d", i), 5))
		next, err := s.machine.AdvanceQuestion()
		s.Require().NoError(err)
		s.Equal(i+1, next)
	}

	active := s.machine.Active()
	s.Equal(models.StatusInterviewing, active.Status)
	s.Equal(6, active.CurrentQuestionIndex)
	s.Nil(active.CurrentQuestion())

	s.ErrorIs(s.machine.SubmitAnswer("extra", 1), ErrInvalidTransition)
	s.ErrorIs(s.machine.StartTimer(), ErrInvalidTransition)
	_, err = s.machine.AdvanceQuestion()
	s.ErrorIs(err, ErrInvalidTransition)

	s.clock.Advance(time.Minute)
	s.Require().NoError(s.machine.CompleteInterview(150, "done"))
	active = s.machine.Active()
	s.Equal(models.StatusCompleted, active.Status)
	s.Equal(100, active.Score)
	s.Equal("done", active.Summary)
	s.Require().NotNil(active.CompletedAt)
	s.Equal(s.clock.Now(), *active.CompletedAt)

	s.ErrorIs(s.machine.CompleteInterview(10, "again"), ErrInvalidTransition)
	s.ErrorIs(s.machine.UpdateScratchAnswer("x"), ErrInvalidTransition)
	s.Equal(100, s.machine.Active().Score)
}

// TestStatusNeverRegresses drives every operation in every state and checks
// the lifecycle invariants after each step.
func (s *MachineSuite) TestStatusNeverRegresses() {
	_, err := s.machine.CreateSession(Contact{Name: "Jane Roe"}, "resume")
	s.Require().NoError(err)

	ops := []func(){
		func() { _ = s.machine.SupplyField(models.FieldEmail, "jane@example.com") },
		func() { _ = s.machine.BeginInterview(ai.DefaultBank().Questions()) },
		func() { _ = s.machine.SupplyField(models.FieldPhone, "5551234567") },
		func() { _ = s.machine.StartTimer() },
		func() { _ = s.machine.UpdateScratchAnswer("x") },
		func() { _ = s.machine.SubmitAnswer("answer", 3) },
		func() { _, _ = s.machine.AdvanceQuestion() },
		func() { _ = s.machine.CompleteInterview(50, "s") },
		func() { _ = s.machine.SubmitAnswerAt(0, "again", 3) },
		func() { s.machine.RecordMessage(models.MessageBot, "m") },
	}

	prev := -1
	for round := 0; round < 12; round++ {
		for _, op := range ops {
			op()
			c := s.machine.Active()
			s.Require().NotNil(c)
			s.GreaterOrEqual(c.Status.Rank(), prev)
			prev = c.Status.Rank()
			s.GreaterOrEqual(c.CurrentQuestionIndex, -1)
			s.LessOrEqual(c.CurrentQuestionIndex, len(c.Questions))
			s.Contains([]int{0, models.QuestionsPerInterview}, len(c.Questions))
			s.Equal(c.Status == models.StatusInfoCollection, len(c.MissingFields) > 0 || len(c.Questions) == 0)
			if c.Status != models.StatusInfoCollection {
				s.Empty(c.MissingFields)
			}
		}
	}
	s.Equal(models.StatusCompleted, s.machine.Active().Status)
}

// TestDeactivateAndActivate tests the active pointer operations.
func (s *MachineSuite) TestDeactivateAndActivate() {
	first, err := s.machine.CreateSession(fullContact, "")
	s.Require().NoError(err)
	_, err = s.machine.CreateSession(fullContact, "")
	s.Require().NoError(err)

	s.machine.DeactivateSession()
	s.Nil(s.machine.Active())
	s.Equal(2, s.store.Len())

	s.Require().NoError(s.machine.ActivateSession(first.ID))
	s.Equal(first.ID, s.machine.Active().ID)
	s.ErrorIs(s.machine.ActivateSession("nope"), roster.ErrNotFound)
}

// TestRemaining tests the timer view.
func (s *MachineSuite) TestRemaining() {
	_, ok := s.machine.Remaining(s.clock.Now())
	s.False(ok)

	s.startInterview()
	st, ok := s.machine.Remaining(s.clock.Now())
	s.Require().True(ok)
	s.False(st.Running)
	s.Equal(20, st.Remaining)

	s.Require().NoError(s.machine.StartTimer())
	st, _ = s.machine.Remaining(s.clock.Now().Add(7900 * time.Millisecond))
	s.True(st.Running)
	s.Equal(13, st.Remaining)
	s.False(st.Expired)

	st, _ = s.machine.Remaining(s.clock.Now().Add(25 * time.Second))
	s.Equal(0, st.Remaining)
	s.True(st.Expired)
}
