package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/intervue/internal/dashboard"
	"github.com/thebtf/intervue/internal/interview"
	"github.com/thebtf/intervue/internal/resume"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/pkg/models"
)

const (
	// MaxResumeBytes caps the uploaded résumé size.
	MaxResumeBytes = 10 << 20
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
)

const resumeFormField = "resume"

type textRequest struct {
	Text string `json:"text"`
}

type submitRequest struct {
	Answer string `json:"answer"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// sessionResponse is the active-session view: the session and its timer.
type sessionResponse struct {
	Session *models.CandidateSession `json:"session"`
	Timer   *interview.TimerState    `json:"timer,omitempty"`
}

// candidateRow is one line of the interviewer's table.
type candidateRow struct {
	StartedAt   time.Time            `json:"startedAt"`
	CompletedAt *time.Time           `json:"completedAt"`
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Email       string               `json:"email"`
	Phone       string               `json:"phone"`
	Status      models.SessionStatus `json:"status"`
	Answered    int                  `json:"answered"`
	Total       int                  `json:"total"`
	Score       int                  `json:"score"`
	Active      bool                 `json:"active"`
}

type candidateDetail struct {
	Candidate *models.CandidateSession      `json:"candidate"`
	Analytics *dashboard.CandidateAnalytics `json:"analytics"`
}

type evaluationResponse struct {
	models.AnswerEvaluation
	SessionID  string `json:"sessionId"`
	QuestionID int    `json:"questionId"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ready":   s.ready.Load(),
		"version": s.version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleCreateSession accepts a multipart upload with the résumé in the
// "resume" field.
func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxResumeBytes+(1<<16))
	if err := r.ParseMultipartForm(MaxResumeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(resumeFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing resume file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxResumeBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read resume: "+err.Error())
		return
	}
	if len(data) > MaxResumeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "resume too large")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = resume.MimeFromFilename(header.Filename)
	}

	session, err := s.flow.StartFromResume(r.Context(), data, mimeType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	log.Info().Str("sessionId", session.ID).Str("mime", mimeType).Int("bytes", len(data)).Msg("Session created from resume")
	writeJSON(w, http.StatusCreated, s.sessionView(session))
}

func (s *Service) handleSampleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.flow.StartSample(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(session))
}

func (s *Service) handleActiveSession(w http.ResponseWriter, _ *http.Request) {
	active := s.flow.Machine().Active()
	if active == nil {
		s.writeDomainError(w, interview.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(active))
}

func (s *Service) handleInput(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.flow.HandleInput(r.Context(), req.Text); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeActive(w)
}

func (s *Service) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.flow.UpdateDraft(req.Text); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.flow.Submit(r.Context(), req.Answer); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeActive(w)
}

func (s *Service) handleDeactivate(w http.ResponseWriter, _ *http.Request) {
	s.flow.StartNew()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.flow.Continue(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(session))
}

// handleListCandidates serves the roster table. Query: status filter and
// sort ("name", "score", "startedAt", "-" prefix for descending).
func (s *Service) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates := s.store.List()

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.SessionStatus(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		candidates = dashboard.Filter(candidates, status)
	}
	if raw := r.URL.Query().Get("sort"); raw != "" {
		key, desc := dashboard.ParseSort(raw)
		dashboard.Sort(candidates, key, desc)
	}

	activeID := s.store.ActiveID()
	rows := make([]candidateRow, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, candidateRow{
			ID:          c.ID,
			Name:        c.Name,
			Email:       c.Email,
			Phone:       c.Phone,
			Status:      c.Status,
			Score:       c.Score,
			Answered:    c.AnsweredCount(),
			Total:       len(c.Questions),
			StartedAt:   c.StartedAt,
			CompletedAt: c.CompletedAt,
			Active:      c.ID == activeID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": rows, "total": len(rows)})
}

func (s *Service) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.FindByID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	detail := candidateDetail{Candidate: c}
	if analytics, ok := dashboard.Analyze(c); ok {
		detail.Analytics = analytics
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleEvaluateAnswer scores one answered question. Concurrent requests for
// the same question share one model call.
func (s *Service) handleEvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	qid, err := strconv.Atoi(chi.URLParam(r, "qid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}
	c, err := s.store.FindByID(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var question *models.Question
	for i := range c.Questions {
		if c.Questions[i].ID == qid {
			question = &c.Questions[i]
			break
		}
	}
	if question == nil {
		writeError(w, http.StatusNotFound, "question not found")
		return
	}
	if !question.Answered() {
		writeError(w, http.StatusConflict, "question has not been answered")
		return
	}
	if s.evaluator == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluation unavailable")
		return
	}

	q := *question
	key := fmt.Sprintf("%s:%d", id, qid)
	v, _, _ := s.evaluations.Do(key, func() (any, error) {
		// Shared by every waiting request; one client leaving must not cancel it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.GenerationTimeoutDuration())
		defer cancel()
		return s.evaluator.EvaluateAnswer(ctx, q, q.AnswerText()), nil
	})
	writeJSON(w, http.StatusOK, evaluationResponse{
		AnswerEvaluation: v.(models.AnswerEvaluation),
		SessionID:        id,
		QuestionID:       qid,
	})
}

func (s *Service) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.Summarize(s.store.List()))
}

// handleReset wipes every session. The body must confirm explicitly.
func (s *Service) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, `reset requires {"confirm": true}`)
		return
	}
	if err := s.store.ResetAll(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to reset roster")
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	log.Warn().Msg("Roster reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) sessionView(c *models.CandidateSession) sessionResponse {
	resp := sessionResponse{Session: c}
	if c != nil && c.Status == models.StatusInterviewing {
		st := interview.TimerFor(c, s.flow.Machine().Now())
		resp.Timer = &st
	}
	return resp
}

func (s *Service) writeActive(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.sessionView(s.flow.Machine().Active()))
}

// writeDomainError maps package sentinel errors to HTTP statuses.
func (s *Service) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resume.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, roster.ErrNotFound), errors.Is(err, interview.ErrNoActiveSession):
		status = http.StatusNotFound
	case errors.Is(err, interview.ErrInvalidTransition), errors.Is(err, interview.ErrAlreadyAnswered):
		status = http.StatusConflict
	case errors.Is(err, interview.ErrEmptyAnswer), errors.Is(err, interview.ErrEmptyInput),
		errors.Is(err, interview.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
