// Package session holds the front-end form state: the selected analysis date,
// the active run id, the last loaded analysis, and the schedule draft.
//
// Each operation is a single request/response against the coach service.
// Failures never reach the user; they are logged and leave state unchanged.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kalambet/chesscoach/internal/coach"
)

// ScheduledAck is shown after every schedule submission, whatever the outcome.
const ScheduledAck = "Scheduled!"

// Service is the subset of the coach client the session drives.
type Service interface {
	Analyze(ctx context.Context, req coach.AnalysisRequest) (coach.RunHandle, error)
	Analysis(ctx context.Context, runID string) (coach.Document, error)
	Schedule(ctx context.Context, draft coach.ScheduleDraft) (int, error)
}

// Recorder receives runs and schedule submissions for the local history.
type Recorder interface {
	RecordRun(date string, h coach.RunHandle) error
	RecordSchedule(draft coach.ScheduleDraft, status int) error
}

// View is a point-in-time copy of the state for rendering.
type View struct {
	Date     string              `json:"date"`
	RunID    string              `json:"run_id"`
	Analysis *coach.Document     `json:"analysis,omitempty"`
	Draft    coach.ScheduleDraft `json:"schedule"`
	CanLoad  bool                `json:"can_load"`
}

// State is one user's form state.
type State struct {
	svc      Service
	recorder Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	date     string
	runID    string
	analysis *coach.Document
	draft    coach.ScheduleDraft
}

// New creates an empty State. recorder may be nil.
func New(svc Service, recorder Recorder) *State {
	return &State{
		svc:      svc,
		recorder: recorder,
		logger:   slog.Default(),
		draft:    coach.NewScheduleDraft(),
	}
}

// SetDate updates the selected analysis date. No validation is applied.
func (s *State) SetDate(date string) {
	s.mu.Lock()
	s.date = date
	s.mu.Unlock()
}

// StartAnalysis posts the selected date and stores the returned run id.
// Overlapping calls are not ordered; the last response to arrive wins.
func (s *State) StartAnalysis(ctx context.Context) {
	s.mu.Lock()
	date := s.date
	s.mu.Unlock()

	h, err := s.svc.Analyze(ctx, coach.AnalysisRequest{Date: date})
	if err != nil {
		s.logger.Warn("analyze request failed", "date", date, "error", err)
		return
	}

	s.mu.Lock()
	s.runID = h.RunID
	s.mu.Unlock()

	if h.RunID != "" && s.recorder != nil {
		if err := s.recorder.RecordRun(date, h); err != nil {
			s.logger.Warn("recording run failed", "run_id", h.RunID, "error", err)
		}
	}
}

// CanLoad reports whether a run id is held, i.e. whether loading is offered.
func (s *State) CanLoad() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID != ""
}

// LoadAnalysis fetches the document for the held run id and replaces the
// displayed analysis with it, whatever status it came back with.
func (s *State) LoadAnalysis(ctx context.Context) {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	doc, err := s.svc.Analysis(ctx, runID)
	if err != nil {
		s.logger.Warn("analysis request failed", "run_id", runID, "error", err)
		return
	}
	if doc.Status >= 400 {
		s.logger.Debug("analysis returned error status", "run_id", runID, "status", doc.Status)
	}

	s.mu.Lock()
	s.analysis = &doc
	s.mu.Unlock()
}

// SetDraftDate changes only the draft's date.
func (s *State) SetDraftDate(date string) {
	s.mu.Lock()
	s.draft.Date = date
	s.mu.Unlock()
}

// SetDraftFrequency changes only the draft's frequency.
func (s *State) SetDraftFrequency(f coach.Frequency) {
	s.mu.Lock()
	s.draft.Frequency = f
	s.mu.Unlock()
}

// SubmitSchedule posts the draft and discards it. The returned
// acknowledgement is the same whether or not the service accepted it.
func (s *State) SubmitSchedule(ctx context.Context) string {
	s.mu.Lock()
	draft := s.draft
	s.draft = coach.NewScheduleDraft()
	s.mu.Unlock()

	status, err := s.svc.Schedule(ctx, draft)
	if err != nil {
		s.logger.Warn("schedule request failed", "date", draft.Date, "frequency", draft.Frequency, "error", err)
	} else if status >= 400 {
		s.logger.Debug("schedule returned error status", "status", status)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordSchedule(draft, status); err != nil {
			s.logger.Warn("recording schedule failed", "error", err)
		}
	}
	return ScheduledAck
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Date:    s.date,
		RunID:   s.runID,
		Draft:   s.draft,
		CanLoad: s.runID != "",
	}
	if s.analysis != nil {
		doc := *s.analysis
		v.Analysis = &doc
	}
	return v
}
