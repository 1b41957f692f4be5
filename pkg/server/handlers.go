package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
)

// TriggerRequest is the body of POST /api/runs/trigger.
type TriggerRequest struct {
	JobType string `json:"job_type"`
	// ScheduledDate backfills a business date; empty means today.
	ScheduledDate string `json:"scheduled_date,omitempty"`
	// Async returns 202 immediately instead of waiting for the run.
	Async bool `json:"async,omitempty"`
}

// TriggerAccepted is the 202 body of an async trigger.
type TriggerAccepted struct {
	JobType       core.JobType `json:"job_type"`
	ScheduledDate string       `json:"scheduled_date,omitempty"`
	Status        string       `json:"status"`
}

var (
	errUnavailable = errors.New("run store not configured")
	errNoJobType   = errors.New("job_type is required")
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "reportd",
		"tracking": s.cfg.Runs != nil,
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.JobType == "" {
		s.writeError(w, http.StatusBadRequest, errNoJobType.Error())
		return
	}

	inv := orchestrator.Invocation{
		Override:      req.JobType,
		Source:        core.SourceManual,
		ScheduledDate: req.ScheduledDate,
	}

	if req.Async {
		jt, err := validateAsync(req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.inflight.Add(1)
		ctx := s.log.WithContext(context.WithoutCancel(r.Context()))
		go func() {
			defer s.inflight.Done()
			if _, err := s.cfg.Orchestrator.Trigger(ctx, inv); err != nil {
				s.log.Warn().Err(err).Str("job_type", req.JobType).Msg("async trigger rejected")
			}
		}()
		s.writeJSON(w, http.StatusAccepted, TriggerAccepted{
			JobType:       jt,
			ScheduledDate: req.ScheduledDate,
			Status:        "accepted",
		})
		return
	}

	// A client that hangs up must not fail the run; r.Context() only
	// governs the response write.
	report, err := s.cfg.Orchestrator.Trigger(s.log.WithContext(context.WithoutCancel(r.Context())), inv)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// validateAsync rejects what the resolver would, before the 202 is sent.
func validateAsync(req TriggerRequest) (core.JobType, error) {
	jt, err := core.ParseJobType(req.JobType)
	if err != nil {
		return "", err
	}
	if req.ScheduledDate != "" {
		if _, err := time.Parse(core.DateLayout, req.ScheduledDate); err != nil {
			return "", core.ErrInvalidScheduledDate
		}
	}
	return jt, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	q := r.URL.Query()
	filter := core.RunFilter{
		JobType:       core.JobType(q.Get("job_type")),
		ScheduledDate: q.Get("date"),
		Status:        core.RunStatus(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	runs, err := s.cfg.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	run, err := s.cfg.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Reports == nil {
		s.writeError(w, http.StatusNotFound, "reports not configured")
		return
	}
	report, err := s.cfg.Reports.ForRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sums, err := s.cfg.Runs.ListSummaries(r.Context(), core.JobType(r.URL.Query().Get("job_type")), limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	sum, err := s.cfg.Runs.GetSummary(r.Context(), routeKey(r))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Dashboard == nil {
		s.writeError(w, http.StatusNotFound, "dashboard not configured")
		return
	}
	snap, err := s.cfg.Dashboard.Snapshot(r.Context(), routeKey(r))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stats == nil {
		s.writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	q := r.URL.Query()
	since, err := parseTimeParam(q.Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "since: "+err.Error())
		return
	}
	until, err := parseTimeParam(q.Get("until"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "until: "+err.Error())
		return
	}
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	rows, err := s.cfg.Stats.History(r.Context(), core.JobType(q.Get("job_type")), since, until)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": rows})
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func routeKey(r *http.Request) core.RunKey {
	return core.RunKey{
		JobType:       core.JobType(chi.URLParam(r, "jobType")),
		ScheduledDate: chi.URLParam(r, "date"),
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeError(w, status, err.Error())
}
