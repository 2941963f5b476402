package daemon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/codedojo/internal/domain"
	"github.com/felixgeelhaar/codedojo/internal/execution"
	"github.com/felixgeelhaar/codedojo/internal/profile"
	"github.com/felixgeelhaar/codedojo/internal/tutor"
)

var errInvalidID = errors.New("problem id must be a positive integer")

// Execution handlers

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}

	// Grading runs every case in turn, which can outlast the server's
	// write timeout.
	budget := s.cfg.Executor.Budget(r.Context(), req)
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(budget + writeTimeout)); err != nil {
		s.logger.Debug("write deadline not extended", "error", err)
	}

	resp, err := s.cfg.Executor.Execute(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitAsync(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Async == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "async grading is disabled", nil)
		return
	}

	var req execution.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}

	status, err := s.cfg.Async.Submit(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/submissions/async/"+status.JobID.String())
	s.jsonResponse(w, http.StatusAccepted, status)
}

func (s *Server) handleAsyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Async == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "async grading is disabled", nil)
		return
	}

	status, err := s.cfg.Async.Status(GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// Problem handlers

func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	problemType := domain.ProblemType(r.URL.Query().Get("type"))
	switch problemType {
	case "", domain.ProblemTypeSet, domain.ProblemTypePythonBasics:
	default:
		s.jsonError(w, http.StatusBadRequest, "unknown problem type", nil)
		return
	}

	problems, err := s.cfg.Problems.List(r.Context(), problemType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, problems)
}

func (s *Server) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.problemID(w, r)
	if !ok {
		return
	}

	details, err := s.cfg.Problems.Details(r.Context(), GetUserID(r.Context()), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, details)
}

func (s *Server) handleProblemDescription(w http.ResponseWriter, r *http.Request) {
	id, ok := s.problemID(w, r)
	if !ok {
		return
	}

	description, err := s.cfg.Problems.Description(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"description": description})
}

func (s *Server) handleProblemBoilerplate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.problemID(w, r)
	if !ok {
		return
	}

	code, err := s.cfg.Problems.Boilerplate(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"boilerplate_code": code})
}

func (s *Server) handleProblemSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.problemID(w, r)
	if !ok {
		return
	}
	userID := GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	submissions, err := s.cfg.Problems.Submissions(r.Context(), userID, id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"submissions": submissions})
}

// handleRecentSubmissions lists the caller's submissions across problems,
// filtered by ?status=attempted,completed
func (s *Server) handleRecentSubmissions(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	var statuses []domain.SubmissionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			statuses = append(statuses, domain.SubmissionStatus(strings.TrimSpace(st)))
		}
	}

	submissions, err := s.cfg.Problems.Recent(r.Context(), userID, statuses, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"submissions": submissions})
}

func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		s.jsonError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
		return 0, false
	}
	return n, true
}

func (s *Server) problemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.jsonError(w, http.StatusBadRequest, "invalid problem id", errInvalidID)
		return 0, false
	}
	return id, true
}

// Leaderboard handlers

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cfg.Board.Top(r.Context(), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, domain.ErrUnauthorized)
		return
	}

	stats, err := s.cfg.Board.Stats(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// Profile handlers

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Profiles.Get(r.Context(), GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profile.UpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	p, err := s.cfg.Profiles.Update(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// Tutor handlers

func (s *Server) handleTutorChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tutor == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "tutor is not configured", nil)
		return
	}

	var req tutor.ChatRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.cfg.Tutor.Chat(r.Context(), GetUserID(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
