package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bosley/minutes/capture"
	"github.com/bosley/minutes/inference"
	"github.com/bosley/minutes/pipeline"
	"github.com/bosley/minutes/store"
	"github.com/gorilla/mux"
)

type errorResponse struct {
	Error string `json:"error"`
}

type stopResponse struct {
	RunID    string `json:"runId"`
	File     string `json:"file"`
	Duration int    `json:"duration"`
}

type meetingDetail struct {
	Meeting    store.Meeting     `json:"meeting"`
	Transcript *store.Transcript `json:"transcript,omitempty"`
	Summary    *store.Summary    `json:"summary,omitempty"`
}

type createMeetingRequest struct {
	Title    string    `json:"title" validate:"required,max=500"`
	Date     time.Time `json:"date"`
	Duration int       `json:"duration" validate:"gte=0"`
	Language *string   `json:"language,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, pipeline.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, pipeline.ErrBusy),
		errors.Is(err, capture.ErrBusy),
		errors.Is(err, capture.ErrNotRecording):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, inference.ErrInference):
		status = http.StatusBadGateway
	case errors.Is(err, pipeline.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func meetingID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Snapshot(r.Context()))
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.StartRecording(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Snapshot(r.Context()))
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	run, err := s.pipeline.StopRecording(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, stopResponse{
		RunID:    run.ID.String(),
		File:     run.Recording.Path,
		Duration: run.Recording.Duration,
	})
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	meetings, err := s.meetings.FetchRecentMeetings(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleRecentMeetings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Snapshot(r.Context()).Recent)
}

func (s *Server) handleSearchMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.meetings.SearchMeetings(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

// handleCreateMeeting stores a meeting entered by hand, without audio.
func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now()
	}

	m := &store.Meeting{
		Title:    req.Title,
		Date:     req.Date,
		Duration: req.Duration,
		Language: req.Language,
	}
	if _, err := s.meetings.SaveMeeting(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	if err := s.pipeline.Refresh(r.Context()); err != nil {
		slog.Warn("Failed to refresh recent meetings", "error", err)
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := meetingID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid meeting id"})
		return
	}

	meeting, err := s.meetings.FetchMeeting(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	detail := meetingDetail{Meeting: meeting}

	transcript, err := s.meetings.FetchTranscript(r.Context(), id)
	switch {
	case err == nil:
		detail.Transcript = &transcript
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, err)
		return
	}

	summary, err := s.meetings.FetchSummary(r.Context(), id)
	switch {
	case err == nil:
		detail.Summary = &summary
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := meetingID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid meeting id"})
		return
	}
	if err := s.meetings.DeleteMeeting(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.pipeline.Refresh(r.Context()); err != nil {
		slog.Warn("Failed to refresh recent meetings", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummaryMarkdown(w http.ResponseWriter, r *http.Request) {
	id, err := meetingID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid meeting id"})
		return
	}
	summary, err := s.meetings.FetchSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(summary.Markdown()))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.models == nil {
		writeJSON(w, http.StatusOK, []inference.Model{})
		return
	}
	models, err := s.models.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}
