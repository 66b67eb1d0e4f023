package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tOgg1/cheerfeed/internal/models"
	"github.com/tOgg1/cheerfeed/internal/quota"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

const maxBodyBytes = 16 << 10

type textRequest struct {
	Text string `json:"text"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type timelineResponse struct {
	Items models.Timeline `json:"items"`
	Page  timeline.Page   `json:"page"`
}

type statusResponse struct {
	Banner         string             `json:"banner,omitempty"`
	QuotaMessage   string             `json:"quotaMessage,omitempty"`
	Quota          quota.Status       `json:"quota"`
	MainUser       models.UserProfile `json:"mainUser"`
	Page           timeline.Page      `json:"page"`
	PendingReveals int                `json:"pendingReveals"`
	PendingQuotes  int                `json:"pendingQuotes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GET /api/timeline?all=1
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	items := s.store.Visible()
	if all := r.URL.Query().Get("all"); all == "1" || all == "true" {
		items = s.store.Items()
	}
	writeJSON(w, http.StatusOK, timelineResponse{Items: items, Page: s.store.Page()})
}

func (s *Server) handleShowMore(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ShowMore())
}

func (s *Server) handleCollapse(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Collapse())
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.store.Item(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, timeline.ErrItemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// POST /api/posts blocks until the first reply round settles.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	post, err := s.store.CreatePost(detach(r), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.LoadMoreReplies(detach(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleSubReply(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := s.store.SubmitSubReply(detach(r), chi.URLParam(r, "id"), chi.URLParam(r, "replyID"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleToggleReply(w http.ResponseWriter, r *http.Request) {
	reply, err := s.store.ToggleReplyInput(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "replyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDirectReply(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := s.store.SubmitDirectReplyToQuoteRetweet(detach(r), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleToggleDirect(w http.ResponseWriter, r *http.Request) {
	qr, err := s.store.ToggleDirectReplyInput(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Banner:         s.store.Banner(),
		QuotaMessage:   s.store.QuotaMessage(),
		Quota:          s.quota.Status(),
		MainUser:       s.store.MainUser(),
		Page:           s.store.Page(),
		PendingReveals: s.store.PendingReveals(),
		PendingQuotes:  s.store.PendingQuotes(),
	})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	profile, err := s.store.SetMainUserName(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// detach keeps a generation running when the client goes away; the store
// still cancels it on shutdown.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, timeline.ErrItemNotFound), errors.Is(err, timeline.ErrReplyNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeline.ErrEmptyText), errors.Is(err, models.ErrUserNameTooLong):
		return http.StatusBadRequest
	case errors.Is(err, timeline.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, timeline.ErrQuotaDenied):
		return http.StatusTooManyRequests
	case errors.Is(err, timeline.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
