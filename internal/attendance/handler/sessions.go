package handler

import (
	"net/http"
	"strings"

	"rollcall/internal/attendance/models"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
)

type transitionRequest struct {
	Status models.SessionStatus `json:"status"`
}

type issueTokenRequest struct {
	TTLMinutes int `json:"ttl_minutes"`
}

type sessionsResponse struct {
	Sessions []*models.AttendanceSession `json:"sessions"`
}

type recordsResponse struct {
	Attendees int                        `json:"attendees"`
	Records   []*models.AttendanceRecord `json:"records"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := authorizeOrg(r.Context(), &req.OrganisationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.CreateSession(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "failed to create session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	orgID, err := organisationParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if orgID == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "organisation_id is required"))
		return
	}
	if err := authorizeOrg(r.Context(), orgID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter := models.SessionFilter{OrganisationID: *orgID}
	if filter.BranchID, err = optionalBranchParam(r); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.From, err = dateParam(r, "from"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.To, err = dateParam(r, "to"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := models.SessionStatus(strings.ToUpper(raw))
		filter.Status = &status
	}

	sessions, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, "failed to get session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.service.UpdateSession(r.Context(), sessionID, &req)
	if err != nil {
		h.fail(w, r, "failed to update session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleTransitionSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req transitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	next := models.SessionStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	session, err := h.service.TransitionSession(r.Context(), sessionID, next)
	if err != nil {
		h.fail(w, r, "failed to change session status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteSession(r.Context(), sessionID); err != nil {
		h.fail(w, r, "failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req issueTokenRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	token, err := h.service.IssueToken(r.Context(), sessionID, req.TTLMinutes)
	if err != nil {
		h.fail(w, r, "failed to issue qr token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, token)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.ListSessionRecords(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, "failed to list attendance records", err)
		return
	}
	resp := recordsResponse{Records: records}
	for _, rec := range records {
		resp.Attendees += rec.Attendees()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
