package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/middleware"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	"rollcall/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// fail logs server side failures and writes err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.DebugContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func sessionIDParam(r *http.Request) (id.SessionID, error) {
	return id.ParseSessionID(chi.URLParam(r, "sessionID"))
}

// authorizeOrg rejects callers whose token is bound to another organisation.
func authorizeOrg(ctx context.Context, orgID *id.OrganisationID) error {
	bound, ok := middleware.OrganisationID(ctx)
	if !ok || orgID == nil {
		return nil
	}
	if *orgID != bound {
		return dErrors.New(dErrors.CodeForbidden, "organisation is outside the caller's scope")
	}
	return nil
}

// organisationParam reads organisation_id, falling back to the token's
// organisation.
func organisationParam(r *http.Request) (*id.OrganisationID, error) {
	if raw := r.URL.Query().Get("organisation_id"); raw != "" {
		orgID, err := id.ParseOrganisationID(raw)
		if err != nil {
			return nil, err
		}
		return &orgID, nil
	}
	if bound, ok := middleware.OrganisationID(r.Context()); ok {
		return &bound, nil
	}
	return nil, nil
}

func optionalBranchParam(r *http.Request) (*id.BranchID, error) {
	raw := r.URL.Query().Get("branch_id")
	if raw == "" {
		return nil, nil
	}
	branchID, err := id.ParseBranchID(raw)
	if err != nil {
		return nil, err
	}
	return &branchID, nil
}

func dateParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, name+" must be a date in "+models.DateLayout+" format")
	}
	return &t, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be an integer")
	}
	return n, nil
}
