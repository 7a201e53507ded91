package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/httputil"
	pstrings "rollcall/pkg/platform/strings"
)

const defaultAbsenceThresholdDays = 30

type absentResponse struct {
	ThresholdDays int                   `json:"threshold_days"`
	Members       []models.AbsentMember `json:"members"`
}

func (h *Handler) handleFindAbsent(w http.ResponseWriter, r *http.Request) {
	branchID, err := id.ParseBranchID(chi.URLParam(r, "branchID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	threshold, err := intParam(r, "threshold_days", defaultAbsenceThresholdDays)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.service.FindAbsent(r.Context(), branchID, threshold)
	if err != nil {
		h.fail(w, r, "failed to find absent members", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, absentResponse{ThresholdDays: threshold, Members: members})
}

// handleStatistics serves GET /statistics?from=&to=&period=&kinds=a,b with
// organisation_id and/or branch_id as scope.
func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	req, err := statisticsRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := authorizeOrg(r.Context(), req.Scope.OrganisationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.statistics.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, "failed to generate statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func statisticsRequest(r *http.Request) (models.StatisticsRequest, error) {
	var req models.StatisticsRequest
	from, err := dateParam(r, "from")
	if err != nil {
		return req, err
	}
	to, err := dateParam(r, "to")
	if err != nil {
		return req, err
	}
	if from == nil || to == nil {
		return req, dErrors.New(dErrors.CodeBadRequest, "from and to are required")
	}
	req.From, req.To = *from, *to

	if req.Scope.OrganisationID, err = organisationParam(r); err != nil {
		return req, err
	}
	if req.Scope.BranchID, err = optionalBranchParam(r); err != nil {
		return req, err
	}

	req.Period = models.Period(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("period"))))
	if req.Period == "" {
		req.Period = models.PeriodWeekly
	}
	for _, kind := range pstrings.SplitCSV(r.URL.Query().Get("kinds")) {
		req.Kinds = append(req.Kinds, models.StatisticKind(kind))
	}
	return req, nil
}
