package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"rollcall/internal/attendance/models"
	"rollcall/pkg/platform/httputil"
)

// defaultMethod marks check-ins sent without a method from a phone browser
// as MOBILE. Explicit methods and QR check-ins are left alone.
func defaultMethod(req *models.RecordAttendanceRequest, userAgent string) {
	if strings.TrimSpace(string(req.Method)) != "" || strings.TrimSpace(req.QRToken) != "" {
		return
	}
	if userAgent != "" && useragent.New(userAgent).Mobile() {
		req.Method = models.MethodMobile
	}
}

func (h *Handler) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req models.RecordAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	defaultMethod(&req, r.UserAgent())

	record, err := h.service.RecordAttendance(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "failed to record attendance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleCardScan(w http.ResponseWriter, r *http.Request) {
	var req models.CardScanRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ProcessCardScan(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "failed to process card scan", err)
		return
	}
	status := http.StatusOK
	if result.Transition == models.ScanCheckedIn {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req models.BulkAttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RecordBulk(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "failed to record bulk attendance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ValidateToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, "failed to validate qr token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}
