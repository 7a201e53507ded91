// Package handler exposes the attendance operations over HTTP with chi.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"rollcall/internal/attendance/models"
	"rollcall/internal/platform/metrics"
	"rollcall/internal/platform/middleware"
	id "rollcall/pkg/domain"
)

// Service is the attendance capture surface the handler drives.
type Service interface {
	CreateSession(ctx context.Context, req *models.CreateSessionRequest) (*models.AttendanceSession, error)
	GetSession(ctx context.Context, sessionID id.SessionID) (*models.AttendanceSession, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.AttendanceSession, error)
	UpdateSession(ctx context.Context, sessionID id.SessionID, req *models.UpdateSessionRequest) (*models.AttendanceSession, error)
	TransitionSession(ctx context.Context, sessionID id.SessionID, next models.SessionStatus) (*models.AttendanceSession, error)
	DeleteSession(ctx context.Context, sessionID id.SessionID) error
	IssueToken(ctx context.Context, sessionID id.SessionID, ttlMinutes int) (*models.QRCodeToken, error)
	ValidateToken(ctx context.Context, value string) (*models.AttendanceSession, error)
	RecordAttendance(ctx context.Context, req *models.RecordAttendanceRequest) (*models.AttendanceRecord, error)
	ProcessCardScan(ctx context.Context, req *models.CardScanRequest) (*models.CardScanResult, error)
	RecordBulk(ctx context.Context, req *models.BulkAttendanceRequest) (*models.BulkResult, error)
	ListSessionRecords(ctx context.Context, sessionID id.SessionID) ([]*models.AttendanceRecord, error)
	FindAbsent(ctx context.Context, branchID id.BranchID, thresholdDays int) ([]models.AbsentMember, error)
}

// StatisticsGenerator produces attendance reports.
type StatisticsGenerator interface {
	Generate(ctx context.Context, req models.StatisticsRequest) (*models.StatisticsReport, error)
}

// Handler handles the attendance endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	statistics   StatisticsGenerator
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new attendance Handler.
func New(
	service Service,
	statistics StatisticsGenerator,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:       logger,
		service:      service,
		statistics:   statistics,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
}

// Register registers the attendance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestContext)
	router.Use(middleware.Logger(h.logger))
	router.Use(chimw.Timeout(h.timeout))
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/", h.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Patch("/", h.handleUpdateSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/status", h.handleTransitionSession)
			r.Post("/qr-tokens", h.handleIssueToken)
			r.Get("/records", h.handleListRecords)
		})
	})
	router.Get("/qr-tokens/{token}", h.handleValidateToken)

	router.Route("/attendance", func(r chi.Router) {
		r.Post("/", h.handleRecordAttendance)
		r.Post("/scan", h.handleCardScan)
		r.Post("/bulk", h.handleBulk)
	})

	router.Get("/branches/{branchID}/absent", h.handleFindAbsent)
	router.Get("/statistics", h.handleStatistics)

	r.Mount("/", router)
}
