// Package handler exposes the HTTP surface over gin. Every domain error
// is recovered here and turned into a structured rejection; nothing in
// this package retries on the caller's behalf.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/cloudinary"
	"attendtrack/internal/config"
	"attendtrack/internal/metrics"
	"attendtrack/internal/report"
	"attendtrack/internal/scan"
	"attendtrack/internal/store"
)

// Handler wires the domain services to gin routes.
type Handler struct {
	store   *store.Store
	marker  *attendance.Service
	reports *report.Builder
	face    scan.FaceResolver
	cloud   *cloudinary.Client // nil when not configured
	cfg     config.App
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a handler over the given collaborators.
func New(st *store.Store, marker *attendance.Service, reports *report.Builder,
	face scan.FaceResolver, cloud *cloudinary.Client, cfg config.App,
	logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   st,
		marker:  marker,
		reports: reports,
		face:    face,
		cloud:   cloud,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// RegisterRoutes attaches all endpoints. Everything under /v1 except
// login requires a bearer token; mutations that manage accounts need the
// admin role.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.POST("/v1/auth/login", h.Login)

	v1 := router.Group("/v1", auth.UserAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))

	v1.POST("/users", auth.RequireRole("admin"), h.CreateUser)

	v1.POST("/students", h.CreateStudent)
	v1.GET("/students", h.ListStudents)
	v1.GET("/students/:id", h.GetStudent)
	v1.PATCH("/students/:id", h.PatchStudent)
	v1.DELETE("/students/:id", auth.RequireRole("admin"), h.DeleteStudent)
	v1.POST("/students/bulk", h.BulkCreateStudents)
	v1.GET("/students/:id/qrcode", h.StudentQRCode)
	v1.POST("/students/:id/photo", h.UploadStudentPhoto)
	v1.GET("/students/:id/history", h.StudentHistory)
	v1.GET("/students/:id/percentage", h.StudentPercentage)

	v1.POST("/attendance/manual", h.MarkManual)
	v1.POST("/attendance/qr", h.MarkQR)
	v1.POST("/attendance/face", h.MarkFace)
	v1.GET("/attendance", h.AttendanceByDate)

	v1.GET("/stats/daily", h.DailyStats)
	v1.GET("/stats/classwise", h.ClasswiseStats)

	v1.POST("/classes", h.CreateClass)
	v1.GET("/classes", h.ListClasses)
	v1.PATCH("/classes/:id", h.PatchClass)
	v1.DELETE("/classes/:id", auth.RequireRole("admin"), h.DeleteClass)

	v1.GET("/reports", h.BuildReport)
}

// serviceError translates domain errors into HTTP rejections.
func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrStudentNotFound),
		errors.Is(err, store.ErrAttendanceNotFound),
		errors.Is(err, store.ErrClassNotFound),
		errors.Is(err, store.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicateAttendance):
		c.JSON(http.StatusConflict, gin.H{"error": "already marked", "detail": err.Error()})
	case errors.Is(err, store.ErrDuplicateAdmissionNo),
		errors.Is(err, store.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrLowConfidence):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "confidence too low", "detail": err.Error()})
	case errors.Is(err, scan.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload", "detail": err.Error()})
	case errors.Is(err, attendance.ErrInvalidInput),
		errors.Is(err, store.ErrInvalidStudent),
		errors.Is(err, store.ErrInvalidAttendance),
		errors.Is(err, report.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("internal error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// rejectionReason labels a failed marking attempt for metrics.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, store.ErrDuplicateAttendance):
		return "duplicate"
	case errors.Is(err, store.ErrStudentNotFound):
		return "not_found"
	case errors.Is(err, attendance.ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, attendance.ErrInvalidInput), errors.Is(err, scan.ErrMalformedPayload):
		return "invalid"
	default:
		return "other"
	}
}

func (h *Handler) markedBy(c *gin.Context) string {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		return ""
	}
	return claims.UserID
}
