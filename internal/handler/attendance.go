package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/model"
)

type manualMarkRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent late"`
}

// MarkManual records an attendance event entered by an operator.
func (h *Handler) MarkManual(c *gin.Context) {
	var req manualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.marker.Mark(req.StudentID, req.Date, model.Status(req.Status), model.MethodManual, h.markedBy(c))
	if err != nil {
		h.metrics.MarkRejections.WithLabelValues(rejectionReason(err)).Inc()
		h.serviceError(c, err)
		return
	}

	h.metrics.MarksTotal.WithLabelValues(string(model.MethodManual)).Inc()
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

type qrMarkRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// MarkQR resolves a scanned QR payload and marks the student present.
func (h *Handler) MarkQR(c *gin.Context) {
	var req qrMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, student, err := h.marker.MarkByQR(req.Payload, h.markedBy(c))
	if err != nil {
		h.metrics.MarkRejections.WithLabelValues(rejectionReason(err)).Inc()
		h.serviceError(c, err)
		return
	}

	h.metrics.MarksTotal.WithLabelValues(string(model.MethodQR)).Inc()
	c.JSON(http.StatusCreated, gin.H{"record": rec, "student": studentSummary(student)})
}

type faceMarkRequest struct {
	StudentID  string   `json:"student_id"`
	Confidence *float64 `json:"confidence"`
	ImageURL   string   `json:"image_url"`
}

// MarkFace marks attendance from a face match. The caller either sends
// an already-resolved (student_id, confidence) pair or an image URL for
// the face service to resolve.
func (h *Handler) MarkFace(c *gin.Context) {
	var req faceMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	studentID := req.StudentID
	var confidence float64
	switch {
	case studentID != "" && req.Confidence != nil:
		confidence = *req.Confidence
	case req.ImageURL != "":
		match, err := h.face.Resolve(c.Request.Context(), req.ImageURL)
		if err != nil {
			h.logger.Warn("face resolve failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "face resolution failed"})
			return
		}
		studentID = match.StudentID
		confidence = match.Confidence
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide student_id and confidence, or image_url"})
		return
	}

	rec, student, err := h.marker.MarkByFace(studentID, confidence, h.markedBy(c))
	if err != nil {
		h.metrics.MarkRejections.WithLabelValues(rejectionReason(err)).Inc()
		h.serviceError(c, err)
		return
	}

	h.metrics.MarksTotal.WithLabelValues(string(model.MethodFace)).Inc()
	c.JSON(http.StatusCreated, gin.H{"record": rec, "student": studentSummary(student), "confidence": confidence})
}

// AttendanceByDate lists records for a date, optionally narrowed to one
// class.
func (h *Handler) AttendanceByDate(c *gin.Context) {
	date := c.DefaultQuery("date", time.Now().UTC().Format(model.DateLayout))
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	records := h.store.AttendanceByDate(date, c.Query("className"))
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records), "date": date})
}

// DailyStats returns the day summary for an optional class filter.
func (h *Handler) DailyStats(c *gin.Context) {
	date := c.DefaultQuery("date", time.Now().UTC().Format(model.DateLayout))
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	c.JSON(http.StatusOK, h.marker.DailyStats(date, c.Query("className")))
}

// ClasswiseStats returns the dashboard breakdown, one summary per class.
func (h *Handler) ClasswiseStats(c *gin.Context) {
	date := c.DefaultQuery("date", time.Now().UTC().Format(model.DateLayout))
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "classes": h.marker.ClasswiseStats(date)})
}

func studentSummary(st model.Student) gin.H {
	return gin.H{
		"id":           st.ID,
		"admission_no": st.AdmissionNo,
		"name":         st.Name,
		"class_name":   st.ClassName,
		"section":      st.Section,
	}
}
