package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/importer"
	"attendtrack/internal/model"
	"attendtrack/internal/scan"
	"attendtrack/internal/store"
)

type createStudentRequest struct {
	AdmissionNo    string    `json:"admission_no" binding:"required"`
	Name           string    `json:"name" binding:"required"`
	ClassName      string    `json:"class_name" binding:"required"`
	Section        string    `json:"section" binding:"required"`
	RollNo         int       `json:"roll_no" binding:"required"`
	Email          string    `json:"email" binding:"omitempty,email"`
	Contact        string    `json:"contact"`
	ParentContact  string    `json:"parent_contact"`
	FaceDescriptor []float32 `json:"face_descriptor"`
}

// CreateStudent registers a single student.
func (h *Handler) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	student, err := h.store.CreateStudent(model.Student{
		AdmissionNo:    req.AdmissionNo,
		Name:           req.Name,
		ClassName:      req.ClassName,
		Section:        req.Section,
		RollNo:         req.RollNo,
		Email:          req.Email,
		Contact:        req.Contact,
		ParentContact:  req.ParentContact,
		FaceDescriptor: req.FaceDescriptor,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}

	h.metrics.StudentsCreated.Inc()
	c.JSON(http.StatusCreated, student)
}

// ListStudents returns students matching the optional class and section
// filters, sorted by name.
func (h *Handler) ListStudents(c *gin.Context) {
	students := h.store.Students(store.StudentFilter{
		ClassName: c.Query("className"),
		Section:   c.Query("section"),
	})
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students)})
}

// GetStudent returns one student by identifier.
func (h *Handler) GetStudent(c *gin.Context) {
	student, err := h.store.StudentByID(c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

// PatchStudent applies a partial update.
func (h *Handler) PatchStudent(c *gin.Context) {
	var patch model.StudentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	student, err := h.store.UpdateStudent(c.Param("id"), patch)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

// DeleteStudent removes a student. Existing attendance records are kept.
func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.store.DeleteStudent(c.Param("id")); err != nil {
		h.serviceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkCreateStudents accepts an xlsx upload and creates every
// schema-valid row, continuing past per-row failures.
func (h *Handler) BulkCreateStudents(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()

	students, skipped, err := importer.ParseStudents(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := h.store.BulkCreateStudents(students)
	var created []model.Student
	var failed []gin.H
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, gin.H{"index": res.Index, "error": res.Err.Error()})
			continue
		}
		created = append(created, res.Student)
		h.metrics.StudentsCreated.Inc()
	}

	h.logger.Info("bulk import finished",
		"created", len(created), "failed", len(failed), "skipped_rows", len(skipped))
	c.JSON(http.StatusOK, gin.H{
		"created":      created,
		"failed":       failed,
		"skipped_rows": skipped,
	})
}

// StudentQRCode renders the student's attendance QR code as PNG.
func (h *Handler) StudentQRCode(c *gin.Context) {
	student, err := h.store.StudentByID(c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := scan.QRCodePNG(student.QRPayload, size)
	if err != nil {
		h.logger.Error("qr render failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// UploadStudentPhoto stores a photo with Cloudinary and records the
// hosted URL on the student.
func (h *Handler) UploadStudentPhoto(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}

	student, err := h.store.StudentByID(c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read photo failed"})
		return
	}

	result, err := h.cloud.UploadPhoto(data, student.AdmissionNo)
	if err != nil {
		h.logger.Error("photo upload failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "photo upload failed"})
		return
	}

	updated, err := h.store.UpdateStudent(student.ID, model.StudentPatch{PhotoRef: &result.SecureURL})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// StudentHistory returns a student's records within the optional
// inclusive range. The query works on raw records, so it still answers
// for deleted students.
func (h *Handler) StudentHistory(c *gin.Context) {
	records := h.store.AttendanceHistory(c.Param("id"), c.Query("from"), c.Query("to"))
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// StudentPercentage returns the present-or-late percentage over the
// optional range, with the raw counts behind it.
func (h *Handler) StudentPercentage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.StudentByID(id); err != nil {
		h.serviceError(c, err)
		return
	}
	counts := h.marker.CountsInRange(id, c.Query("from"), c.Query("to"))
	c.JSON(http.StatusOK, gin.H{"percentage": counts.Percentage(), "counts": counts})
}
