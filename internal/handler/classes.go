package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/model"
)

type createClassRequest struct {
	ClassName string `json:"class_name" binding:"required"`
	Section   string `json:"section" binding:"required"`
	TeacherID string `json:"teacher_id"`
}

// CreateClass registers a class for grouping and dashboards.
func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := h.store.CreateClass(model.Class{
		ClassName: req.ClassName,
		Section:   req.Section,
		TeacherID: req.TeacherID,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, class)
}

// ListClasses returns all classes in creation order.
func (h *Handler) ListClasses(c *gin.Context) {
	classes := h.store.Classes()
	c.JSON(http.StatusOK, gin.H{"classes": classes, "count": len(classes)})
}

// PatchClass applies a partial update.
func (h *Handler) PatchClass(c *gin.Context) {
	var patch model.ClassPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := h.store.UpdateClass(c.Param("id"), patch)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}

// DeleteClass removes a class without touching enrolled students.
func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.store.DeleteClass(c.Param("id")); err != nil {
		h.serviceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
