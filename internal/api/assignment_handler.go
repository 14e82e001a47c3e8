package api

import (
	"net/http"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/service"

	"github.com/gin-gonic/gin"
)

// AssignmentHandler serves assignment reads and updates for trainers and customers.
type AssignmentHandler struct {
	assignmentService service.AssignmentService
	log               *logger.Logger
}

func NewAssignmentHandler(assignmentService service.AssignmentService, log *logger.Logger) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: assignmentService, log: log}
}

type UpdateAssignmentStatusRequest struct {
	Status domain.AssignmentStatus `json:"status" binding:"required"`
}

type ProgressRequest struct {
	Entry map[string]any `json:"entry" binding:"required"`
}

// GetAssignments godoc
// @Summary List the caller's assignments
// @Description Trainers see assignments they created; customers see their own.
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.AssignmentDetails
// @Router /assignments [get]
func (h *AssignmentHandler) GetAssignments(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	assignments, err := h.assignmentService.GetAssignments(c.Request.Context(), identity)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	if assignments == nil {
		assignments = []service.AssignmentDetails{}
	}
	c.JSON(http.StatusOK, assignments)
}

func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	assignmentID, ok := objectIDParam(c, "assignmentId")
	if !ok {
		return
	}
	var req UpdateAssignmentStatusRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.assignmentService.UpdateStatus(c.Request.Context(), identity, assignmentID, req.Status)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AssignmentHandler) RecordProgress(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	assignmentID, ok := objectIDParam(c, "assignmentId")
	if !ok {
		return
	}
	var req ProgressRequest
	if !bind(c, &req) {
		return
	}
	a, err := h.assignmentService.RecordProgress(c.Request.Context(), identity, assignmentID, req.Entry)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, a)
}
