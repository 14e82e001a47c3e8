package api

import (
	"net/http"
	"strconv"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/service"

	"github.com/gin-gonic/gin"
)

type ProtocolHandler struct {
	protocolService service.ProtocolService
	log             *logger.Logger
}

func NewProtocolHandler(protocolService service.ProtocolService, log *logger.Logger) *ProtocolHandler {
	return &ProtocolHandler{protocolService: protocolService, log: log}
}

// --- DTOs ---

type RollbackRequest struct {
	Version int `json:"version" binding:"required,min=1"`
}

// VersionResponse is a history entry with its display label.
type VersionResponse struct {
	domain.ProtocolVersion
	Label string `json:"label"`
}

func MapVersionsToResponse(versions []domain.ProtocolVersion) []VersionResponse {
	resp := make([]VersionResponse, len(versions))
	for i, v := range versions {
		resp[i] = VersionResponse{ProtocolVersion: v, Label: domain.VersionLabel(v.Version)}
	}
	return resp
}

// --- Handler Methods ---

// GetTrainerProtocols godoc
// @Summary List the trainer's protocols
// @Tags Protocols
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.Protocol
// @Failure 403 {object} gin.H "Forbidden (not a trainer)"
// @Router /trainer/protocols [get]
func (h *ProtocolHandler) GetTrainerProtocols(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocols, err := h.protocolService.GetProtocolsByTrainer(c.Request.Context(), identity.UserID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	if protocols == nil {
		protocols = []domain.Protocol{}
	}
	c.JSON(http.StatusOK, protocols)
}

// GetProtocol returns a protocol visible to the caller: its trainer or an
// assigned customer.
func (h *ProtocolHandler) GetProtocol(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocolID, ok := objectIDParam(c, "protocolId")
	if !ok {
		return
	}
	p, err := h.protocolService.GetProtocol(c.Request.Context(), identity, protocolID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetVersionHistory godoc
// @Summary Protocol version history
// @Description Returns every recorded version, oldest first.
// @Tags Protocols
// @Produce json
// @Security BearerAuth
// @Param protocolId path string true "Protocol ID"
// @Success 200 {array} VersionResponse
// @Failure 404 {object} gin.H "Protocol not found"
// @Router /trainer/protocols/{protocolId}/versions [get]
func (h *ProtocolHandler) GetVersionHistory(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocolID, ok := objectIDParam(c, "protocolId")
	if !ok {
		return
	}
	if _, err := h.protocolService.GetProtocol(c.Request.Context(), identity, protocolID); err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	versions, err := h.protocolService.GetVersionHistory(c.Request.Context(), protocolID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MapVersionsToResponse(versions))
}

// RollbackProtocol godoc
// @Summary Restore an earlier version
// @Description Appends a new version whose content equals the chosen one. History is never rewritten.
// @Tags Protocols
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param protocolId path string true "Protocol ID"
// @Param request body RollbackRequest true "Version to restore"
// @Success 200 {object} domain.Protocol
// @Failure 404 {object} gin.H "Protocol or version not found"
// @Router /trainer/protocols/{protocolId}/rollback [post]
func (h *ProtocolHandler) RollbackProtocol(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocolID, ok := objectIDParam(c, "protocolId")
	if !ok {
		return
	}
	var req RollbackRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.protocolService.RollbackProtocol(c.Request.Context(), identity.UserID, protocolID, req.Version)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProtocolHandler) GetVersionDownloadURL(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocolID, ok := objectIDParam(c, "protocolId")
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		abortWithError(c, http.StatusBadRequest, "Invalid version.")
		return
	}
	url, err := h.protocolService.GetVersionDownloadURL(c.Request.Context(), identity.UserID, protocolID, version)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
}

func (h *ProtocolHandler) DeleteProtocol(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	protocolID, ok := objectIDParam(c, "protocolId")
	if !ok {
		return
	}
	if err := h.protocolService.DeleteProtocol(c.Request.Context(), identity.UserID, protocolID); err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
