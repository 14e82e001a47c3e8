package api

import (
	"net/http"

	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/safety"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the template library and stateless safety checks.
type CatalogHandler struct {
	catalog   *catalog.Catalog
	validator *safety.Validator
	log       *logger.Logger
}

func NewCatalogHandler(cat *catalog.Catalog, validator *safety.Validator, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, validator: validator, log: log}
}

// SafetyCheckRequest is the input of a stateless safety evaluation.
type SafetyCheckRequest struct {
	Age          int                 `json:"age" binding:"min=0,max=120"`
	Conditions   []string            `json:"conditions"`
	Medications  []string            `json:"medications"`
	ProtocolType domain.ProtocolType `json:"protocolType" binding:"required"`
	Intensity    domain.Intensity    `json:"intensity" binding:"required"`
	DurationDays int                 `json:"durationDays" binding:"min=0"`
}

// ListTemplates godoc
// @Summary List protocol templates
// @Tags Templates
// @Produce json
// @Security BearerAuth
// @Success 200 {array} catalog.Template
// @Router /templates [get]
func (h *CatalogHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

func (h *CatalogHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.catalog.Get(c.Param("templateId"))
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// CheckSafety godoc
// @Summary Evaluate safety rules without a wizard session
// @Tags Safety
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SafetyCheckRequest true "Client and protocol details"
// @Success 200 {object} domain.SafetyAssessment
// @Failure 400 {object} gin.H "Invalid input"
// @Router /safety/check [post]
func (h *CatalogHandler) CheckSafety(c *gin.Context) {
	var req SafetyCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if !req.ProtocolType.Valid() {
		respondWithError(c, h.log, domain.Invalid("protocolType", "is not a known protocol type"), nil)
		return
	}
	if !req.Intensity.Valid() {
		respondWithError(c, h.log, domain.Invalid("intensity", "is not a known intensity"), nil)
		return
	}
	c.JSON(http.StatusOK, h.validator.Evaluate(safety.Input{
		Age:          req.Age,
		Conditions:   req.Conditions,
		Medications:  req.Medications,
		ProtocolType: req.ProtocolType,
		Intensity:    req.Intensity,
		DurationDays: req.DurationDays,
	}))
}
