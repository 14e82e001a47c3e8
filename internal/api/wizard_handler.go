package api

import (
	"net/http"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/service"
	"evofit/health-protocol/internal/wizard"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WizardHandler exposes the protocol creation wizard. Every operator has at
// most one active session; mutating calls name it by id.
type WizardHandler struct {
	manager         *wizard.Manager
	trainerService  service.TrainerService
	protocolService service.ProtocolService
	log             *logger.Logger
}

func NewWizardHandler(manager *wizard.Manager, trainerService service.TrainerService, protocolService service.ProtocolService, log *logger.Logger) *WizardHandler {
	return &WizardHandler{
		manager:         manager,
		trainerService:  trainerService,
		protocolService: protocolService,
		log:             log,
	}
}

// --- DTOs ---

type SessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type SelectClientRequest struct {
	SessionRequest
	ClientID *string `json:"clientId"` // null selects self-service
}

type SelectTemplateRequest struct {
	SessionRequest
	TemplateID string `json:"templateId" binding:"required"`
}

type HealthInfoRequest struct {
	SessionRequest
	Age           int                  `json:"age"`
	WeightKg      float64              `json:"weightKg"`
	HeightCm      float64              `json:"heightCm"`
	ActivityLevel domain.ActivityLevel `json:"activityLevel"`
	Goals         []string             `json:"goals"`
}

type MedicalConditionsRequest struct {
	SessionRequest
	Conditions  []string `json:"conditions"`
	Medications []string `json:"medications"`
}

type CustomizationRequest struct {
	SessionRequest
	DurationDays int               `json:"durationDays"`
	Intensity    domain.Intensity  `json:"intensity"`
	Preferences  map[string]string `json:"preferences"`
	Notes        string            `json:"notes"`
}

type GenerationRequest struct {
	SessionRequest
	Async bool `json:"async"` // Return immediately and poll the session for the result
}

type SafetyConfirmationRequest struct {
	SessionRequest
	Acknowledged bool `json:"acknowledged"`
}

type SaveRequest struct {
	SessionRequest
	Name     string  `json:"name" binding:"required"`
	AssignTo *string `json:"assignTo"`
}

// SessionResponse is a session plus its readable step name.
type SessionResponse struct {
	wizard.Session
	StepName string `json:"stepName"`
}

func MapSessionToResponse(s wizard.Session) SessionResponse {
	return SessionResponse{Session: s, StepName: s.Step.String()}
}

// --- Handler Methods ---

// OpenSession godoc
// @Summary Open or resume the operator's wizard session
// @Tags Wizard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionResponse
// @Failure 400 {object} gin.H "Customer without a trainer"
// @Router /wizard/session [post]
func (h *WizardHandler) OpenSession(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	ownerID, err := h.trainerService.ResolveOwner(c.Request.Context(), identity)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	s, err := h.manager.Open(c.Request.Context(), identity, ownerID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(s))
}

// EditProtocol opens a session pre-filled from an existing protocol.
func (h *WizardHandler) EditProtocol(c *gin.Context) {
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
	s, err := h.manager.OpenForProtocol(c.Request.Context(), identity, *p)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(s))
}

func (h *WizardHandler) GetSession(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	s, err := h.manager.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(s))
}

func (h *WizardHandler) Review(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	s, err := h.manager.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		respondWithError(c, h.log, err, nil)
		return
	}
	c.JSON(http.StatusOK, h.manager.Controller().Review(s))
}

func (h *WizardHandler) SelectClient(c *gin.Context) {
	var req SelectClientRequest
	if !bind(c, &req) {
		return
	}
	var clientID *primitive.ObjectID
	if req.ClientID != nil {
		id, err := primitive.ObjectIDFromHex(*req.ClientID)
		if err != nil {
			respondWithError(c, h.log, domain.Invalid("clientId", "is not a valid id"), nil)
			return
		}
		clientID = &id
	}
	ctx := c.Request.Context()
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().SelectClient(ctx, s, clientID)
	})
}

func (h *WizardHandler) SelectTemplate(c *gin.Context) {
	var req SelectTemplateRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().SelectTemplate(s, req.TemplateID)
	})
}

func (h *WizardHandler) SetHealthInfo(c *gin.Context) {
	var req HealthInfoRequest
	if !bind(c, &req) {
		return
	}
	info := domain.HealthInfo{
		Age:           req.Age,
		WeightKg:      req.WeightKg,
		HeightCm:      req.HeightCm,
		ActivityLevel: req.ActivityLevel,
		Goals:         req.Goals,
	}
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().SetHealthInfo(s, info)
	})
}

func (h *WizardHandler) SetMedicalConditions(c *gin.Context) {
	var req MedicalConditionsRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().SetMedicalConditions(s, req.Conditions, req.Medications)
	})
}

func (h *WizardHandler) SetCustomization(c *gin.Context) {
	var req CustomizationRequest
	if !bind(c, &req) {
		return
	}
	cust := wizard.Customization{
		DurationDays: req.DurationDays,
		Intensity:    req.Intensity,
		Preferences:  req.Preferences,
		Notes:        req.Notes,
	}
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().SetCustomization(s, cust)
	})
}

// Generate godoc
// @Summary Generate protocol content
// @Description Runs AI generation for the session. With async=true the call returns at once and the session reports inFlight until the result arrives.
// @Tags Wizard
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerationRequest true "Session and mode"
// @Success 200 {object} SessionResponse
// @Success 202 {object} SessionResponse "Generation started"
// @Failure 502 {object} gin.H "Generation failed; fallbackAvailable tells whether the template can be used"
// @Router /wizard/session/generation [post]
func (h *WizardHandler) Generate(c *gin.Context) {
	var req GenerationRequest
	if !bind(c, &req) {
		return
	}
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	if req.Async {
		s, err := h.manager.StartGeneration(c.Request.Context(), identity.UserID, req.SessionID)
		if err != nil {
			respondWithError(c, h.log, err, gin.H{"session": MapSessionToResponse(s)})
			return
		}
		c.JSON(http.StatusAccepted, MapSessionToResponse(s))
		return
	}
	s, err := h.manager.Generate(c.Request.Context(), identity.UserID, req.SessionID)
	h.respond(c, s, err)
}

func (h *WizardHandler) UseTemplateFallback(c *gin.Context) {
	var req SessionRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, h.manager.Controller().UseTemplateFallback)
}

func (h *WizardHandler) ConfirmSafetyCheck(c *gin.Context) {
	var req SafetyConfirmationRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().ConfirmSafetyCheck(s, req.Acknowledged)
	})
}

func (h *WizardHandler) Next(c *gin.Context) {
	var req SessionRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, h.manager.Controller().Next)
}

func (h *WizardHandler) Back(c *gin.Context) {
	var req SessionRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, h.manager.Controller().Back)
}

func (h *WizardHandler) Cancel(c *gin.Context) {
	var req SessionRequest
	if !bind(c, &req) {
		return
	}
	h.apply(c, req.SessionID, h.manager.Controller().Cancel)
}

// Save godoc
// @Summary Save the wizard session as a protocol
// @Description Validates every step, then creates or updates the protocol (recording a version) and optionally assigns it.
// @Tags Wizard
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SaveRequest true "Protocol name and optional customer"
// @Success 200 {object} SessionResponse "Saved session with savedProtocolId and savedVersion"
// @Failure 400 {object} gin.H "Validation error naming the field"
// @Failure 409 {object} gin.H "Healthcare approval not acknowledged"
// @Failure 503 {object} gin.H "Storage unavailable; the session is kept for retry"
// @Router /wizard/session/save [post]
func (h *WizardHandler) Save(c *gin.Context) {
	var req SaveRequest
	if !bind(c, &req) {
		return
	}
	var assignTo *primitive.ObjectID
	if req.AssignTo != nil {
		id, err := primitive.ObjectIDFromHex(*req.AssignTo)
		if err != nil {
			respondWithError(c, h.log, domain.Invalid("assignTo", "is not a valid id"), nil)
			return
		}
		assignTo = &id
	}
	ctx := c.Request.Context()
	h.apply(c, req.SessionID, func(s wizard.Session) (wizard.Session, error) {
		return h.manager.Controller().Save(ctx, s, req.Name, assignTo)
	})
}

// apply runs op on the caller's session and writes the result. Failed
// operations still return the session so the client can show recorded errors.
func (h *WizardHandler) apply(c *gin.Context, sessionID string, op func(wizard.Session) (wizard.Session, error)) {
	identity, ok := identityFromContext(c)
	if !ok {
		return
	}
	s, err := h.manager.Apply(c.Request.Context(), identity.UserID, sessionID, op)
	h.respond(c, s, err)
}

func (h *WizardHandler) respond(c *gin.Context, s wizard.Session, err error) {
	if err != nil {
		var extra gin.H
		if s.ID != "" {
			extra = gin.H{"session": MapSessionToResponse(s)}
		}
		respondWithError(c, h.log, err, extra)
		return
	}
	c.JSON(http.StatusOK, MapSessionToResponse(s))
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return false
	}
	return true
}
