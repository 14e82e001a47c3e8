// Package wizard implements the protocol creation wizard: an ordered sequence of
// steps that collects client, template, health and customization input, runs AI
// generation and the safety check, and finally saves a versioned protocol.
package wizard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/safety"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxAge          = 120
	maxDurationDays = 365
)

// Store is the persistence collaborator used at save time.
type Store interface {
	CreateProtocol(ctx context.Context, trainerID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error)
	UpdateProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error)
	DeleteProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID) error
	CreateAssignment(ctx context.Context, protocolID, customerID, trainerID primitive.ObjectID) (*domain.ProtocolAssignment, error)
	GetVersionHistory(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error)
}

// ClientDirectory confirms that a client may be chosen by a trainer.
type ClientDirectory interface {
	CheckClient(ctx context.Context, trainerID, clientID primitive.ObjectID) error
}

// Options tune a Controller.
type Options struct {
	GenerationTimeout time.Duration   // Zero disables the per-call deadline
	Clients           ClientDirectory // nil accepts any client id
	Logger            *logger.Logger
}

// Controller applies wizard operations to sessions. It holds no session state.
type Controller struct {
	catalog    *catalog.Catalog
	validator  *safety.Validator
	generator  generation.Client
	store      Store
	clients    ClientDirectory
	log        *logger.Logger
	genTimeout time.Duration
	now        func() time.Time
}

func NewController(cat *catalog.Catalog, validator *safety.Validator, generator generation.Client, store Store, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		catalog:    cat,
		validator:  validator,
		generator:  generator,
		store:      store,
		clients:    opts.Clients,
		log:        log.With("component", "wizard"),
		genTimeout: opts.GenerationTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// NewSession starts a wizard for the operator. ownerID is the trainer the saved
// protocol will belong to: the operator itself for trainers, the customer's
// trainer for self-service.
func (c *Controller) NewSession(operator domain.Identity, ownerID primitive.ObjectID) Session {
	flow := FlowTrainer
	if !operator.IsTrainer() {
		flow = FlowSelfService
	}
	now := c.now()
	return Session{
		ID:           uuid.NewString(),
		OperatorID:   operator.UserID,
		OperatorRole: operator.Role,
		OwnerID:      ownerID,
		Flow:         flow,
		Step:         StepClientSelection,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// OpenForProtocol starts a session pre-filled from an existing protocol. Saving
// it updates that protocol and records a new version.
func (c *Controller) OpenForProtocol(operator domain.Identity, p domain.Protocol) (Session, error) {
	s := c.NewSession(operator, p.TrainerID)
	cfg := p.Config.Clone()
	tpl, err := c.catalog.Get(cfg.TemplateID)
	if err != nil {
		return Session{}, err
	}
	id := p.ID
	s.ProtocolID = &id
	s.ClientID = cloneID(cfg.ClientID)
	s.Template = &TemplateSelection{
		ID:               tpl.ID,
		Name:             tpl.Name,
		Type:             p.Type,
		TargetAudience:   cfg.TargetAudience,
		DefaultDuration:  p.DurationDays,
		DefaultIntensity: p.Intensity,
		Tags:             cfg.Tags,
	}
	if cfg.Health != nil {
		s.Health = *cfg.Health
	}
	s.Conditions = cfg.Conditions
	s.Medications = cfg.Medications
	s.Customization = Customization{Preferences: cfg.Preferences, Notes: cfg.Notes}
	if len(cfg.Content.Sections) > 0 || cfg.Content.Summary != "" {
		content := cfg.Content
		s.Generation.Content = &content
		s.Generation.InputHash = promptHash(c.prompt(s, tpl))
	}
	c.reassess(&s)
	return s, nil
}

// SelectClient records the client the protocol is for. nil selects the
// self-service path, which needs no client. In trainer flows the client must
// be one of the owner's customers.
func (c *Controller) SelectClient(ctx context.Context, s Session, clientID *primitive.ObjectID) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if s.Flow == FlowSelfService && clientID != nil && *clientID != s.OperatorID {
		return s, domain.Invalid("clientId", "must be empty in self-service flows")
	}
	if s.Flow == FlowTrainer && clientID != nil && c.clients != nil {
		if err := c.clients.CheckClient(ctx, s.OwnerID, *clientID); err != nil {
			return s, storeError("check client", err)
		}
	}
	next := s.Clone()
	next.ClientID = cloneID(clientID)
	return c.touch(next), nil
}

// SelectTemplate applies a catalog template's defaults to the session.
func (c *Controller) SelectTemplate(s Session, templateID string) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	tpl, err := c.catalog.Get(templateID)
	if err != nil {
		return s, err
	}
	next := s.Clone()
	next.Template = &TemplateSelection{
		ID:               tpl.ID,
		Name:             tpl.Name,
		Type:             tpl.Type,
		TargetAudience:   tpl.TargetAudience,
		DefaultDuration:  tpl.DefaultDuration,
		DefaultIntensity: tpl.DefaultIntensity,
		Tags:             tpl.DefaultTags,
	}
	c.reassess(&next)
	return c.touch(next), nil
}

// SetHealthInfo stores the client baseline. Zero values count as not yet
// entered; present values must be in range.
func (c *Controller) SetHealthInfo(s Session, h domain.HealthInfo) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	switch {
	case h.Age < 0 || h.Age > maxAge:
		return s, domain.Invalid("age", "must be between 1 and 120")
	case h.WeightKg < 0 || !finite(h.WeightKg):
		return s, domain.Invalid("weightKg", "must be positive")
	case h.HeightCm < 0 || !finite(h.HeightCm):
		return s, domain.Invalid("heightCm", "must be positive")
	case h.ActivityLevel != "" && !h.ActivityLevel.Valid():
		return s, domain.Invalid("activityLevel", "must be one of sedentary, light, moderate, active, very_active")
	}
	next := s.Clone()
	next.Health = h.Clone()
	next.Health.Goals = normalizeList(h.Goals)
	c.reassess(&next)
	return c.touch(next), nil
}

// SetMedicalConditions stores conditions and medications. Empty lists are valid.
func (c *Controller) SetMedicalConditions(s Session, conditions, medications []string) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Conditions = normalizeList(conditions)
	next.Medications = normalizeList(medications)
	c.reassess(&next)
	return c.touch(next), nil
}

// SetCustomization overrides template defaults.
func (c *Controller) SetCustomization(s Session, cust Customization) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if cust.DurationDays < 0 || cust.DurationDays > maxDurationDays {
		return s, domain.Invalid("durationDays", "must be between 1 and 365")
	}
	if cust.Intensity != "" && !cust.Intensity.Valid() {
		return s, domain.Invalid("intensity", "must be one of low, moderate, high, intensive")
	}
	next := s.Clone()
	next.Customization = Customization{
		DurationDays: cust.DurationDays,
		Intensity:    cust.Intensity,
		Preferences:  cloneMap(cust.Preferences),
		Notes:        strings.TrimSpace(cust.Notes),
	}
	c.reassess(&next)
	return c.touch(next), nil
}

// RequestGeneration calls the generation collaborator and stores its content.
// On failure the returned session records the error and keeps every input; the
// error is a GenerationError offering the template fallback.
func (c *Controller) RequestGeneration(ctx context.Context, s Session) (Session, error) {
	prompt, err := c.preparePrompt(s)
	if err != nil {
		return s, err
	}
	content, genErr := c.generate(ctx, prompt)
	return c.applyGeneration(s, prompt, content, genErr)
}

// UseTemplateFallback fills the content from the selected template's outline.
func (c *Controller) UseTemplateFallback(s Session) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if s.Template == nil {
		return s, domain.Missing("templateId")
	}
	tpl, err := c.catalog.Get(s.Template.ID)
	if err != nil {
		return s, err
	}
	next := s.Clone()
	content := tpl.FallbackContent()
	next.Generation.Content = &content
	next.Generation.InputHash = promptHash(c.prompt(next, tpl))
	return c.touch(next), nil
}

// ConfirmSafetyCheck records the operator's acknowledgement of the current
// assessment. It changes nothing when no approval is required.
func (c *Controller) ConfirmSafetyCheck(s Session, acknowledged bool) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if s.Safety == nil || !s.Safety.RequiresHealthcareApproval {
		return s, nil
	}
	next := s.Clone()
	if acknowledged {
		next.Acknowledged = s.Safety.Fingerprint
	} else {
		next.Acknowledged = ""
	}
	delete(next.Errors, "safety")
	return c.touch(next), nil
}

// Next advances one step if the current step's requirements are met. A failed
// gate leaves the step and all values unchanged and records the error.
func (c *Controller) Next(s Session) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if s.Step >= LastStep {
		return s, nil
	}
	if err := c.checkStep(s, s.Step); err != nil {
		return withError(s, err), err
	}
	next := s.Clone()
	next.Step++
	next.Errors = nil
	if next.Step == StepSafetyCheck {
		c.reassess(&next)
	}
	return c.touch(next), nil
}

// Back returns to the previous step. Entered values are kept.
func (c *Controller) Back(s Session) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	if s.Step == StepClientSelection {
		return s, nil
	}
	next := s.Clone()
	next.Step--
	next.Errors = nil
	next.Generation.InFlight = false
	next.Generation.Ticket = ""
	return c.touch(next), nil
}

// Cancel ends the session without persisting anything.
func (c *Controller) Cancel(s Session) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Status = StatusCancelled
	next.Generation.InFlight = false
	next.Generation.Ticket = ""
	return c.touch(next), nil
}

// Save validates the whole session, then creates or updates the protocol and
// optionally assigns it. In trainer flows a new protocol is assigned to the
// selected client when assignTo is nil, and any other assignee is rejected.
// A storage failure returns the session as it was so the save can be retried.
func (c *Controller) Save(ctx context.Context, s Session, name string, assignTo *primitive.ObjectID) (Session, error) {
	if err := mutable(s); err != nil {
		return s, err
	}
	for step := StepClientSelection; step < LastStep; step++ {
		if err := c.checkStep(s, step); err != nil {
			return withError(s, err), err
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err := domain.Missing("name")
		return withError(s, err), err
	}
	if s.Flow == FlowSelfService && assignTo != nil && *assignTo != s.OperatorID {
		err := domain.Invalid("assignTo", "must be the operator in self-service flows")
		return withError(s, err), err
	}
	if s.Flow == FlowTrainer && s.ClientID != nil {
		switch {
		case assignTo == nil && s.ProtocolID == nil:
			assignTo = cloneID(s.ClientID)
		case assignTo != nil && *assignTo != *s.ClientID:
			err := domain.Invalid("assignTo", "must be the selected client")
			return withError(s, err), err
		}
	}

	data := c.protocolData(s, name)
	var (
		saved   *domain.Protocol
		err     error
		created bool
	)
	if s.ProtocolID != nil {
		saved, err = c.store.UpdateProtocol(ctx, s.OwnerID, *s.ProtocolID, data)
	} else {
		saved, err = c.store.CreateProtocol(ctx, s.OwnerID, data)
		created = err == nil
	}
	if err != nil {
		return s, storeError("save protocol", err)
	}

	if assignTo != nil {
		if _, err := c.store.CreateAssignment(ctx, saved.ID, *assignTo, s.OwnerID); err != nil {
			if created {
				if delErr := c.store.DeleteProtocol(ctx, s.OwnerID, saved.ID); delErr != nil {
					c.log.Error("Failed to discard protocol after assignment failure", "protocolId", saved.ID.Hex(), "error", delErr)
				}
			}
			return s, storeError("assign protocol", err)
		}
	}

	next := s.Clone()
	id := saved.ID
	next.Status = StatusSaved
	next.Step = LastStep
	next.SavedProtocolID = &id
	next.SavedVersion = saved.Version
	next.Errors = nil
	c.log.Info("Protocol saved from wizard", "session", s.ID, "protocolId", id.Hex(), "version", domain.VersionLabel(saved.Version))
	return c.touch(next), nil
}

// checkStep reports why the session may not leave the given step.
func (c *Controller) checkStep(s Session, step Step) error {
	switch step {
	case StepClientSelection:
		if s.Flow == FlowTrainer && s.ProtocolID == nil && s.ClientID == nil {
			return domain.Missing("clientId")
		}
	case StepTemplateSelection:
		if s.Template == nil {
			return domain.Missing("templateId")
		}
	case StepHealthInformation:
		switch {
		case s.Health.Age == 0:
			return domain.Missing("age")
		case s.Health.WeightKg == 0:
			return domain.Missing("weightKg")
		case s.Health.HeightCm == 0:
			return domain.Missing("heightCm")
		case s.Health.ActivityLevel == "":
			return domain.Missing("activityLevel")
		}
	case StepMedicalConditions, StepSafetyCheck:
		assessment := c.assess(s)
		if assessment.RequiresHealthcareApproval && s.Acknowledged != assessment.Fingerprint {
			return &domain.SafetyGateError{Assessment: assessment}
		}
	case StepGeneration:
		if s.Generation.Content == nil {
			return domain.Missing("content")
		}
	}
	return nil
}

// reassess recomputes the safety assessment and drops an acknowledgement that
// no longer matches it.
func (c *Controller) reassess(s *Session) {
	a := c.assess(*s)
	s.Safety = &a
	if s.Acknowledged != "" && s.Acknowledged != a.Fingerprint {
		s.Acknowledged = ""
	}
}

func (c *Controller) assess(s Session) domain.SafetyAssessment {
	return c.validator.Evaluate(safety.Input{
		Age:          s.Health.Age,
		Conditions:   s.Conditions,
		Medications:  s.Medications,
		ProtocolType: s.ProtocolType(),
		Intensity:    s.Intensity(),
		DurationDays: s.DurationDays(),
	})
}

func (c *Controller) preparePrompt(s Session) (generation.Prompt, error) {
	if err := mutable(s); err != nil {
		return generation.Prompt{}, err
	}
	if s.Step != StepGeneration {
		return generation.Prompt{}, domain.Invalid("step", "must be the generation step to generate content")
	}
	for step := StepClientSelection; step < StepGeneration; step++ {
		if err := c.checkStep(s, step); err != nil {
			return generation.Prompt{}, err
		}
	}
	tpl, err := c.catalog.Get(s.Template.ID)
	if err != nil {
		return generation.Prompt{}, err
	}
	return c.prompt(s, tpl), nil
}

func (c *Controller) prompt(s Session, tpl catalog.Template) generation.Prompt {
	return generation.Prompt{
		TemplateID:   tpl.ID,
		TemplateName: tpl.Name,
		Description:  tpl.Description,
		Outline:      tpl.Outline,
		Type:         s.ProtocolType(),
		DurationDays: s.DurationDays(),
		Intensity:    s.Intensity(),
		Health:       s.Health.Clone(),
		Conditions:   append([]string(nil), s.Conditions...),
		Medications:  append([]string(nil), s.Medications...),
		Preferences:  cloneMap(s.Customization.Preferences),
		Notes:        s.Customization.Notes,
	}
}

func (c *Controller) generate(ctx context.Context, prompt generation.Prompt) (domain.ProtocolContent, error) {
	if c.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.genTimeout)
		defer cancel()
	}
	return c.generator.Generate(ctx, prompt)
}

func (c *Controller) applyGeneration(s Session, prompt generation.Prompt, content domain.ProtocolContent, genErr error) (Session, error) {
	next := s.Clone()
	next.Generation.InFlight = false
	next.Generation.Ticket = ""
	if genErr != nil {
		c.log.Warn("Protocol generation failed", "session", s.ID, "error", genErr)
		next.Generation.Failed = true
		next.Generation.LastError = genErr.Error()
		return c.touch(next), &domain.GenerationError{Err: genErr, FallbackAvailable: true}
	}
	next.Generation.Content = &content
	next.Generation.InputHash = promptHash(prompt)
	next.Generation.Failed = false
	next.Generation.LastError = ""
	return c.touch(next), nil
}

func (c *Controller) protocolData(s Session, name string) domain.ProtocolData {
	health := s.Health.Clone()
	assessment := c.assess(s)
	cfg := domain.ProtocolConfig{
		ClientID:             cloneID(s.ClientID),
		TemplateID:           s.Template.ID,
		TargetAudience:       s.Template.TargetAudience,
		Tags:                 append([]string(nil), s.Template.Tags...),
		Health:               &health,
		Conditions:           append([]string(nil), s.Conditions...),
		Medications:          append([]string(nil), s.Medications...),
		Preferences:          cloneMap(s.Customization.Preferences),
		Notes:                s.Customization.Notes,
		Content:              s.Generation.Content.Clone(),
		Safety:               &assessment,
		ApprovalAcknowledged: assessment.RequiresHealthcareApproval && s.Acknowledged == assessment.Fingerprint,
	}
	return domain.ProtocolData{
		Name:         name,
		Type:         s.ProtocolType(),
		DurationDays: s.DurationDays(),
		Intensity:    s.Intensity(),
		Config:       cfg,
	}
}

func (c *Controller) touch(s Session) Session {
	s.UpdatedAt = c.now()
	return s
}

func mutable(s Session) error {
	if s.Status.Terminal() {
		return domain.Invalid("status", "session is "+string(s.Status))
	}
	return nil
}

// withError returns s with err recorded in its error set.
func withError(s Session, err error) Session {
	next := s.Clone()
	next.Errors = map[string]string{}
	var (
		ve *domain.ValidationError
		se *domain.SafetyGateError
	)
	switch {
	case errors.As(err, &ve):
		next.Errors[ve.Field] = err.Error()
	case errors.As(err, &se):
		next.Errors["safety"] = err.Error()
	default:
		next.Errors["session"] = err.Error()
	}
	return next
}

// storeError keeps domain errors from the store as they are and wraps the rest.
func storeError(op string, err error) error {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

// normalizeList trims entries and drops blanks and case-insensitive duplicates.
func normalizeList(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// promptHash fingerprints the generation input. Values JSON cannot encode
// (non-finite numbers loaded from storage) fall back to the Go syntax representation
// so distinct inputs still hash differently.
func promptHash(p generation.Prompt) string {
	raw, err := json.Marshal(p)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", p))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
