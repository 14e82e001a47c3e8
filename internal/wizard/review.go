package wizard

import (
	"evofit/health-protocol/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewSnapshot is the read-only summary shown on the review step.
type ReviewSnapshot struct {
	SessionID     string                   `json:"sessionId"`
	Step          string                   `json:"step"`
	Flow          Flow                     `json:"flow"`
	ClientID      *primitive.ObjectID      `json:"clientId,omitempty"`
	ProtocolID    *primitive.ObjectID      `json:"protocolId,omitempty"`
	TemplateID    string                   `json:"templateId,omitempty"`
	TemplateName  string                   `json:"templateName,omitempty"`
	Type          domain.ProtocolType      `json:"type,omitempty"`
	DurationDays  int                      `json:"durationDays"`
	Intensity     domain.Intensity         `json:"intensity,omitempty"`
	Tags          []string                 `json:"tags,omitempty"`
	Health        domain.HealthInfo        `json:"health"`
	Conditions    []string                 `json:"conditions,omitempty"`
	Medications   []string                 `json:"medications,omitempty"`
	Preferences   map[string]string        `json:"preferences,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	Content       *domain.ProtocolContent  `json:"content,omitempty"`
	ContentStale  bool                     `json:"contentStale"` // Inputs changed since the content was produced
	Safety        *domain.SafetyAssessment `json:"safety,omitempty"`
	Acknowledged  bool                     `json:"acknowledged"`
	ReadyToSave   bool                     `json:"readyToSave"`
	BlockingIssue string                   `json:"blockingIssue,omitempty"`
}

// Review summarises the session. It never changes the session, and two calls
// on the same session return equal snapshots.
func (c *Controller) Review(s Session) ReviewSnapshot {
	s = s.Clone()
	assessment := c.assess(s)
	snap := ReviewSnapshot{
		SessionID:    s.ID,
		Step:         s.Step.String(),
		Flow:         s.Flow,
		ClientID:     s.ClientID,
		ProtocolID:   s.ProtocolID,
		Type:         s.ProtocolType(),
		DurationDays: s.DurationDays(),
		Intensity:    s.Intensity(),
		Health:       s.Health,
		Conditions:   s.Conditions,
		Medications:  s.Medications,
		Preferences:  s.Customization.Preferences,
		Notes:        s.Customization.Notes,
		Content:      s.Generation.Content,
		Safety:       &assessment,
		Acknowledged: assessment.RequiresHealthcareApproval && s.Acknowledged == assessment.Fingerprint,
		ReadyToSave:  true,
	}
	if s.Template != nil {
		snap.TemplateID = s.Template.ID
		snap.TemplateName = s.Template.Name
		snap.Tags = s.Template.Tags
		if s.Generation.Content != nil && s.Generation.InputHash != "" {
			if tpl, err := c.catalog.Get(s.Template.ID); err == nil {
				snap.ContentStale = promptHash(c.prompt(s, tpl)) != s.Generation.InputHash
			}
		}
	}
	for step := StepClientSelection; step < LastStep; step++ {
		if err := c.checkStep(s, step); err != nil {
			snap.ReadyToSave = false
			snap.BlockingIssue = err.Error()
			break
		}
	}
	if s.Status.Terminal() {
		snap.ReadyToSave = false
	}
	return snap
}
