package wizard

import (
	"time"

	"evofit/health-protocol/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Step is a position in the wizard.
type Step int

const (
	StepClientSelection Step = iota
	StepTemplateSelection
	StepHealthInformation
	StepMedicalConditions
	StepCustomization
	StepGeneration
	StepSafetyCheck
	StepReview
	StepSaveOptions
)

// LastStep is the final position of every flow.
const LastStep = StepSaveOptions

var stepNames = [...]string{
	"client_selection",
	"template_selection",
	"health_information",
	"medical_conditions",
	"customization",
	"generation",
	"safety_check",
	"review",
	"save_options",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return "unknown"
	}
	return stepNames[s]
}

// Flow tells who started the wizard.
type Flow string

const (
	FlowTrainer     Flow = "trainer"      // A trainer building a protocol for a client
	FlowSelfService Flow = "self_service" // A customer building their own protocol
)

// Status of a session. Saved and cancelled sessions are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSaved     Status = "saved"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusSaved || s == StatusCancelled
}

// TemplateSelection holds the defaults copied from the chosen template.
type TemplateSelection struct {
	ID               string              `json:"id" bson:"id"`
	Name             string              `json:"name" bson:"name"`
	Type             domain.ProtocolType `json:"type" bson:"type"`
	TargetAudience   string              `json:"targetAudience,omitempty" bson:"targetAudience,omitempty"`
	DefaultDuration  int                 `json:"defaultDurationDays" bson:"defaultDurationDays"`
	DefaultIntensity domain.Intensity    `json:"defaultIntensity" bson:"defaultIntensity"`
	Tags             []string            `json:"tags,omitempty" bson:"tags,omitempty"`
}

// Customization overrides template defaults. Zero values keep the default.
type Customization struct {
	DurationDays int               `json:"durationDays,omitempty" bson:"durationDays,omitempty"`
	Intensity    domain.Intensity  `json:"intensity,omitempty" bson:"intensity,omitempty"`
	Preferences  map[string]string `json:"preferences,omitempty" bson:"preferences,omitempty"`
	Notes        string            `json:"notes,omitempty" bson:"notes,omitempty"`
}

// GenerationState tracks content production for the generation step.
type GenerationState struct {
	Content   *domain.ProtocolContent `json:"content,omitempty" bson:"content,omitempty"`
	InputHash string                  `json:"inputHash,omitempty" bson:"inputHash,omitempty"` // Prompt hash the content was produced from
	Failed    bool                    `json:"failed" bson:"failed"`
	LastError string                  `json:"lastError,omitempty" bson:"lastError,omitempty"`
	InFlight  bool                    `json:"inFlight" bson:"inFlight"`
	Ticket    string                  `json:"ticket,omitempty" bson:"ticket,omitempty"`
}

// Session is the full state of one wizard run. It is a value: controller
// operations return a new Session and never mutate their argument.
type Session struct {
	ID           string              `json:"id" bson:"_id"`
	OperatorID   primitive.ObjectID  `json:"operatorId" bson:"operatorId"`
	OperatorRole domain.Role         `json:"operatorRole" bson:"operatorRole"`
	OwnerID      primitive.ObjectID  `json:"ownerId" bson:"ownerId"` // Trainer the saved protocol belongs to
	Flow         Flow                `json:"flow" bson:"flow"`
	Step         Step                `json:"step" bson:"step"`
	Status       Status              `json:"status" bson:"status"`
	ProtocolID   *primitive.ObjectID `json:"protocolId,omitempty" bson:"protocolId,omitempty"` // Set when editing an existing protocol

	ClientID      *primitive.ObjectID `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Template      *TemplateSelection  `json:"template,omitempty" bson:"template,omitempty"`
	Health        domain.HealthInfo   `json:"health" bson:"health"`
	Conditions    []string            `json:"conditions,omitempty" bson:"conditions,omitempty"`
	Medications   []string            `json:"medications,omitempty" bson:"medications,omitempty"`
	Customization Customization       `json:"customization" bson:"customization"`
	Generation    GenerationState     `json:"generation" bson:"generation"`

	Safety       *domain.SafetyAssessment `json:"safety,omitempty" bson:"safety,omitempty"`
	Acknowledged string                   `json:"acknowledged,omitempty" bson:"acknowledged,omitempty"` // Fingerprint of the acknowledged assessment

	Errors map[string]string `json:"errors,omitempty" bson:"errors,omitempty"`

	SavedProtocolID *primitive.ObjectID `json:"savedProtocolId,omitempty" bson:"savedProtocolId,omitempty"`
	SavedVersion    int                 `json:"savedVersion,omitempty" bson:"savedVersion,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	s.ProtocolID = cloneID(s.ProtocolID)
	s.ClientID = cloneID(s.ClientID)
	s.SavedProtocolID = cloneID(s.SavedProtocolID)
	if s.Template != nil {
		t := *s.Template
		t.Tags = append([]string(nil), s.Template.Tags...)
		s.Template = &t
	}
	s.Health = s.Health.Clone()
	s.Conditions = append([]string(nil), s.Conditions...)
	s.Medications = append([]string(nil), s.Medications...)
	s.Customization.Preferences = cloneMap(s.Customization.Preferences)
	if s.Generation.Content != nil {
		c := s.Generation.Content.Clone()
		s.Generation.Content = &c
	}
	if s.Safety != nil {
		a := s.Safety.Clone()
		s.Safety = &a
	}
	s.Errors = cloneMap(s.Errors)
	return s
}

// ProtocolType is the type of the selected template.
func (s Session) ProtocolType() domain.ProtocolType {
	if s.Template == nil {
		return ""
	}
	return s.Template.Type
}

// DurationDays is the customized duration, or the template default.
func (s Session) DurationDays() int {
	if s.Customization.DurationDays > 0 {
		return s.Customization.DurationDays
	}
	if s.Template == nil {
		return 0
	}
	return s.Template.DefaultDuration
}

// Intensity is the customized intensity, or the template default.
func (s Session) Intensity() domain.Intensity {
	if s.Customization.Intensity != "" {
		return s.Customization.Intensity
	}
	if s.Template == nil {
		return ""
	}
	return s.Template.DefaultIntensity
}

// ApprovalPending reports whether the current assessment needs an acknowledgement
// that has not been given.
func (s Session) ApprovalPending() bool {
	return s.Safety != nil && s.Safety.RequiresHealthcareApproval && s.Acknowledged != s.Safety.Fingerprint
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
