package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProtocolType is the broad family a protocol belongs to.
type ProtocolType string

const (
	TypeLongevity       ProtocolType = "longevity"
	TypeParasiteCleanse ProtocolType = "parasite-cleanse"
	TypeAilments        ProtocolType = "ailments"
	TypeCustom          ProtocolType = "custom"
)

func (t ProtocolType) Valid() bool {
	switch t {
	case TypeLongevity, TypeParasiteCleanse, TypeAilments, TypeCustom:
		return true
	}
	return false
}

// Intensity levels, ordered from gentlest to hardest.
type Intensity string

const (
	IntensityLow       Intensity = "low"
	IntensityModerate  Intensity = "moderate"
	IntensityHigh      Intensity = "high"
	IntensityIntensive Intensity = "intensive"
)

var intensityRank = map[Intensity]int{
	IntensityLow:       1,
	IntensityModerate:  2,
	IntensityHigh:      3,
	IntensityIntensive: 4,
}

// Rank returns the ordinal of the intensity, 0 for unknown values.
func (i Intensity) Rank() int {
	return intensityRank[i]
}

func (i Intensity) Valid() bool {
	return i.Rank() > 0
}

// ActivityLevel of a client as entered on the health information step.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

func (a ActivityLevel) Valid() bool {
	switch a {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
		return true
	}
	return false
}

// HealthInfo is the client's baseline as captured by the wizard.
type HealthInfo struct {
	Age           int           `bson:"age" json:"age"`
	WeightKg      float64       `bson:"weightKg" json:"weightKg"`
	HeightCm      float64       `bson:"heightCm" json:"heightCm"`
	ActivityLevel ActivityLevel `bson:"activityLevel" json:"activityLevel"`
	Goals         []string      `bson:"goals,omitempty" json:"goals,omitempty"`
}

// ContentSource records where protocol content came from.
type ContentSource string

const (
	SourceAI       ContentSource = "ai"
	SourceTemplate ContentSource = "template"
)

// ProtocolContent is the generated (or template-derived) body of a protocol.
type ProtocolContent struct {
	Source   ContentSource `bson:"source" json:"source"`
	Model    string        `bson:"model,omitempty" json:"model,omitempty"`
	Summary  string        `bson:"summary" json:"summary"`
	Sections []Section     `bson:"sections" json:"sections"`
}

type Section struct {
	Title string   `bson:"title" json:"title"`
	Items []string `bson:"items" json:"items"`
}

// ProtocolConfig is the structured configuration stored with a protocol and
// copied in full into every version entry.
type ProtocolConfig struct {
	ClientID             *primitive.ObjectID `bson:"clientId,omitempty" json:"clientId,omitempty"` // Customer chosen in the wizard
	TemplateID           string              `bson:"templateId" json:"templateId"`
	TargetAudience       string              `bson:"targetAudience,omitempty" json:"targetAudience,omitempty"`
	Tags                 []string            `bson:"tags,omitempty" json:"tags,omitempty"`
	Health               *HealthInfo         `bson:"health,omitempty" json:"health,omitempty"`
	Conditions           []string            `bson:"conditions,omitempty" json:"conditions,omitempty"`
	Medications          []string            `bson:"medications,omitempty" json:"medications,omitempty"`
	Preferences          map[string]string   `bson:"preferences,omitempty" json:"preferences,omitempty"`
	Notes                string              `bson:"notes,omitempty" json:"notes,omitempty"`
	Content              ProtocolContent     `bson:"content" json:"content"`
	Safety               *SafetyAssessment   `bson:"safety,omitempty" json:"safety,omitempty"`
	ApprovalAcknowledged bool                `bson:"approvalAcknowledged" json:"approvalAcknowledged"`
}

// Protocol is a trainer-owned health protocol.
type Protocol struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TrainerID    primitive.ObjectID `bson:"trainerId" json:"trainerId"` // Immutable once created
	Name         string             `bson:"name" json:"name"`
	Type         ProtocolType       `bson:"type" json:"type"`
	DurationDays int                `bson:"durationDays" json:"durationDays"`
	Intensity    Intensity          `bson:"intensity" json:"intensity"`
	Config       ProtocolConfig     `bson:"config" json:"config"`
	Version      int                `bson:"version" json:"version"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// VersionLabel renders a version number the way operators see it ("1.0", "2.0").
func VersionLabel(v int) string {
	return fmt.Sprintf("%d.0", v)
}

// ProtocolData is the content-bearing part of a protocol handed to storage on
// create and update.
type ProtocolData struct {
	Name         string         `json:"name"`
	Type         ProtocolType   `json:"type"`
	DurationDays int            `json:"durationDays"`
	Intensity    Intensity      `json:"intensity"`
	Config       ProtocolConfig `json:"config"`
}
