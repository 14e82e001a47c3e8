package domain

// Severity of a safety warning.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCaution  Severity = "caution"
	SeverityCritical Severity = "critical"
)

// Warning is a single finding of the safety validator.
type Warning struct {
	Code     string   `bson:"code" json:"code"`
	Severity Severity `bson:"severity" json:"severity"`
	Subject  string   `bson:"subject,omitempty" json:"subject,omitempty"` // Medication or condition that triggered it
	Message  string   `bson:"message" json:"message"`
}

// SafetyAssessment is derived from age, conditions and medications against the
// selected protocol. It is never persisted on its own.
type SafetyAssessment struct {
	Warnings                   []Warning `bson:"warnings" json:"warnings"`
	RequiresHealthcareApproval bool      `bson:"requiresHealthcareApproval" json:"requiresHealthcareApproval"`
	Fingerprint                string    `bson:"fingerprint" json:"fingerprint"`
}
