package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentStatus type for assignment lifecycle
type AssignmentStatus string

const (
	StatusActive    AssignmentStatus = "active"
	StatusPaused    AssignmentStatus = "paused"
	StatusCompleted AssignmentStatus = "completed"
	StatusCancelled AssignmentStatus = "cancelled"
)

// assignmentStage orders statuses; transitions may only move forward, with
// paused -> active as the single exception.
var assignmentStage = map[AssignmentStatus]int{
	StatusActive:    1,
	StatusPaused:    2,
	StatusCompleted: 3,
	StatusCancelled: 3,
}

func (s AssignmentStatus) Valid() bool {
	_, ok := assignmentStage[s]
	return ok
}

// Terminal reports whether no further transition is allowed.
func (s AssignmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an assignment may move from one status to another.
func CanTransition(from, to AssignmentStatus) bool {
	if !from.Valid() || !to.Valid() || from == to || from.Terminal() {
		return false
	}
	if from == StatusPaused && to == StatusActive {
		return true
	}
	return assignmentStage[to] > assignmentStage[from]
}

// ProtocolAssignment connects a Protocol to a Customer, as assigned by a Trainer.
type ProtocolAssignment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProtocolID primitive.ObjectID `bson:"protocolId" json:"protocolId"`
	CustomerID primitive.ObjectID `bson:"customerId" json:"customerId"`
	TrainerID  primitive.ObjectID `bson:"trainerId" json:"trainerId"` // Denormalized for trainer queries/auth
	Status     AssignmentStatus   `bson:"status" json:"status"`
	StartDate  time.Time          `bson:"startDate" json:"startDate"`
	EndDate    *time.Time         `bson:"endDate,omitempty" json:"endDate,omitempty"`
	Progress   map[string]any     `bson:"progress,omitempty" json:"progress,omitempty"` // Check-ins, adherence, effectiveness notes
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}
