package service

import (
	"context"
	"errors"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrAssignmentAccessDenied = errors.New("access denied to this assignment")
)

// AssignmentDetails combines an assignment with the protocol it references.
type AssignmentDetails struct {
	domain.ProtocolAssignment
	Protocol *domain.Protocol `json:"protocol,omitempty"`
}

// AssignmentService tracks protocol assignments after they are created.
type AssignmentService interface {
	GetAssignments(ctx context.Context, actor domain.Identity) ([]AssignmentDetails, error)
	UpdateStatus(ctx context.Context, actor domain.Identity, assignmentID primitive.ObjectID, status domain.AssignmentStatus) (*domain.ProtocolAssignment, error)
	RecordProgress(ctx context.Context, actor domain.Identity, assignmentID primitive.ObjectID, entry map[string]any) (*domain.ProtocolAssignment, error)
}

// assignmentService implements the AssignmentService interface.
type assignmentService struct {
	assignmentRepo repository.AssignmentRepository
	protocolRepo   repository.ProtocolRepository
}

// NewAssignmentService creates a new instance of assignmentService.
func NewAssignmentService(assignmentRepo repository.AssignmentRepository, protocolRepo repository.ProtocolRepository) AssignmentService {
	return &assignmentService{
		assignmentRepo: assignmentRepo,
		protocolRepo:   protocolRepo,
	}
}

// GetAssignments lists what a trainer handed out, or what a customer received.
func (s *assignmentService) GetAssignments(ctx context.Context, actor domain.Identity) ([]AssignmentDetails, error) {
	var (
		assignments []domain.ProtocolAssignment
		err         error
	)
	if actor.IsTrainer() {
		assignments, err = s.assignmentRepo.GetByTrainerID(ctx, actor.UserID)
	} else {
		assignments, err = s.assignmentRepo.GetByCustomerID(ctx, actor.UserID)
	}
	if err != nil {
		return nil, err
	}

	// Enrich with protocol details, fetching each protocol once
	protocols := make(map[primitive.ObjectID]*domain.Protocol)
	details := make([]AssignmentDetails, 0, len(assignments))
	for _, a := range assignments {
		p, seen := protocols[a.ProtocolID]
		if !seen {
			p, err = s.protocolRepo.GetByID(ctx, a.ProtocolID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			protocols[a.ProtocolID] = p
		}
		details = append(details, AssignmentDetails{ProtocolAssignment: a, Protocol: p})
	}
	return details, nil
}

// UpdateStatus moves an assignment through its lifecycle. Completing or
// cancelling sets the end date.
func (s *assignmentService) UpdateStatus(ctx context.Context, actor domain.Identity, assignmentID primitive.ObjectID, status domain.AssignmentStatus) (*domain.ProtocolAssignment, error) {
	if !status.Valid() {
		return nil, domain.Invalid("status", "must be one of active, paused, completed, cancelled")
	}
	assignment, err := s.accessible(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(assignment.Status, status) {
		return nil, domain.Invalid("status", "cannot change from "+string(assignment.Status)+" to "+string(status))
	}

	assignment.Status = status
	if status.Terminal() {
		end := nowUTC()
		assignment.EndDate = &end
	}
	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// RecordProgress merges a check-in into the assignment's progress data.
func (s *assignmentService) RecordProgress(ctx context.Context, actor domain.Identity, assignmentID primitive.ObjectID, entry map[string]any) (*domain.ProtocolAssignment, error) {
	if len(entry) == 0 {
		return nil, domain.Missing("progress")
	}
	assignment, err := s.accessible(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status.Terminal() {
		return nil, domain.Invalid("status", "progress cannot be recorded on a "+string(assignment.Status)+" assignment")
	}

	if assignment.Progress == nil {
		assignment.Progress = make(map[string]any, len(entry)+1)
	}
	for k, v := range entry {
		assignment.Progress[k] = v
	}
	assignment.Progress["lastCheckIn"] = nowUTC().Format(time.RFC3339)
	if err := s.assignmentRepo.Update(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// accessible loads an assignment that belongs to the actor.
func (s *assignmentService) accessible(ctx context.Context, actor domain.Identity, assignmentID primitive.ObjectID) (*domain.ProtocolAssignment, error) {
	assignment, err := s.assignmentRepo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "assignment", ID: assignmentID.Hex()}
		}
		return nil, err
	}
	owner := assignment.TrainerID
	if !actor.IsTrainer() {
		owner = assignment.CustomerID
	}
	if owner != actor.UserID {
		return nil, ErrAssignmentAccessDenied
	}
	return assignment, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
