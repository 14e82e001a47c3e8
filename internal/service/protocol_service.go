package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/repository"
	"evofit/health-protocol/internal/versioning"
	"evofit/health-protocol/internal/wizard"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SnapshotLinker hands out download links for archived version snapshots.
type SnapshotLinker interface {
	DownloadURL(ctx context.Context, key string) (string, error)
}

// ProtocolService is the storage collaborator of the wizard plus the protocol
// management operations around it.
type ProtocolService interface {
	wizard.Store

	GetProtocol(ctx context.Context, actor domain.Identity, protocolID primitive.ObjectID) (*domain.Protocol, error)
	GetProtocolsByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Protocol, error)
	RollbackProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID, toVersion int) (*domain.Protocol, error)
	GetVersionDownloadURL(ctx context.Context, trainerID, protocolID primitive.ObjectID, version int) (string, error)
}

// protocolService implements the ProtocolService interface.
type protocolService struct {
	protocolRepo   repository.ProtocolRepository
	assignmentRepo repository.AssignmentRepository
	userRepo       repository.UserRepository
	versioner      *versioning.Versioner
	snapshots      SnapshotLinker
	log            *logger.Logger
}

// NewProtocolService creates a new instance of protocolService. snapshots may be nil.
func NewProtocolService(
	protocolRepo repository.ProtocolRepository,
	assignmentRepo repository.AssignmentRepository,
	userRepo repository.UserRepository,
	versioner *versioning.Versioner,
	snapshots SnapshotLinker,
	log *logger.Logger,
) ProtocolService {
	if log == nil {
		log = logger.Nop()
	}
	return &protocolService{
		protocolRepo:   protocolRepo,
		assignmentRepo: assignmentRepo,
		userRepo:       userRepo,
		versioner:      versioner,
		snapshots:      snapshots,
		log:            log.With("service", "ProtocolService"),
	}
}

// CreateProtocol stores a new protocol as version 1.
func (s *protocolService) CreateProtocol(ctx context.Context, trainerID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error) {
	// 1. Validate Input
	if trainerID == primitive.NilObjectID {
		return nil, domain.Missing("trainerId")
	}
	if err := validateProtocolData(data); err != nil {
		return nil, err
	}

	// 2. Record the first version under a pre-assigned id
	protocol := &domain.Protocol{
		ID:        primitive.NewObjectID(),
		TrainerID: trainerID,
	}
	applyData(protocol, data)
	entry, _, err := s.versioner.Record(ctx, protocol, trainerID, "created")
	if err != nil {
		return nil, err
	}
	protocol.Version = entry.Version

	// 3. Save protocol, dropping the orphaned history if that fails
	if _, err := s.protocolRepo.Create(ctx, protocol); err != nil {
		if purgeErr := s.versioner.Purge(ctx, protocol.ID); purgeErr != nil {
			s.log.Error("Failed to purge versions of unsaved protocol", "protocolId", protocol.ID.Hex(), "error", purgeErr)
		}
		return nil, err
	}
	s.log.Info("Protocol created", "protocolId", protocol.ID.Hex(), "trainerId", trainerID.Hex(), "version", domain.VersionLabel(protocol.Version))
	return protocol, nil
}

// UpdateProtocol replaces the protocol's content. Content-changing updates get
// a new version; identical content keeps the current one.
func (s *protocolService) UpdateProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID, data domain.ProtocolData) (*domain.Protocol, error) {
	if err := validateProtocolData(data); err != nil {
		return nil, err
	}
	protocol, err := s.ownedProtocol(ctx, trainerID, protocolID)
	if err != nil {
		return nil, err
	}

	applyData(protocol, data)
	entry, created, err := s.versioner.Record(ctx, protocol, trainerID, "")
	if err != nil {
		return nil, err
	}
	protocol.Version = entry.Version
	if err := s.protocolRepo.Update(ctx, protocol); err != nil {
		return nil, err
	}
	if created {
		s.log.Info("Protocol updated", "protocolId", protocolID.Hex(), "version", domain.VersionLabel(protocol.Version))
	}
	return protocol, nil
}

// DeleteProtocol removes a protocol and its history. Protocols with
// assignments are kept.
func (s *protocolService) DeleteProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID) error {
	if _, err := s.ownedProtocol(ctx, trainerID, protocolID); err != nil {
		return err
	}
	assignments, err := s.assignmentRepo.GetByTrainerID(ctx, trainerID)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if a.ProtocolID == protocolID {
			return domain.Invalid("protocolId", "has assignments and cannot be deleted")
		}
	}
	if err := s.protocolRepo.Delete(ctx, protocolID, trainerID); err != nil {
		return err
	}
	return s.versioner.Purge(ctx, protocolID)
}

// CreateAssignment assigns a protocol to one of the trainer's customers.
func (s *protocolService) CreateAssignment(ctx context.Context, protocolID, customerID, trainerID primitive.ObjectID) (*domain.ProtocolAssignment, error) {
	// 1. Validate Inputs
	if protocolID == primitive.NilObjectID || customerID == primitive.NilObjectID || trainerID == primitive.NilObjectID {
		return nil, domain.Invalid("assignment", "requires protocol, customer and trainer ids")
	}

	// 2. Verify protocol ownership and existence
	protocol, err := s.ownedProtocol(ctx, trainerID, protocolID)
	if err != nil {
		return nil, err
	}

	// 3. Verify customer is managed by this trainer
	customer, err := s.userRepo.GetByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "customer", ID: customerID.Hex()}
		}
		return nil, err
	}
	if !customer.IsCustomer() {
		return nil, domain.Invalid("customerId", "does not belong to a customer")
	}
	if customer.TrainerID == nil || *customer.TrainerID != trainerID {
		return nil, domain.Invalid("customerId", "is not managed by this trainer")
	}

	// 4. Create assignment domain object
	assignment := &domain.ProtocolAssignment{
		ProtocolID: protocolID,
		CustomerID: customerID,
		TrainerID:  trainerID,
		Status:     domain.StatusActive,
		StartDate:  nowUTC(),
	}
	if protocol.DurationDays > 0 {
		end := assignment.StartDate.AddDate(0, 0, protocol.DurationDays)
		assignment.EndDate = &end
	}

	// 5. Save assignment
	assignmentID, err := s.assignmentRepo.Create(ctx, assignment)
	if err != nil {
		return nil, err
	}
	assignment.ID = assignmentID
	s.log.Info("Protocol assigned", "protocolId", protocolID.Hex(), "customerId", customerID.Hex(), "assignmentId", assignmentID.Hex())
	return assignment, nil
}

// GetVersionHistory returns all versions of a protocol, oldest first.
func (s *protocolService) GetVersionHistory(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error) {
	if _, err := s.protocol(ctx, protocolID); err != nil {
		return nil, err
	}
	return s.versioner.History(ctx, protocolID)
}

// GetProtocol returns a protocol visible to the actor: the owning trainer or a
// customer it is assigned to.
func (s *protocolService) GetProtocol(ctx context.Context, actor domain.Identity, protocolID primitive.ObjectID) (*domain.Protocol, error) {
	protocol, err := s.protocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if actor.IsTrainer() {
		if protocol.TrainerID != actor.UserID {
			return nil, &domain.NotFoundError{Kind: "protocol", ID: protocolID.Hex()}
		}
		return protocol, nil
	}
	assignments, err := s.assignmentRepo.GetByCustomerID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if a.ProtocolID == protocolID {
			return protocol, nil
		}
	}
	return nil, &domain.NotFoundError{Kind: "protocol", ID: protocolID.Hex()}
}

func (s *protocolService) GetProtocolsByTrainer(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Protocol, error) {
	if trainerID == primitive.NilObjectID {
		return nil, domain.Missing("trainerId")
	}
	return s.protocolRepo.GetByTrainerID(ctx, trainerID)
}

// RollbackProtocol makes an earlier version current again by recording it as a
// new version.
func (s *protocolService) RollbackProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID, toVersion int) (*domain.Protocol, error) {
	protocol, err := s.ownedProtocol(ctx, trainerID, protocolID)
	if err != nil {
		return nil, err
	}
	entry, err := s.versioner.Rollback(ctx, protocolID, toVersion, trainerID)
	if err != nil {
		return nil, err
	}
	applyData(protocol, entry.Data())
	protocol.Version = entry.Version
	if err := s.protocolRepo.Update(ctx, protocol); err != nil {
		return nil, err
	}
	return protocol, nil
}

func (s *protocolService) GetVersionDownloadURL(ctx context.Context, trainerID, protocolID primitive.ObjectID, version int) (string, error) {
	if _, err := s.ownedProtocol(ctx, trainerID, protocolID); err != nil {
		return "", err
	}
	entry, err := s.versioner.Get(ctx, protocolID, version)
	if err != nil {
		return "", err
	}
	if s.snapshots == nil || entry.ArchiveKey == "" {
		return "", &domain.NotFoundError{Kind: "snapshot", ID: fmt.Sprintf("%s@%s", protocolID.Hex(), domain.VersionLabel(version))}
	}
	return s.snapshots.DownloadURL(ctx, entry.ArchiveKey)
}

func (s *protocolService) protocol(ctx context.Context, protocolID primitive.ObjectID) (*domain.Protocol, error) {
	protocol, err := s.protocolRepo.GetByID(ctx, protocolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.NotFoundError{Kind: "protocol", ID: protocolID.Hex()}
		}
		return nil, err
	}
	return protocol, nil
}

// ownedProtocol hides protocols of other trainers behind NotFound.
func (s *protocolService) ownedProtocol(ctx context.Context, trainerID, protocolID primitive.ObjectID) (*domain.Protocol, error) {
	protocol, err := s.protocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if protocol.TrainerID != trainerID {
		return nil, &domain.NotFoundError{Kind: "protocol", ID: protocolID.Hex()}
	}
	return protocol, nil
}

func validateProtocolData(data domain.ProtocolData) error {
	switch {
	case strings.TrimSpace(data.Name) == "":
		return domain.Missing("name")
	case !data.Type.Valid():
		return domain.Invalid("type", "is not a known protocol type")
	case data.DurationDays <= 0:
		return domain.Invalid("durationDays", "must be positive")
	case !data.Intensity.Valid():
		return domain.Invalid("intensity", "is not a known intensity")
	}
	return nil
}

func applyData(p *domain.Protocol, data domain.ProtocolData) {
	p.Name = strings.TrimSpace(data.Name)
	p.Type = data.Type
	p.DurationDays = data.DurationDays
	p.Intensity = data.Intensity
	p.Config = data.Config.Clone()
}

var _ ProtocolService = (*protocolService)(nil)
