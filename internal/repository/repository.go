package repository

import (
	"context"

	"evofit/health-protocol/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrConflict     = RepositoryError("conflict")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository reads accounts owned by the auth service.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetCustomersByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
}

// ProtocolRepository defines the interface for interacting with protocol data.
type ProtocolRepository interface {
	Create(ctx context.Context, protocol *domain.Protocol) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Protocol, error)
	GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Protocol, error)
	Update(ctx context.Context, protocol *domain.Protocol) error
	Delete(ctx context.Context, id primitive.ObjectID, trainerID primitive.ObjectID) error // Ensure trainer owns the protocol
}

// AssignmentRepository defines the interface for interacting with protocol assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.ProtocolAssignment) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.ProtocolAssignment, error)
	GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.ProtocolAssignment, error)
	GetByCustomerID(ctx context.Context, customerID primitive.ObjectID) ([]domain.ProtocolAssignment, error)
	Update(ctx context.Context, assignment *domain.ProtocolAssignment) error
}

// VersionRepository stores the append-only version history of protocols.
// Append must fail with ErrConflict when (protocolId, version) already exists.
type VersionRepository interface {
	Append(ctx context.Context, version *domain.ProtocolVersion) error
	Latest(ctx context.Context, protocolID primitive.ObjectID) (*domain.ProtocolVersion, error)
	Get(ctx context.Context, protocolID primitive.ObjectID, version int) (*domain.ProtocolVersion, error)
	List(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error)
	DeleteByProtocolID(ctx context.Context, protocolID primitive.ObjectID) error
}
