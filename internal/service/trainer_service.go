package service

import (
	"context"
	"errors"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrCustomerWithoutTrainer blocks self-service for customers nobody coaches.
var ErrCustomerWithoutTrainer error = domain.Invalid("trainerId", "is not linked to this customer")

// TrainerService answers questions about the trainer/customer relationship.
type TrainerService interface {
	GetManagedCustomers(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
	// ResolveOwner returns the trainer that owns protocols created by the operator.
	ResolveOwner(ctx context.Context, operator domain.Identity) (primitive.ObjectID, error)
	// CheckClient fails unless clientID is a customer managed by trainerID.
	CheckClient(ctx context.Context, trainerID, clientID primitive.ObjectID) error
}

// trainerService implements the TrainerService interface.
type trainerService struct {
	userRepo repository.UserRepository
}

// NewTrainerService creates a new instance of trainerService.
func NewTrainerService(userRepo repository.UserRepository) TrainerService {
	return &trainerService{userRepo: userRepo}
}

// GetManagedCustomers retrieves the customers linked to the trainer.
func (s *trainerService) GetManagedCustomers(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	if trainerID == primitive.NilObjectID {
		return nil, domain.Missing("trainerId")
	}
	return s.userRepo.GetCustomersByTrainerID(ctx, trainerID)
}

func (s *trainerService) ResolveOwner(ctx context.Context, operator domain.Identity) (primitive.ObjectID, error) {
	if operator.IsTrainer() {
		return operator.UserID, nil
	}
	user, err := s.userRepo.GetByID(ctx, operator.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return primitive.NilObjectID, &domain.NotFoundError{Kind: "customer", ID: operator.UserID.Hex()}
		}
		return primitive.NilObjectID, err
	}
	if user.TrainerID == nil || *user.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, ErrCustomerWithoutTrainer
	}
	return *user.TrainerID, nil
}

func (s *trainerService) CheckClient(ctx context.Context, trainerID, clientID primitive.ObjectID) error {
	client, err := s.userRepo.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.NotFoundError{Kind: "customer", ID: clientID.Hex()}
		}
		return err
	}
	if !client.IsCustomer() {
		return domain.Invalid("clientId", "does not belong to a customer")
	}
	if client.TrainerID == nil || *client.TrainerID != trainerID {
		return domain.Invalid("clientId", "is not managed by this trainer")
	}
	return nil
}
