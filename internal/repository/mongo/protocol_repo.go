package mongo

import (
	"context"
	"errors"
	"time"

	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoProtocolRepository implements repository.ProtocolRepository
type mongoProtocolRepository struct {
	collection *mongo.Collection
}

// NewMongoProtocolRepository creates a new Protocol repository.
func NewMongoProtocolRepository(db *mongo.Database) repository.ProtocolRepository {
	return &mongoProtocolRepository{
		collection: db.Collection(protocolCollectionName),
	}
}

// Create inserts a new protocol.
func (r *mongoProtocolRepository) Create(ctx context.Context, protocol *domain.Protocol) (primitive.ObjectID, error) {
	if protocol.TrainerID == primitive.NilObjectID || protocol.Name == "" {
		return primitive.NilObjectID, errors.New("protocol requires trainerId and name")
	}
	if protocol.ID == primitive.NilObjectID {
		protocol.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	protocol.CreatedAt = now
	protocol.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, protocol)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted protocol ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single protocol by its ID.
func (r *mongoProtocolRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Protocol, error) {
	var protocol domain.Protocol
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&protocol)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &protocol, nil
}

// GetByTrainerID retrieves all protocols owned by a trainer, most recently updated first.
func (r *mongoProtocolRepository) GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Protocol, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"trainerId": trainerID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	protocols := []domain.Protocol{}
	if err = cursor.All(ctx, &protocols); err != nil {
		return nil, err
	}
	return protocols, nil
}

// Update replaces the content of a protocol. The owning trainer and creation
// time are never touched, and the filter pins the trainer so ownership cannot change.
func (r *mongoProtocolRepository) Update(ctx context.Context, protocol *domain.Protocol) error {
	if protocol.ID == primitive.NilObjectID {
		return errors.New("protocol ID is required for update")
	}
	protocol.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": protocol.ID, "trainerId": protocol.TrainerID}
	update := bson.M{
		"$set": bson.M{
			"name":         protocol.Name,
			"type":         protocol.Type,
			"durationDays": protocol.DurationDays,
			"intensity":    protocol.Intensity,
			"config":       protocol.Config,
			"version":      protocol.Version,
			"updatedAt":    protocol.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a protocol owned by the given trainer.
func (r *mongoProtocolRepository) Delete(ctx context.Context, id primitive.ObjectID, trainerID primitive.ObjectID) error {
	if id == primitive.NilObjectID || trainerID == primitive.NilObjectID {
		return errors.New("protocol ID and trainer ID are required for deletion")
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "trainerId": trainerID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureProtocolIndexes creates necessary indexes. Call during startup.
func EnsureProtocolIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "type", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
