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

// mongoVersionRepository implements repository.VersionRepository. The unique
// (protocolId, version) index turns concurrent bumps into ErrConflict.
type mongoVersionRepository struct {
	collection *mongo.Collection
}

func NewMongoVersionRepository(db *mongo.Database) repository.VersionRepository {
	return &mongoVersionRepository{
		collection: db.Collection(versionCollectionName),
	}
}

func (r *mongoVersionRepository) Append(ctx context.Context, version *domain.ProtocolVersion) error {
	if version.ProtocolID == primitive.NilObjectID || version.Version <= 0 {
		return errors.New("version requires protocolId and a positive version number")
	}
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, version); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

func (r *mongoVersionRepository) Latest(ctx context.Context, protocolID primitive.ObjectID) (*domain.ProtocolVersion, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	return r.findOne(ctx, bson.M{"protocolId": protocolID}, opts)
}

func (r *mongoVersionRepository) Get(ctx context.Context, protocolID primitive.ObjectID, version int) (*domain.ProtocolVersion, error) {
	return r.findOne(ctx, bson.M{"protocolId": protocolID, "version": version})
}

func (r *mongoVersionRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.ProtocolVersion, error) {
	var v domain.ProtocolVersion
	if err := r.collection.FindOne(ctx, filter, opts...).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List returns the history in ascending version order.
func (r *mongoVersionRepository) List(ctx context.Context, protocolID primitive.ObjectID) ([]domain.ProtocolVersion, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "version", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"protocolId": protocolID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	versions := []domain.ProtocolVersion{}
	if err = cursor.All(ctx, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// DeleteByProtocolID is only used to compensate a protocol whose creation
// could not be completed.
func (r *mongoVersionRepository) DeleteByProtocolID(ctx context.Context, protocolID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"protocolId": protocolID})
	return err
}

func EnsureVersionIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "protocolId", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
