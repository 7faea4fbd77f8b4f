package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// IdentityProviderRepositoryMongo implements domain.IdentityProviderRepository.
// The provider name is the document _id, so registration is a plain upsert.
type IdentityProviderRepositoryMongo struct {
	collection *mongo.Collection
}

func NewIdentityProviderRepositoryMongo(db *mongo.Database) *IdentityProviderRepositoryMongo {
	return &IdentityProviderRepositoryMongo{
		collection: db.Collection(IdentityProvidersCollection),
	}
}

func (r *IdentityProviderRepositoryMongo) Upsert(ctx context.Context, provider *domain.IdentityProvider) error {
	now := time.Now()
	provider.UpdatedAt = now
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": provider.Name}, provider, opts)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name).Msg("Error upserting identity provider")
		return err
	}
	return nil
}

func (r *IdentityProviderRepositoryMongo) GetByName(ctx context.Context, name string) (*domain.IdentityProvider, error) {
	var provider domain.IdentityProvider
	err := r.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&provider)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Str("provider", name).Msg("Error finding identity provider")
		return nil, err
	}
	return &provider, nil
}

func (r *IdentityProviderRepositoryMongo) List(ctx context.Context) ([]*domain.IdentityProvider, error) {
	cursor, err := r.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Msg("Error listing identity providers")
		return nil, err
	}
	defer cursor.Close(ctx)

	var providers []*domain.IdentityProvider
	if err := cursor.All(ctx, &providers); err != nil {
		log.Error().Err(err).Msg("Error decoding listed identity providers")
		return nil, err
	}
	return providers, nil
}

func (r *IdentityProviderRepositoryMongo) Delete(ctx context.Context, name string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		log.Error().Err(err).Str("provider", name).Msg("Error deleting identity provider")
		return err
	}
	if result.DeletedCount == 0 {
		return aerrors.ErrNotFound
	}
	return nil
}

var _ domain.IdentityProviderRepository = (*IdentityProviderRepositoryMongo)(nil)
