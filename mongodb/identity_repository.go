package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// IdentityRepositoryMongo implements domain.IdentityRepository. The unique
// (provider, subject) index is what upholds the resolver's exclusivity
// guarantee; everything else leans on it.
type IdentityRepositoryMongo struct {
	collection *mongo.Collection
}

// NewIdentityRepositoryMongo creates the repository and ensures its indexes.
func NewIdentityRepositoryMongo(ctx context.Context, db *mongo.Database) (*IdentityRepositoryMongo, error) {
	repo := &IdentityRepositoryMongo{
		collection: db.Collection(IdentitiesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create identities indexes")
	}
	return repo, nil
}

func (r *IdentityRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// One identity per external account, globally.
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "subject", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// All linked identities of a user.
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", IdentitiesCollection, err)
	}
	return nil
}

func (r *IdentityRepositoryMongo) FindByProviderSubject(ctx context.Context, provider, subject string) (*domain.Identity, error) {
	var ident domain.Identity
	filter := bson.M{"provider": provider, "subject": subject}
	err := r.collection.FindOne(ctx, filter).Decode(&ident)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Str("provider", provider).Str("subject", subject).
			Msg("Error finding identity by provider and subject")
		return nil, err
	}
	return &ident, nil
}

func (r *IdentityRepositoryMongo) Insert(ctx context.Context, ident *domain.Identity) error {
	if _, err := r.collection.InsertOne(ctx, ident); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return aerrors.ErrConflict
		}
		log.Error().Err(err).Str("provider", ident.Provider).Str("subject", ident.Subject).
			Msg("Error inserting identity")
		return err
	}
	return nil
}

func (r *IdentityRepositoryMongo) UpdateClaims(ctx context.Context, ident *domain.Identity) (*domain.Identity, error) {
	filter := bson.M{"provider": ident.Provider, "subject": ident.Subject}
	update := bson.M{"$set": bson.M{
		"email":            ident.Email,
		"name":             ident.Name,
		"username":         ident.Username,
		"picture":          ident.Picture,
		"raw_claims":       ident.RawClaims,
		"access_token":     ident.AccessToken,
		"refresh_token":    ident.RefreshToken,
		"token_expires_at": ident.TokenExpiresAt,
		"updated_at":       ident.UpdatedAt,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.Identity
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Str("provider", ident.Provider).Str("subject", ident.Subject).
			Msg("Error updating identity claims")
		return nil, err
	}
	return &updated, nil
}

func (r *IdentityRepositoryMongo) ListByUser(ctx context.Context, userID string) ([]*domain.Identity, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error listing identities by user")
		return nil, err
	}
	defer cursor.Close(ctx)

	var identities []*domain.Identity
	if err := cursor.All(ctx, &identities); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error decoding listed identities")
		return nil, err
	}
	return identities, nil
}

func (r *IdentityRepositoryMongo) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("identity_id", id).Msg("Error deleting identity")
		return err
	}
	if result.DeletedCount == 0 {
		return aerrors.ErrNotFound
	}
	return nil
}

var _ domain.IdentityRepository = (*IdentityRepositoryMongo)(nil)
