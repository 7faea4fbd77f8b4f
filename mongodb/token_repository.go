package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/authhub/authhub/domain"
	aerrors "github.com/authhub/authhub/errors"
)

// TokenRepositoryMongo implements domain.TokenRepository. Each document is one
// issued pair; refresh rotation consumes the pair with a single conditional
// update so a replayed refresh token can never be redeemed twice.
type TokenRepositoryMongo struct {
	collection *mongo.Collection
}

func NewTokenRepositoryMongo(ctx context.Context, db *mongo.Database) *TokenRepositoryMongo {
	repo := &TokenRepositoryMongo{
		collection: db.Collection(TokensCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create token indexes")
	}
	return repo
}

func (r *TokenRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "access_token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Sparse: client_credentials pairs have no refresh token.
			Keys:    bson.D{{Key: "refresh_token", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", TokensCollection, err)
	}
	return nil
}

func (r *TokenRepositoryMongo) Create(ctx context.Context, token *domain.Token) error {
	if _, err := r.collection.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return aerrors.ErrConflict
		}
		log.Error().Err(err).Str("client_id", token.ClientID).Msg("Error storing token pair")
		return fmt.Errorf("failed to store token pair: %w", err)
	}
	return nil
}

func (r *TokenRepositoryMongo) GetByAccess(ctx context.Context, accessToken string) (*domain.Token, error) {
	return r.getByValue(ctx, bson.M{"access_token": accessToken})
}

func (r *TokenRepositoryMongo) GetByRefresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	return r.getByValue(ctx, bson.M{"refresh_token": refreshToken})
}

func (r *TokenRepositoryMongo) getByValue(ctx context.Context, filter bson.M) (*domain.Token, error) {
	var token domain.Token
	err := r.collection.FindOne(ctx, filter).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Msg("Error looking up token pair")
		return nil, err
	}
	return &token, nil
}

// ConsumeRefresh revokes the live pair holding refreshToken and returns its
// pre-revocation image. The revoked:false condition is what makes rotation
// race-safe: the second of two concurrent redeemers matches nothing.
func (r *TokenRepositoryMongo) ConsumeRefresh(ctx context.Context, refreshToken string) (*domain.Token, error) {
	filter := bson.M{"refresh_token": refreshToken, "revoked": false}
	update := bson.M{"$set": bson.M{"revoked": true}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var consumed domain.Token
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&consumed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Msg("Error consuming refresh token")
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return &consumed, nil
}

func (r *TokenRepositoryMongo) RevokeByValue(ctx context.Context, value string) (*domain.Token, error) {
	filter := bson.M{
		"$or":     []bson.M{{"access_token": value}, {"refresh_token": value}},
		"revoked": false,
	}
	update := bson.M{"$set": bson.M{"revoked": true}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var revoked domain.Token
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&revoked)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Msg("Error revoking token pair")
		return nil, fmt.Errorf("failed to revoke token pair: %w", err)
	}

	log.Debug().Str("token_id", revoked.ID).Str("client_id", revoked.ClientID).
		Msg("Token pair revoked")
	return &revoked, nil
}

// RevokeLineage follows rotated_from links forward from the pair with the
// given id, revoking each descendant. Rotation gives a pair at most one
// successor, so the walk is a linear chain.
func (r *TokenRepositoryMongo) RevokeLineage(ctx context.Context, fromID string) ([]*domain.Token, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var descendants []*domain.Token
	id := fromID
	for {
		var next domain.Token
		err := r.collection.FindOneAndUpdate(ctx,
			bson.M{"rotated_from": id},
			bson.M{"$set": bson.M{"revoked": true}},
			opts).Decode(&next)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return descendants, nil
			}
			log.Error().Err(err).Str("token_id", id).Msg("Error revoking token lineage")
			return descendants, fmt.Errorf("failed to revoke token lineage: %w", err)
		}
		descendants = append(descendants, &next)
		id = next.ID
	}
}

// maxAccessLifetime bounds how long any issued access token can stay valid.
// Cleanup relies on it: a pair issued earlier than now minus this bound cannot
// have a live access token regardless of its configured expires_in.
const maxAccessLifetime = 24 * time.Hour

// DeleteExpired removes pairs whose access token must have expired and whose
// refresh token is absent, expired, or revoked. Validation never depends on
// this; it only keeps the collection from growing without bound.
func (r *TokenRepositoryMongo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	unrefreshable := []bson.M{
		{"refresh_token": bson.M{"$exists": false}},
		{"refresh_token": ""},
		{"revoked": true},
		{"refresh_expires_at": bson.M{"$lte": now}},
	}
	filter := bson.M{
		"issued_at": bson.M{"$lte": now.Add(-maxAccessLifetime)},
		"$or":       unrefreshable,
	}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Error deleting expired token pairs")
		return 0, err
	}
	return result.DeletedCount, nil
}

var _ domain.TokenRepository = (*TokenRepositoryMongo)(nil)
