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

// codeExpiryGrace is how long an expired code document is kept around after
// expires_at before Mongo's TTL monitor removes it. Keeping the document lets
// redemption attempts against a freshly expired code report expiry instead of
// an unknown code.
const codeExpiryGrace = 10 * time.Minute

// AuthCodeRepositoryMongo implements domain.AuthCodeRepository. The code value
// is the document _id; redemption is a single conditional update so that out
// of any number of concurrent redeemers exactly one observes the
// issued->redeemed transition.
type AuthCodeRepositoryMongo struct {
	collection *mongo.Collection
}

func NewAuthCodeRepositoryMongo(ctx context.Context, db *mongo.Database) *AuthCodeRepositoryMongo {
	repo := &AuthCodeRepositoryMongo{
		collection: db.Collection(CodesCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create auth code indexes")
	}
	return repo
}

func (r *AuthCodeRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(codeExpiryGrace / time.Second)),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", CodesCollection, err)
	}
	return nil
}

func (r *AuthCodeRepositoryMongo) Save(ctx context.Context, code *domain.AuthCode) error {
	if code.Code == "" {
		return errors.New("auth code value cannot be empty")
	}

	if _, err := r.collection.InsertOne(ctx, code); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return aerrors.ErrConflict
		}
		log.Error().Err(err).Msg("Error saving authorization code")
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	log.Debug().Str("client_id", code.ClientID).Str("user_id", code.UserID).
		Msg("Authorization code saved")
	return nil
}

// Redeem flips an issued code to redeemed and returns it. A code that is
// absent, already redeemed, or administratively expired all surface as
// ErrCodeConsumedOrUnknown; callers must not be able to tell these apart.
// Expiry by time is the caller's business: the stored document is returned
// as-is so the service can reject it after the flip.
func (r *AuthCodeRepositoryMongo) Redeem(ctx context.Context, codeValue string) (*domain.AuthCode, error) {
	now := time.Now().UTC()
	filter := bson.M{"_id": codeValue, "status": domain.CodeStatusIssued}
	update := bson.M{"$set": bson.M{
		"status":      domain.CodeStatusRedeemed,
		"redeemed_at": now,
	}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var redeemed domain.AuthCode
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&redeemed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrCodeConsumedOrUnknown
		}
		log.Error().Err(err).Msg("Error redeeming authorization code")
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}
	return &redeemed, nil
}

// ExpireIssued marks every issued code past its expiry as expired. Run from
// maintenance tooling; redemption does not depend on it.
func (r *AuthCodeRepositoryMongo) ExpireIssued(ctx context.Context) (int64, error) {
	filter := bson.M{
		"status":     domain.CodeStatusIssued,
		"expires_at": bson.M{"$lte": time.Now().UTC()},
	}
	update := bson.M{"$set": bson.M{"status": domain.CodeStatusExpired}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Msg("Error expiring issued authorization codes")
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *AuthCodeRepositoryMongo) DeleteExpired(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-codeExpiryGrace)
	_, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": cutoff}})
	return err
}

var _ domain.AuthCodeRepository = (*AuthCodeRepositoryMongo)(nil)
