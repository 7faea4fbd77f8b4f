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

// UserRepositoryMongo implements domain.UserRepository.
type UserRepositoryMongo struct {
	collection *mongo.Collection
}

// NewUserRepositoryMongo creates the repository and ensures its indexes.
func NewUserRepositoryMongo(ctx context.Context, db *mongo.Database) (*UserRepositoryMongo, error) {
	repo := &UserRepositoryMongo{
		collection: db.Collection(UsersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create users indexes")
	}
	return repo, nil
}

func (r *UserRepositoryMongo) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			// Sparse: users created purely by federation may have no email.
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", UsersCollection, err)
	}
	return nil
}

func (r *UserRepositoryMongo) Create(ctx context.Context, user *domain.User) error {
	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return aerrors.ErrConflict
		}
		log.Error().Err(err).Str("user_id", user.ID).Msg("Error creating user")
		return err
	}
	return nil
}

func (r *UserRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Str("user_id", id).Msg("Error getting user by id")
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryMongo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrNotFound
		}
		log.Error().Err(err).Msg("Error getting user by email")
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryMongo) UpdateProfile(ctx context.Context, user *domain.User) error {
	update := bson.M{"$set": bson.M{
		"email":         user.Email,
		"name":          user.Name,
		"picture":       user.Picture,
		"last_login_at": user.LastLoginAt,
		"updated_at":    user.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": user.ID}, update)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Error updating user profile")
		return err
	}
	if result.MatchedCount == 0 {
		return aerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryMongo) SetPassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": passwordHash}})
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("Error setting user password")
		return err
	}
	if result.MatchedCount == 0 {
		return aerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepositoryMongo) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("Error deleting user")
		return err
	}
	if result.DeletedCount == 0 {
		return aerrors.ErrNotFound
	}
	return nil
}

var _ domain.UserRepository = (*UserRepositoryMongo)(nil)
