package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/authhub/authhub/client"
	aerrors "github.com/authhub/authhub/errors"
)

// ClientRepositoryMongo implements the client.ClientStore interface using MongoDB.
// The client ID is the document _id, so uniqueness comes for free.
type ClientRepositoryMongo struct {
	coll *mongo.Collection
}

// NewClientRepositoryMongo creates a new client store backed by MongoDB.
func NewClientRepositoryMongo(db *mongo.Database) *ClientRepositoryMongo {
	return &ClientRepositoryMongo{
		coll: db.Collection(ClientsCollection),
	}
}

// CreateClient implements the ClientStore interface.
func (s *ClientRepositoryMongo) CreateClient(ctx context.Context, c *client.Client) error {
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return aerrors.ErrConflict
		}
		log.Error().Err(err).Str("client_id", c.ID).Msg("Error creating client")
		return err
	}
	return nil
}

// GetClient implements the ClientStore interface.
func (s *ClientRepositoryMongo) GetClient(ctx context.Context, clientID string) (*client.Client, error) {
	var cli client.Client

	err := s.coll.FindOne(ctx, bson.M{"_id": clientID}).Decode(&cli)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aerrors.ErrClientNotFound
		}
		return nil, err
	}

	return &cli, nil
}

// UpdateClient implements the ClientStore interface.
func (s *ClientRepositoryMongo) UpdateClient(ctx context.Context, c *client.Client) error {
	c.UpdatedAt = time.Now()

	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		log.Error().Err(err).Str("client_id", c.ID).Msg("Error updating client")
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update failed: %w", aerrors.ErrClientNotFound)
	}
	return nil
}

// DeleteClient implements the ClientStore interface.
func (s *ClientRepositoryMongo) DeleteClient(ctx context.Context, clientID string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": clientID})
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("Error deleting client")
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("delete failed: %w", aerrors.ErrClientNotFound)
	}
	return nil
}

// ListClients implements the ClientStore interface.
func (s *ClientRepositoryMongo) ListClients(ctx context.Context, filter client.ClientFilter) ([]*client.Client, error) {
	mongoFilter := bson.M{}
	if filter.Type != "" {
		mongoFilter["client_type"] = filter.Type
	}
	if filter.IsActive != nil {
		mongoFilter["is_active"] = *filter.IsActive
	}
	if filter.Search != "" {
		mongoFilter["$or"] = []bson.M{
			{"_id": bson.M{"$regex": filter.Search, "$options": "i"}},
			{"client_name": bson.M{"$regex": filter.Search, "$options": "i"}},
			{"description": bson.M{"$regex": filter.Search, "$options": "i"}},
		}
	}

	cursor, err := s.coll.Find(ctx, mongoFilter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var clients []*client.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, err
	}

	return clients, nil
}

var _ client.ClientStore = (*ClientRepositoryMongo)(nil)
