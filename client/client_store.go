package client

import "context"

// ClientStore is the persistence contract for registered clients. Lookups by
// unknown id return errors.ErrClientNotFound.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	ListClients(ctx context.Context, filter ClientFilter) ([]*Client, error)
}
