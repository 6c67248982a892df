package storage

import (
	"context"
	"time"

	"thermbridge/internal/token"
)

// WebhookCredential is the persisted webhook identity. The id becomes part
// of the public callback path, so it has to survive restarts or every
// registered webhook URL would go dead.
type WebhookCredential struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storage defines the interface for data persistence
type Storage interface {
	// Vendor tokens
	GetToken(ctx context.Context) (*token.Token, error)
	SaveToken(ctx context.Context, tok *token.Token) error

	// Webhook credential
	GetWebhookCredential(ctx context.Context) (*WebhookCredential, error)
	SaveWebhookCredential(ctx context.Context, cred *WebhookCredential) error

	// Lifecycle
	Close() error
}
