package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixWebhook = "whk_"
	PrefixRequest = "req_"
)

// NewWebhook generates a webhook credential ID with whk_ prefix. The
// dashless form keeps the callback path a single opaque token.
func NewWebhook() string {
	return PrefixWebhook + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewRequest generates a request correlation ID with req_ prefix
func NewRequest() string {
	return PrefixRequest + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
