package royalty

import "context"

// Store persists per-token royalty state and the gate configuration.
// GetRoyaltyConfig returns a not-found error until the first save.
type Store interface {
	GetRoyaltyToken(ctx context.Context, tokenID uint64) (*Token, error)
	SaveRoyaltyToken(ctx context.Context, t *Token) error
	GetRoyaltyConfig(ctx context.Context) (*Config, error)
	SaveRoyaltyConfig(ctx context.Context, c *Config) error
}
