// AngelaMos | 2026
// blacklist.go

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petlove/backoffice-api/internal/core"
)

const blacklistPrefix = "auth:blacklist:"

// Blacklist records access-token ids revoked before their natural expiry.
// Entries expire together with the token they block.
type Blacklist struct {
	client *redis.Client
	now    func() time.Time
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, now: time.Now}
}

func (b *Blacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}

	if err := b.client.Set(ctx, blacklistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists > 0, nil
}

// Count reports how many revoked access tokens have not yet expired.
func (b *Blacklist) Count(ctx context.Context) (int64, error) {
	return core.CountKeys(ctx, b.client, blacklistPrefix+"*")
}
