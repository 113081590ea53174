package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/NordCoder/Gatekeeper/internal/domain/session"
	"github.com/NordCoder/Gatekeeper/internal/token"
)

const (
	blacklistPrefix = "blacklist:"
	sessionPrefix   = "session:"
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

var _ session.Cache = (*Cache)(nil)

// Cache keeps the access-token denylist and the session snapshots in Redis.
// Denylist entries are keyed by token fingerprint and expire together with
// the token they deny.
type Cache struct {
	rdb goredis.UniversalClient
	now func() time.Time
}

func New(ctx context.Context, cfg Config) (*Cache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Health-check
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(hctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(rdb, nil), nil
}

func NewWithClient(rdb goredis.UniversalClient, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{rdb: rdb, now: now}
}

func (c *Cache) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Cache) Close() error { return c.rdb.Close() }

// Revoke denylists raw until expiresAt. The entry's TTL is the token's
// remaining lifetime rounded down to milliseconds, so it never outlives the
// token; nothing is written for a token with less than 1ms left.
func (c *Cache) Revoke(ctx context.Context, raw string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now()).Truncate(time.Millisecond)
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, blacklistKey(raw), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (c *Cache) IsRevoked(ctx context.Context, raw string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistKey(raw)).Result()
	if err != nil {
		return false, fmt.Errorf("check denylist: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) PutSession(ctx context.Context, accountID string, s session.Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionPrefix+accountID, b, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (c *Cache) GetSession(ctx context.Context, accountID string) (session.Snapshot, bool, error) {
	b, err := c.rdb.Get(ctx, sessionPrefix+accountID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("get session: %w", err)
	}

	var s session.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("decode session: %w", err)
	}
	return s, true, nil
}

func (c *Cache) DropSession(ctx context.Context, accountID string) error {
	if err := c.rdb.Del(ctx, sessionPrefix+accountID).Err(); err != nil {
		return fmt.Errorf("drop session: %w", err)
	}
	return nil
}

func blacklistKey(raw string) string { return blacklistPrefix + token.Fingerprint(raw) }
