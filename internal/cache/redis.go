package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/privacy"
)

// Config contains Redis vault configuration
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisVault is a Redis-backed token vault. Token state survives
// process restarts and is shared across replicas; per-session keys
// expire after the configured TTL.
type RedisVault struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
}

// getOrCreateScript performs the reverse lookup and counter increment
// atomically on the Redis side, so concurrent redactions for the same
// session never mint duplicate tokens.
// KEYS: tokens hash, values hash, counters hash. ARGV: label, value, ttl seconds.
var getOrCreateScript = redis.NewScript(`
local existing = redis.call('HGET', KEYS[2], ARGV[2])
if existing then
  return existing
end
local n = redis.call('HINCRBY', KEYS[3], ARGV[1], 1)
local token = ARGV[1] .. '_' .. n
redis.call('HSET', KEYS[1], token, ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], token)
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
  redis.call('EXPIRE', KEYS[2], ttl)
  redis.call('EXPIRE', KEYS[3], ttl)
end
return token
`)

// NewRedisVault creates a Redis-backed token vault
func NewRedisVault(config *Config, logger *zap.Logger) (*RedisVault, error) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "vault"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis token vault initialized",
		zap.String("address", config.Address),
		zap.Int("db", config.DB),
		zap.Duration("ttl", config.TTL))

	return &RedisVault{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

var _ privacy.TokenVault = (*RedisVault)(nil)

func (v *RedisVault) tokensKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:tokens", v.config.KeyPrefix, sessionID)
}

func (v *RedisVault) valuesKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:values", v.config.KeyPrefix, sessionID)
}

func (v *RedisVault) countersKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:counters", v.config.KeyPrefix, sessionID)
}

// GetOrCreateToken implements privacy.TokenVault.
func (v *RedisVault) GetOrCreateToken(ctx context.Context, sessionID, label, value string) (string, error) {
	keys := []string{v.tokensKey(sessionID), v.valuesKey(sessionID), v.countersKey(sessionID)}
	ttl := int64(v.config.TTL.Seconds())

	token, err := getOrCreateScript.Run(ctx, v.client, keys, label, value, ttl).Text()
	if err != nil {
		return "", fmt.Errorf("failed to mint token: %w", err)
	}
	return token, nil
}

// Mapping implements privacy.TokenVault.
func (v *RedisVault) Mapping(ctx context.Context, sessionID string) (map[string]string, error) {
	mapping, err := v.client.HGetAll(ctx, v.tokensKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load token mapping: %w", err)
	}
	return mapping, nil
}

// Clear implements privacy.TokenVault.
func (v *RedisVault) Clear(ctx context.Context, sessionID string) error {
	keys := []string{v.tokensKey(sessionID), v.valuesKey(sessionID), v.countersKey(sessionID)}
	if err := v.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	v.logger.Debug("session vault cleared", zap.String("session_id", sessionID))
	return nil
}

// Close closes the Redis connection
func (v *RedisVault) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
