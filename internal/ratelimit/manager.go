package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisBreakerDuration = 30 * time.Second
	redisPingTimeout     = 2 * time.Second
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// redisTarget identifies the Redis connection a settings snapshot asks for.
type redisTarget struct {
	addr     string
	password string
	prefix   string
	db       int
}

func targetFor(cfg SettingsConfig) (redisTarget, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return redisTarget{}, errors.New("rate limit redis: missing address")
	}
	target := redisTarget{
		addr:     addr,
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if target.db < 0 {
		target.db = 0
	}
	return target, nil
}

// breaker keeps Redis out of the request path for a while after a failure.
type breaker struct {
	mu    sync.Mutex
	until time.Time
}

func (b *breaker) open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.until.IsZero() {
		return false
	}
	if now.Before(b.until) {
		return true
	}
	b.until = time.Time{}
	return false
}

func (b *breaker) trip(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.until.IsZero() && now.Before(b.until) {
		return
	}
	b.until = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to memory")
}

// Manager resolves the limit for a user and helper and counts the request
// in Redis when configured and reachable, in memory otherwise.
type Manager struct {
	provider SettingsProvider
	nowFn    func() time.Time
	dial     RedisClientFactory
	memory   *MemoryLimiter
	breaker  breaker

	mu     sync.Mutex
	redis  *RedisLimiter
	target redisTarget
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, dial RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() SettingsConfig { return LoadSettingsConfig(SettingsConfig{}) }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{
		provider: provider,
		nowFn:    nowFn,
		dial:     dial,
		memory:   NewMemoryLimiter(),
	}
}

// Check counts one request by userID against helperID's effective limit.
// The decision and the backend both come from a single settings snapshot.
func (m *Manager) Check(ctx context.Context, userID, helperID string) (Result, Decision, error) {
	if m == nil {
		return Result{Allowed: true}, Decision{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := m.provider()
	decision := ResolveLimit(cfg, helperID)
	key := KeyForDecision(userID, decision)
	if key == "" {
		return Result{Allowed: true}, decision, nil
	}

	now := m.nowFn()
	if cfg.RedisEnabled && !m.breaker.open(now) {
		limiter, errConnect := m.connect(ctx, cfg)
		if errConnect == nil {
			result, errAllow := limiter.Allow(ctx, key, decision.Limit, now)
			if errAllow == nil {
				return result, decision, nil
			}
			errConnect = errAllow
		}
		m.breaker.trip(errConnect, now)
	}
	result, errAllow := m.memory.Allow(ctx, key, decision.Limit, now)
	return result, decision, errAllow
}

// connect returns the Redis limiter for cfg, redialing when the target moved.
func (m *Manager) connect(ctx context.Context, cfg SettingsConfig) (*RedisLimiter, error) {
	target, errTarget := targetFor(cfg)
	if errTarget != nil {
		return nil, errTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis != nil && m.target == target {
		return m.redis, nil
	}
	m.closeLocked()

	client := m.dial(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	ctxPing, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redis = NewRedisLimiter(client, target.prefix)
	m.target = target
	return m.redis, nil
}

func (m *Manager) closeLocked() error {
	if m.redis == nil {
		return nil
	}
	errClose := m.redis.client.Close()
	m.redis = nil
	m.target = redisTarget{}
	return errClose
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}
