package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/AnshRaj112/rehab-backend/internal/models"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/redis/go-redis/v9"
)

const (
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// PrincipalSessionKeyPrefix is the Redis key prefix for principal->session mapping
	PrincipalSessionKeyPrefix = "principal_session:"
)

// ConnectRedis connects to Redis database
func ConnectRedis(ctx context.Context, redisURI string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, err
	}

	// Configure connection pool and timeouts for better resilience
	opt.PoolSize = 10                     // Connection pool size
	opt.MinIdleConns = 5                  // Minimum idle connections
	opt.MaxRetries = 3                    // Retry failed commands up to 3 times
	opt.DialTimeout = 5 * time.Second     // Timeout for establishing connection
	opt.ReadTimeout = 3 * time.Second     // Timeout for read operations
	opt.WriteTimeout = 3 * time.Second    // Timeout for write operations
	opt.PoolTimeout = 4 * time.Second     // Timeout for getting connection from pool
	opt.ConnMaxIdleTime = 5 * time.Minute // Close idle connections after 5 minutes

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log.Println("✅ Connected to Redis")
	return client, nil
}

// RedisSessionStore keeps sessions as JSON under session:<token> and the
// principal's current token under principal_session:<kind>:<id>.
type RedisSessionStore struct {
	client *redis.Client
}

var _ services.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore wraps a connected client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(token string) string {
	return SessionKeyPrefix + token
}

func principalSessionKey(subject models.Subject) string {
	return PrincipalSessionKeyPrefix + string(subject.Kind) + ":" + subject.ID.String()
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, services.ErrSessionNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode session: %w", err)
	}
	session.Token = token
	return session, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, session models.Session, ttl time.Duration) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.Token), raw, ttl)
		pipe.Set(ctx, principalSessionKey(session.Subject()), session.Token, ttl)
		return nil
	})
	return err
}

// Delete removes the session and, when it is still the principal's current
// one, the principal mapping.
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	session, err := s.Get(ctx, token)
	if errors.Is(err, services.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		// Unreadable entry: drop the session key anyway.
		return s.client.Del(ctx, sessionKey(token)).Err()
	}

	mappingKey := principalSessionKey(session.Subject())
	current, err := s.client.Get(ctx, mappingKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := []string{sessionKey(token)}
	if current == token {
		keys = append(keys, mappingKey)
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisSessionStore) DeleteAllFor(ctx context.Context, subject models.Subject) error {
	mappingKey := principalSessionKey(subject)
	token, err := s.client.Get(ctx, mappingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, sessionKey(token), mappingKey).Err()
}
