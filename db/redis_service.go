package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"studentparent-server-go/models"
)

const (
	cachePrefix   = "sp:cache:"   // String: sp:cache:{key} -> cached response body
	sessionPrefix = "sp:session:" // Hash: sp:session:{token} -> userId, role
)

// RedisService implements Cache and SessionStore on top of Redis
type RedisService struct {
	Client *redis.Client
	log    *logrus.Logger
}

// NewRedisService creates a new RedisService instance
func NewRedisService(client *redis.Client, log *logrus.Logger) *RedisService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisService{Client: client, log: log}
}

func getCacheKey(key string) string {
	return cachePrefix + key
}

func getSessionKey(token string) string {
	return sessionPrefix + token
}

// --- Cache ---

// Get returns the cached value of key. A miss is not an error.
func (s *RedisService) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.Client.Get(ctx, getCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("读取缓存失败")
		return nil, false, fmt.Errorf("failed to get cache entry from Redis: %w", err)
	}
	return data, true, nil
}

// Set stores value under key for ttl.
func (s *RedisService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.Client.Set(ctx, getCacheKey(key), value, ttl).Err(); err != nil {
		s.log.WithError(err).WithField("key", key).Error("写入缓存失败")
		return fmt.Errorf("failed to set cache entry in Redis: %w", err)
	}
	return nil
}

// DeletePrefix removes every cache entry whose key starts with prefix.
func (s *RedisService) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	match := getCacheKey(prefix) + "*"
	for {
		keys, next, err := s.Client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys %s: %w", match, err)
		}
		if len(keys) > 0 {
			if err := s.Client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// --- Sessions ---

// SaveSession stores the session hash and its expiry in one pipeline.
func (s *RedisService) SaveSession(ctx context.Context, token string, session models.Session, ttl time.Duration) error {
	key := getSessionKey(token)
	pipe := s.Client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"userId": session.UserID,
		"role":   string(session.Role),
	})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WithError(err).WithField("userId", session.UserID).Error("保存会话失败")
		return fmt.Errorf("failed to save session to Redis: %w", err)
	}
	return nil
}

// LoadSession returns the session of token; ok is false when it does not exist or expired.
func (s *RedisService) LoadSession(ctx context.Context, token string) (models.Session, bool, error) {
	data, err := s.Client.HGetAll(ctx, getSessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	if len(data) == 0 {
		return models.Session{}, false, nil
	}
	userID, err := strconv.ParseInt(data["userId"], 10, 64)
	if err != nil {
		return models.Session{}, false, fmt.Errorf("corrupt session %s: %w", token, err)
	}
	return models.Session{UserID: userID, Role: models.ParseRole(data["role"])}, true, nil
}

// DeleteSession removes a session.
func (s *RedisService) DeleteSession(ctx context.Context, token string) error {
	if err := s.Client.Del(ctx, getSessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}

// --- Utility ---

// InitializeRedisClient creates a Redis client and pings it.
func InitializeRedisClient(ctx context.Context, addr, password string, dbIndex int, log *logrus.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbIndex,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}

	log.WithFields(logrus.Fields{"addr": addr, "db": dbIndex}).Info("Successfully connected to Redis")
	return rdb, nil
}
