package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docvault/internal/apperr"
	"docvault/internal/config"
	"docvault/internal/model"
)

// redisStore implements Store on Redis. Records are JSON values under
// SETEX-managed keys; the scan queue is a list (LPUSH producer side, BRPOP
// consumer side).
type redisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisStore{rdb: rdb, logger: logger}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests.
func NewRedisWithClient(rdb *redis.Client, logger *zap.Logger) Store {
	return &redisStore{rdb: rdb, logger: logger}
}

func (s *redisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "encode record")
	}
	if err := s.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	return nil
}

func (s *redisStore) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, err, "decode record")
	}
	return true, nil
}

// updateTTL returns the TTL to re-apply when rewriting an existing record:
// the remaining TTL, floored at minUpdateTTL, never extended otherwise.
func (s *redisStore) updateTTL(ctx context.Context, key string) time.Duration {
	remaining, err := s.rdb.TTL(ctx, key).Result()
	if err != nil || remaining < minUpdateTTL {
		return minUpdateTTL
	}
	return remaining
}

// Upload sessions

func (s *redisStore) CreateUploadSession(ctx context.Context, sess model.UploadSession, ttl time.Duration) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Status == "" {
		sess.Status = model.UploadSessionPending
	}
	return s.setJSON(ctx, uploadSessionPrefix+sess.SessionID, sess, ttl)
}

func (s *redisStore) GetUploadSession(ctx context.Context, id string) (*model.UploadSession, error) {
	var sess model.UploadSession
	ok, err := s.getJSON(ctx, uploadSessionPrefix+id, &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

func (s *redisStore) UpdateUploadSession(ctx context.Context, id string, patch UploadSessionPatch) (bool, error) {
	key := uploadSessionPrefix + id

	var sess model.UploadSession
	ok, err := s.getJSON(ctx, key, &sess)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Warn("upload session not found for update", zap.String("session_id", id))
		return false, nil
	}

	if patch.UploadedSize != nil {
		sess.UploadedSize = *patch.UploadedSize
	}
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.ErrorMessage != nil {
		sess.ErrorMessage = *patch.ErrorMessage
	}
	sess.UpdatedAt = time.Now().UTC()

	if err := s.setJSON(ctx, key, sess, s.updateTTL(ctx, key)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisStore) DeleteUploadSession(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, uploadSessionPrefix+id).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	return n > 0, nil
}

// Scan jobs

func (s *redisStore) CreateScanJob(ctx context.Context, job model.ScanJobRecord, ttl time.Duration) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.ScanStatusPending
	}
	if err := s.setJSON(ctx, scanJobPrefix+job.ScanID, job, ttl); err != nil {
		return err
	}
	if err := s.rdb.LPush(ctx, scanQueueKey, job.ScanID).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "scan queue unavailable")
	}
	return nil
}

func (s *redisStore) GetScanJob(ctx context.Context, id string) (*model.ScanJobRecord, error) {
	var job model.ScanJobRecord
	ok, err := s.getJSON(ctx, scanJobPrefix+id, &job)
	if err != nil || !ok {
		return nil, err
	}
	return &job, nil
}

func (s *redisStore) UpdateScanJob(ctx context.Context, id string, patch ScanJobPatch) (bool, error) {
	key := scanJobPrefix + id

	var job model.ScanJobRecord
	ok, err := s.getJSON(ctx, key, &job)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Warn("scan job not found for update", zap.String("scan_id", id))
		return false, nil
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.Result != nil {
		job.Result = *patch.Result
	}
	if patch.Threats != nil {
		job.Threats = patch.Threats
	}
	if patch.DurationMS != nil {
		job.DurationMS = *patch.DurationMS
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = *patch.ErrorMessage
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.setJSON(ctx, key, job, s.updateTTL(ctx, key)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *redisStore) DeleteScanJob(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Del(ctx, scanJobPrefix+id).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	return n > 0, nil
}

func (s *redisStore) DequeueScanJob(ctx context.Context, timeout time.Duration) (string, error) {
	vals, err := s.rdb.BRPop(ctx, timeout, scanQueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Wrap(apperr.KindUnavailable, err, "scan queue unavailable")
	}
	// BRPOP returns [key, value].
	return vals[1], nil
}

func (s *redisStore) QueueDepth(ctx context.Context) (int64, error) {
	n, err := s.rdb.LLen(ctx, scanQueueKey).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, err, "scan queue unavailable")
	}
	return n, nil
}

// Cache

func (s *redisStore) CacheSet(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.setJSON(ctx, cachePrefix+key, value, ttl)
}

func (s *redisStore) CacheGet(ctx context.Context, key string, dest any) (bool, error) {
	return s.getJSON(ctx, cachePrefix+key, dest)
}

func (s *redisStore) CacheDelete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, cachePrefix+key).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	return n > 0, nil
}

// Rate limiting

// Allow implements a sliding window over a sorted set: prune entries older
// than the window, count what remains, record this request, refresh expiry.
// Fails open so a store outage does not block ingress.
func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	fullKey := rateLimitPrefix + key

	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", strconv.FormatFloat(unixSeconds(windowStart), 'f', 6, 64))
	card := pipe.ZCard(ctx, fullKey)
	pipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  unixSeconds(now),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, fullKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("rate limit check failed", zap.String("key", key), zap.Error(err))
		return true, apperr.Wrap(apperr.KindUnavailable, err, "rate limiter unavailable")
	}
	return card.Val() < int64(limit), nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (s *redisStore) HealthCheck(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, err, "job store unavailable")
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
