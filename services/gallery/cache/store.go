package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const scanBatchSize = 100

type Options struct {
	// Addr is the Redis address. When empty the store is disabled and
	// every operation degrades to a miss/no-op.
	Addr     string
	Password string
	DB       int

	DefaultTTL time.Duration
	Codec      CodecConfig
}

func DefaultOptions() Options {
	return Options{
		DefaultTTL: 10 * time.Minute,
		Codec:      DefaultCodecConfig(),
	}
}

// envelope is the stored representation of one cache entry.
type envelope struct {
	Compressed bool   `json:"compressed"`
	Payload    string `json:"payload"`
}

// Store is a key/value cache over Redis with TTL, pattern deletion and a
// liveness probe. The backing store is optional infrastructure: every
// operation degrades to "cache miss" / "write declined" instead of
// propagating an error when it is unreachable or unconfigured.
type Store struct {
	rdb    *redis.Client
	codec  *Codec
	stats  *Stats
	ttl    time.Duration
	logger *zap.Logger
}

func NewStore(opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("cache")

	var rdb *redis.Client
	if opts.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	} else {
		logger.Info("no cache address configured, caching disabled")
	}

	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultOptions().DefaultTTL
	}

	return &Store{
		rdb:    rdb,
		codec:  NewCodec(opts.Codec, logger),
		stats:  &Stats{},
		ttl:    ttl,
		logger: logger,
	}
}

func (s *Store) Enabled() bool {
	return s.rdb != nil
}

func (s *Store) DefaultTTL() time.Duration {
	return s.ttl
}

// Get reads and decodes the entry at key into out. It reports a miss on
// absent keys, on store unavailability and on any read error.
func (s *Store) Get(ctx context.Context, key string, out any) bool {
	if s.rdb == nil {
		s.stats.recordMiss()
		return false
	}

	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.stats.recordError()
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		s.stats.recordMiss()
		return false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Payload == "" {
		// Not an envelope. Tolerate entries written without one.
		if err := s.codec.Decode(raw, false, out); err != nil {
			s.stats.recordError()
			s.logger.Warn("cache entry not decodable", zap.String("key", key), zap.Error(err))
			s.stats.recordMiss()
			return false
		}
		s.stats.recordHit()
		return true
	}

	if err := s.codec.Decode(env.Payload, env.Compressed, out); err != nil {
		s.stats.recordError()
		s.logger.Warn("cache entry not decodable", zap.String("key", key), zap.Error(err))
		s.stats.recordMiss()
		return false
	}

	s.stats.recordHit()
	return true
}

// Set encodes and writes value under key. It reports false instead of
// failing when the store is unavailable or the write fails.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if s.rdb == nil {
		return false
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	encoded, err := s.codec.Encode(value)
	if err != nil {
		s.stats.recordError()
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}

	raw, err := json.Marshal(envelope{
		Compressed: encoded.Compressed,
		Payload:    encoded.Payload,
	})
	if err != nil {
		s.stats.recordError()
		return false
	}

	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.stats.recordError()
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return false
	}

	s.logger.Debug("cache write",
		zap.String("key", key),
		zap.Bool("compressed", encoded.Compressed),
		zap.Int("originalSize", encoded.OriginalSize),
		zap.Int("compressedSize", encoded.CompressedSize))
	return true
}

func (s *Store) Invalidate(ctx context.Context, key string) bool {
	if s.rdb == nil {
		return false
	}
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		s.stats.recordError()
		s.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return deleted > 0
}

// InvalidatePattern deletes every key matching the glob pattern and
// returns the number of deleted entries. Used for "delete every entry for
// this subject" regardless of which filter-hash variants exist.
func (s *Store) InvalidatePattern(ctx context.Context, pattern string) int {
	if s.rdb == nil {
		return 0
	}

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			s.stats.recordError()
			s.logger.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
			return deleted
		}
		if len(keys) > 0 {
			count, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				s.stats.recordError()
				s.logger.Warn("cache pattern delete failed", zap.String("pattern", pattern), zap.Error(err))
				return deleted
			}
			deleted += int(count)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted
}

func (s *Store) HealthCheck(ctx context.Context) bool {
	if s.rdb == nil {
		return false
	}
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *Store) Stats() *Stats {
	return s.stats
}
