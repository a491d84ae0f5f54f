// Package cache keeps api responses in redis and announces replaced forecast snapshots. A service
// without a client is a no-op so the api runs without redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aouyang1/ghg-forecaster"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix  = "ghg:"
	DefaultChannel = "ghg:forecast_completed"

	scanCount = 200
)

// Service wraps a redis client with json values under a key prefix
type Service struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
	logger  *slog.Logger
}

// Options configures the key prefix, the completion channel and the default ttl of cached values
type Options struct {
	Prefix  string
	Channel string
	TTL     time.Duration
}

func NewDefaultOptions() *Options {
	return &Options{
		Prefix:  DefaultPrefix,
		Channel: DefaultChannel,
		TTL:     10 * time.Minute,
	}
}

// New connects to the redis url and pings it. An empty url returns a disabled service.
func New(ctx context.Context, url string, opt *Options, logger *slog.Logger) (*Service, error) {
	if url == "" {
		return NewWithClient(nil, opt, logger), nil
	}
	redisOpt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis url, %w", err)
	}
	client := redis.NewClient(redisOpt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis, %w", err)
	}
	return NewWithClient(client, opt, logger), nil
}

// NewWithClient wraps an existing client, a nil client disables the service
func NewWithClient(client *redis.Client, opt *Options, logger *slog.Logger) *Service {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client:  client,
		prefix:  opt.Prefix,
		channel: opt.Channel,
		ttl:     opt.TTL,
		logger:  logger.With("component", "cache"),
	}
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	return s
}

func (s *Service) Available() bool {
	return s != nil && s.client != nil
}

// Key joins parts under the service prefix
func (s *Service) Key(parts ...string) string {
	key := DefaultPrefix
	if s != nil {
		key = s.prefix
	}
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Get decodes the cached value into dest and reports whether it was found
func (s *Service) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("unable to decode cached %s, %w", key, err)
	}
	return true, nil
}

// Set stores value under key, a zero ttl uses the service default
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *Service) Delete(ctx context.Context, keys ...string) error {
	if !s.Available() || len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Invalidate deletes every key under the service prefix and returns the number deleted
func (s *Service) Invalidate(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, nil
	}
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("unable to scan cached keys, %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("unable to delete cached keys, %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (s *Service) Publish(ctx context.Context, channel string, message any) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

// Completion is published on the completion channel after every snapshot replacement
type Completion struct {
	RunID    string `json:"run_id"`
	Horizon  int    `json:"horizon"`
	Entities int    `json:"entities"`
	Rows     int    `json:"rows"`
	Failures int    `json:"failures"`
}

func NewCompletion(res *forecaster.Results) Completion {
	return Completion{
		RunID:    res.RunID,
		Horizon:  res.Horizon,
		Entities: res.Entities,
		Rows:     len(res.Rows),
		Failures: len(res.Failures),
	}
}

// BatchCompleted drops cached responses that may hold the previous snapshot and publishes the
// completion of the run.
func (s *Service) BatchCompleted(ctx context.Context, res *forecaster.Results) error {
	if !s.Available() || res == nil {
		return nil
	}
	deleted, err := s.Invalidate(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("cache invalidated", "run_id", res.RunID, "keys", deleted)
	if err := s.Publish(ctx, s.channel, NewCompletion(res)); err != nil {
		return fmt.Errorf("unable to publish batch completion, %w", err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	if !s.Available() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

func (s *Service) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
