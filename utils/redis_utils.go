package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	inner *redis.Client
}

const (
	aggregateKeyPrefix = "agg"
	cursorKeyPrefix    = "cursor"
	redisKeyDelimiter  = "__"
)

var ctx = context.Background()

func GetRedisClient() (*RedisClient, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return &RedisClient{inner: redisClient}, nil
}

func AggregateKey(feedId string, aggName string, window string) string {
	return aggregateKeyPrefix + redisKeyDelimiter + feedId + redisKeyDelimiter +
		aggName + redisKeyDelimiter + window
}

func CursorKey(feedId string) string {
	return cursorKeyPrefix + redisKeyDelimiter + feedId
}

// SetAggregateSnapshot caches the serialized snapshot for a single
// (feed, aggregation, window) key. Readers always fall back to Postgres on a
// cache miss, so ttl is just a freshness bound.
func (r *RedisClient) SetAggregateSnapshot(feedId string, aggName string, window string, payload []byte, ttl time.Duration) error {
	return r.inner.Set(ctx, AggregateKey(feedId, aggName, window), payload, ttl).Err()
}

// GetAggregateSnapshot returns the cached snapshot payload, or (nil, nil) on a
// cache miss.
func (r *RedisClient) GetAggregateSnapshot(feedId string, aggName string, window string) ([]byte, error) {
	res, err := r.inner.Get(ctx, AggregateKey(feedId, aggName, window)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return res, err
}

// DeleteAggregateSnapshots drops the cached snapshots of the named families
// for one (feed, window) in a single DEL, so readers fall back to Postgres.
func (r *RedisClient) DeleteAggregateSnapshots(feedId string, window string, aggNames []string) error {
	if len(aggNames) == 0 {
		return nil
	}
	keys := make([]string, 0, len(aggNames))
	for _, name := range aggNames {
		keys = append(keys, AggregateKey(feedId, name, window))
	}
	return r.inner.Del(ctx, keys...).Err()
}

// SaveCursor persists the stream cursor (microseconds since epoch) for a feed
// listener so a restarted worker resumes where it left off.
func (r *RedisClient) SaveCursor(feedId string, cursor int64) error {
	return r.inner.Set(ctx, CursorKey(feedId), strconv.FormatInt(cursor, 10), 0).Err()
}

// GetCursor returns the saved cursor for a feed, or 0 when none was saved yet.
func (r *RedisClient) GetCursor(feedId string) (int64, error) {
	res, err := r.inner.Get(ctx, CursorKey(feedId)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(res, 10, 64)
}
