// Package store keeps the last pen event per unit type and the session state in Redis so
// other processes can read them without subscribing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spenremote/internal/protocol"
	"spenremote/pkg/spen"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "spen:"
	stateKey  = keyPrefix + "state"
)

// backend is the subset of the Redis client the cache uses.
type backend interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StateCache stores JSON notices under spen:last:<unit_type> and spen:state.
type StateCache struct {
	rdb backend
	ttl time.Duration
}

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

// NewStateCache wraps rdb. Event entries expire after ttl; zero keeps them forever.
func NewStateCache(rdb backend, ttl time.Duration) *StateCache {
	return &StateCache{rdb: rdb, ttl: ttl}
}

func lastKey(t spen.UnitType) string { return keyPrefix + "last:" + t.String() }

// SetLastEvent records ev as the latest event of its unit type.
func (c *StateCache) SetLastEvent(ctx context.Context, ev spen.Event) error {
	data, err := json.Marshal(protocol.NoticeFor(ev))
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, lastKey(ev.Type()), data, c.ttl).Err()
}

// LastEvent returns the latest event of unit type t, nil when none is cached.
func (c *StateCache) LastEvent(ctx context.Context, t spen.UnitType) (*protocol.EventNotice, error) {
	var n protocol.EventNotice
	ok, err := c.get(ctx, lastKey(t), &n)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}

// SetState records the current session state.
func (c *StateCache) SetState(ctx context.Context, state spen.ConnectionState) error {
	data, err := json.Marshal(protocol.NewStateNotice(state))
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, stateKey, data, 0).Err()
}

// State returns the cached session state, nil when none is cached.
func (c *StateCache) State(ctx context.Context) (*protocol.StateNotice, error) {
	var n protocol.StateNotice
	ok, err := c.get(ctx, stateKey, &n)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}

// Clear removes every key the cache owns.
func (c *StateCache) Clear(ctx context.Context) error {
	keys := []string{stateKey}
	for _, t := range spen.UnitTypes {
		keys = append(keys, lastKey(t))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *StateCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return true, nil
}
