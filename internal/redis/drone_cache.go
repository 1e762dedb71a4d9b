package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CachedDroneState is the hot snapshot served to trackers without a DB hit.
type CachedDroneState struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AltitudeM float64   `json:"altitude_m"`
	Battery   float64   `json:"battery"`
	Timestamp time.Time `json:"timestamp"`
}

type DroneStateCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDroneStateCache(client *goredis.Client, ttlSeconds int) *DroneStateCache {
	return &DroneStateCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *DroneStateCache) Set(ctx context.Context, droneID string, state CachedDroneState) error {
	state.Timestamp = time.Now()
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal drone state: %w", err)
	}
	return c.client.Set(ctx, droneStateKey(droneID), bytes, c.ttl).Err()
}

func (c *DroneStateCache) Get(ctx context.Context, droneID string) (*CachedDroneState, error) {
	bytes, err := c.client.Get(ctx, droneStateKey(droneID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get drone state: %w", err)
	}

	var state CachedDroneState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("unmarshal drone state: %w", err)
	}
	return &state, nil
}

func droneStateKey(droneID string) string {
	return fmt.Sprintf("drone:state:%s", droneID)
}
