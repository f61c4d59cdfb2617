package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	heartbeatPrefix = "worker:heartbeat"
	// HeartbeatTTL is how long a worker counts as active after its last heartbeat
	HeartbeatTTL = 60 * time.Second
)

// WorkerHeartbeat represents the heartbeat data for a worker pool instance
type WorkerHeartbeat struct {
	InstanceID    string    `json:"instance_id"`
	Status        string    `json:"status"` // "idle", "processing"
	InFlight      int       `json:"in_flight"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Heartbeats records which worker pool instances are alive
type Heartbeats struct {
	client *redis.Client
}

// NewHeartbeats creates a heartbeat store over a connected client
func NewHeartbeats(client *redis.Client) *Heartbeats {
	return &Heartbeats{client: client}
}

/* Beat stores or updates an instance's heartbeat
 * The key has a TTL of 60 seconds - an instance that stops beating
 * drops out of ActiveWorkers once it expires
 */
func (h *Heartbeats) Beat(ctx context.Context, instanceID, status string, inFlight int) error {
	key := fmt.Sprintf("%s:%s", heartbeatPrefix, instanceID)

	heartbeat := WorkerHeartbeat{
		InstanceID:    instanceID,
		Status:        status,
		InFlight:      inFlight,
		LastHeartbeat: time.Now().UTC(),
	}

	data, err := json.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("marshaling heartbeat: %w", err)
	}

	if err := h.client.Set(ctx, key, data, HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("setting heartbeat: %w", err)
	}

	return nil
}

// Forget removes an instance's heartbeat, used on shutdown
func (h *Heartbeats) Forget(ctx context.Context, instanceID string) error {
	key := fmt.Sprintf("%s:%s", heartbeatPrefix, instanceID)
	if err := h.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting heartbeat: %w", err)
	}
	return nil
}

// ActiveWorkers retrieves every instance with a live heartbeat
func (h *Heartbeats) ActiveWorkers(ctx context.Context) ([]WorkerHeartbeat, error) {
	pattern := heartbeatPrefix + ":*"
	var workers []WorkerHeartbeat

	var cursor uint64
	for {
		keys, nextCursor, err := h.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning worker keys: %w", err)
		}

		for _, key := range keys {
			data, err := h.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Key expired between scan and get
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("getting worker heartbeat: %w", err)
			}

			var heartbeat WorkerHeartbeat
			if err := json.Unmarshal([]byte(data), &heartbeat); err != nil {
				continue
			}

			workers = append(workers, heartbeat)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return workers, nil
}

// Count returns the number of instances with a live heartbeat
func (h *Heartbeats) Count(ctx context.Context) (int64, error) {
	workers, err := h.ActiveWorkers(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(workers)), nil
}
