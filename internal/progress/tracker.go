// Package progress tracks background job progress for UI polling.
//
// Redis is the preferred backend so progress survives process restarts and
// is visible across hosts; when Redis is unavailable the tracker degrades
// to an in-memory map and the API keeps working.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/domain"
)

// ErrNotFound is returned when no progress has been recorded for a job.
var ErrNotFound = errors.New("progress: job not found")

const progressTTL = 24 * time.Hour

// Tracker records and serves per-job progress snapshots.
type Tracker struct {
	redis *redis.Client // optional

	mu      sync.RWMutex
	entries map[int64]domain.Progress
	cancels map[int64]bool
}

// NewTracker creates a tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client) *Tracker {
	return &Tracker{
		redis:   redisClient,
		entries: make(map[int64]domain.Progress),
		cancels: make(map[int64]bool),
	}
}

func (t *Tracker) hasRedis() bool { return t.redis != nil }

func progressKey(jobID int64) string { return fmt.Sprintf("listkeeper:progress:%d", jobID) }
func cancelKey(jobID int64) string   { return fmt.Sprintf("listkeeper:cancel:%d", jobID) }

// Set records a progress snapshot for a job.
func (t *Tracker) Set(ctx context.Context, p domain.Progress) {
	p.UpdatedAt = time.Now().UTC()
	if p.Total > 0 {
		p.Percent = float64(p.Processed) / float64(p.Total) * 100
	}
	if t.hasRedis() {
		data, _ := json.Marshal(p)
		t.redis.Set(ctx, progressKey(p.JobID), data, progressTTL)
	}
	t.mu.Lock()
	t.entries[p.JobID] = p
	t.mu.Unlock()
}

// Get returns the latest recorded progress for a job.
func (t *Tracker) Get(ctx context.Context, jobID int64) (domain.Progress, error) {
	if t.hasRedis() {
		data, err := t.redis.Get(ctx, progressKey(jobID)).Bytes()
		if err == nil {
			var p domain.Progress
			if err := json.Unmarshal(data, &p); err == nil {
				return p, nil
			}
		}
	}
	t.mu.RLock()
	p, ok := t.entries[jobID]
	t.mu.RUnlock()
	if !ok {
		return domain.Progress{}, ErrNotFound
	}
	return p, nil
}

// RequestCancel flags a job for cooperative cancellation. Pipelines check
// the flag at their progress cadence, never mid-record.
func (t *Tracker) RequestCancel(ctx context.Context, jobID int64) {
	if t.hasRedis() {
		t.redis.Set(ctx, cancelKey(jobID), "1", progressTTL)
	}
	t.mu.Lock()
	t.cancels[jobID] = true
	t.mu.Unlock()
}

// CancelRequested reports whether cancellation has been requested for a job.
func (t *Tracker) CancelRequested(ctx context.Context, jobID int64) bool {
	if t.hasRedis() {
		n, err := t.redis.Exists(ctx, cancelKey(jobID)).Result()
		if err == nil {
			return n > 0
		}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancels[jobID]
}

// Clear removes progress and cancellation state for a finished job.
func (t *Tracker) Clear(ctx context.Context, jobID int64) {
	if t.hasRedis() {
		t.redis.Del(ctx, progressKey(jobID), cancelKey(jobID))
	}
	t.mu.Lock()
	delete(t.entries, jobID)
	delete(t.cancels, jobID)
	t.mu.Unlock()
}
