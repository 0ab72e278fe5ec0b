// Package videoqueue implements C9: the optional async video
// moderation queue, grounded on original_source/src/queue2/mod.rs's
// Queue (Arc<RwLock<HashSet<String>>> dedup set + tokio::sync::Semaphore
// permits), re-expressed with golang.org/x/sync/semaphore and a plain
// sync.RWMutex over the tracking set.
package videoqueue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is one unit of video-moderation work. ID is the video URL;
// Complete runs the upload/poll/persist pipeline documented in
// SPEC_FULL.md §4.9 and internal/videoqueue/video_task.go.
type Task interface {
	ID() string
	Complete(ctx context.Context)
}

// Queue runs at most concurrency Tasks at a time, silently dropping a
// Submit for an ID already tracked (idempotent dedup per spec.md §4.9).
type Queue struct {
	sem    *semaphore.Weighted
	mu     sync.RWMutex
	active map[string]struct{}
	logger *slog.Logger
}

// New builds a Queue with the given permit count.
func New(concurrency int64, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		sem:    semaphore.NewWeighted(concurrency),
		active: make(map[string]struct{}),
		logger: logger,
	}
}

// Submit admits task for background processing unless its ID is
// already tracked. Submit records the task and returns without
// waiting; the task's own goroutine acquires a permit before running
// the task body.
func (q *Queue) Submit(ctx context.Context, task Task) {
	if !q.addTask(task.ID()) {
		q.logger.Debug("videoqueue: dropping duplicate submission", "id", task.ID())
		return
	}

	go func() {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.logger.Warn("videoqueue: failed to acquire permit", "id", task.ID(), "error", err)
			q.removeTask(task.ID())
			return
		}
		defer q.sem.Release(1)
		defer q.removeTask(task.ID())
		task.Complete(ctx)
	}()
}

// JobExists reports whether id is currently tracked, backing
// img_proxy_describe's Pending status.
func (q *Queue) JobExists(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.active[id]
	return ok
}

func (q *Queue) addTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.active[id]; exists {
		return false
	}
	q.active[id] = struct{}{}
	return true
}

func (q *Queue) removeTask(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, id)
}
