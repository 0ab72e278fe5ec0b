package videoqueue

import (
	"context"
	"log/slog"

	"github.com/imgproxy/imgproxy/internal/blobstore"
	"github.com/imgproxy/imgproxy/internal/document"
	"github.com/imgproxy/imgproxy/internal/store"
)

// Dispatcher adapts a Queue plus the dependencies a VideoTask needs
// into the two-method shape internal/pipeline depends on
// (pipeline.VideoDispatcher), so the pipeline can hand off a fetched
// video document without importing this package directly.
type Dispatcher struct {
	Queue     *Queue
	Blobs     blobstore.Store
	Moderator VideoModerator
	Store     store.Store
	Logger    *slog.Logger
}

// NewDispatcher builds a Dispatcher around an already-constructed Queue.
func NewDispatcher(q *Queue, blobs blobstore.Store, moderator VideoModerator, st store.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Queue: q, Blobs: blobs, Moderator: moderator, Store: st, Logger: logger}
}

// JobExists reports whether doc's URL is currently tracked by the queue.
func (d *Dispatcher) JobExists(id string) bool {
	return d.Queue.JobExists(id)
}

// Submit wraps doc in a VideoTask and hands it to the queue, relying
// on Queue.Submit's own id-based dedup to absorb a duplicate fetch for
// a URL whose job is already in flight.
func (d *Dispatcher) Submit(ctx context.Context, doc *document.Document) {
	d.Queue.Submit(ctx, &VideoTask{
		Doc:       doc,
		Blobs:     d.Blobs,
		Moderator: d.Moderator,
		Store:     d.Store,
		Logger:    d.Logger,
	})
}
