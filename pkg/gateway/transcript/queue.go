package transcript

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultQueueSize bounds the number of pending transcript writes.
	DefaultQueueSize = 256

	writeTimeout = 10 * time.Second
)

type writeJob struct {
	sessionID string
	create    bool
	kind      string
	data      any
	title     string
	status    string
}

// Writer decouples transcript writes from the live event stream through a
// bounded FIFO queue served by a single worker, so per-conversation append
// order is preserved. Failure policy: log and continue; a full queue drops
// the incoming write (and logs it) rather than stalling the turn.
type Writer struct {
	store *Store
	jobs  chan writeJob
	done  chan struct{}
	log   logr.Logger
}

// NewWriter starts a Writer over the given store.
func NewWriter(store *Store, queueSize int, log logr.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	w := &Writer{
		store: store,
		jobs:  make(chan writeJob, queueSize),
		done:  make(chan struct{}),
		log:   log.WithName("transcript-writer"),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		switch {
		case job.create:
			err = w.store.Create(ctx, job.sessionID)
		case job.title != "":
			err = w.store.UpdateTitle(ctx, job.sessionID, job.title)
		case job.status != "":
			err = w.store.UpdateStatus(ctx, job.sessionID, job.status)
		default:
			err = w.store.AppendEvent(ctx, job.sessionID, job.kind, job.data)
		}
		cancel()
		if err != nil {
			w.log.Error(err, "transcript write failed",
				"session", job.sessionID, "kind", job.kind)
		}
	}
}

func (w *Writer) enqueue(job writeJob) {
	select {
	case w.jobs <- job:
	default:
		w.log.Info("transcript queue full, dropping write",
			"session", job.sessionID, "kind", job.kind)
	}
}

// EnsureSession queues creation of the session's metadata record. Queued
// ahead of the first Append, FIFO ordering guarantees the record exists
// before its events.
func (w *Writer) EnsureSession(sessionID string) {
	w.enqueue(writeJob{sessionID: sessionID, create: true})
}

// Append queues one transcript event.
func (w *Writer) Append(sessionID, kind string, data any) {
	w.enqueue(writeJob{sessionID: sessionID, kind: kind, data: data})
}

// SetTitle queues a title update.
func (w *Writer) SetTitle(sessionID, title string) {
	w.enqueue(writeJob{sessionID: sessionID, title: title})
}

// SetStatus queues a status update.
func (w *Writer) SetStatus(sessionID, status string) {
	w.enqueue(writeJob{sessionID: sessionID, status: status})
}

// Close drains pending writes and stops the worker.
func (w *Writer) Close() {
	close(w.jobs)
	<-w.done
}
