package dispatch

import (
	"context"
	"sync"

	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
)

// Queue carries proximity-alert jobs from the gateway to dispatcher workers.
// Implementations provide at-least-once delivery: a job handed to Dequeue may
// be seen again if the worker re-enqueues it after a failure.
type Queue interface {
	// Enqueue adds a job. It must not block on slow consumers beyond
	// transient broker backpressure.
	Enqueue(ctx context.Context, job models.ProximityAlertJob) error
	// Dequeue blocks until a job is available or the context is done.
	Dequeue(ctx context.Context) (models.ProximityAlertJob, error)
	// DeadLetter parks a job that exhausted its delivery attempts.
	DeadLetter(ctx context.Context, job models.ProximityAlertJob) error
}

// ChannelQueue is an in-process Queue used by tests and single-node
// deployments without Redis.
type ChannelQueue struct {
	jobs chan models.ProximityAlertJob

	mu   sync.Mutex
	dead []models.ProximityAlertJob
}

// NewChannelQueue creates a buffered in-process queue.
func NewChannelQueue(capacity int) *ChannelQueue {
	if capacity < 1 {
		capacity = 64
	}
	return &ChannelQueue{jobs: make(chan models.ProximityAlertJob, capacity)}
}

// Enqueue adds a job, blocking only when the buffer is full.
func (q *ChannelQueue) Enqueue(ctx context.Context, job models.ProximityAlertJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available or the context is done.
func (q *ChannelQueue) Dequeue(ctx context.Context) (models.ProximityAlertJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return models.ProximityAlertJob{}, ctx.Err()
	}
}

// DeadLetter records the job in the in-memory dead list.
func (q *ChannelQueue) DeadLetter(_ context.Context, job models.ProximityAlertJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, job)
	return nil
}

// DeadLetters returns a copy of the parked jobs. Test helper.
func (q *ChannelQueue) DeadLetters() []models.ProximityAlertJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.ProximityAlertJob, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len returns the number of queued jobs. Test helper.
func (q *ChannelQueue) Len() int {
	return len(q.jobs)
}
