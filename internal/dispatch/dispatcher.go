// Package dispatch runs the proximity-alert worker pool.
//
// Workers drain the job queue independently of the gateway's broadcast path,
// so a slow mail transport never adds latency to location fan-out. Delivery
// is at-least-once: a job that fails is re-enqueued with its attempt count
// incremented until MaxAttempts, then dead-lettered. A redelivered job can
// therefore notify the same resident twice for roughly the same position;
// that duplicate is an accepted property of the pipeline, not a defect, and
// deduplication is left to downstream consumers.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Brandonkhumalo/refuse-tracker/internal/geo"
	"github.com/Brandonkhumalo/refuse-tracker/internal/models"
	"github.com/Brandonkhumalo/refuse-tracker/internal/notify"
	"github.com/Brandonkhumalo/refuse-tracker/internal/store"
)

// Dispatcher consumes proximity-alert jobs and notifies qualifying residents.
type Dispatcher struct {
	queue       Queue
	trucks      store.TruckStore
	residents   store.ResidentStore
	notifier    notify.Notifier
	logger      *zap.Logger
	workers     int
	maxAttempts int
	thresholdKm float64
}

// NewDispatcher creates a dispatcher with the given pool size and retry
// bounds.
func NewDispatcher(
	queue Queue,
	trucks store.TruckStore,
	residents store.ResidentStore,
	notifier notify.Notifier,
	workers, maxAttempts int,
	thresholdKm float64,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if thresholdKm <= 0 {
		thresholdKm = 1.0
	}

	return &Dispatcher{
		queue:       queue,
		trucks:      trucks,
		residents:   residents,
		notifier:    notifier,
		logger:      logger.With(zap.String("component", "dispatch")),
		workers:     workers,
		maxAttempts: maxAttempts,
		thresholdKm: thresholdKm,
	}
}

// Run starts the worker pool and blocks until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting alert dispatcher",
		zap.Int("workers", d.workers),
		zap.Float64("threshold_km", d.thresholdKm))

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()

	d.logger.Info("Alert dispatcher stopped")
	return ctx.Err()
}

func (d *Dispatcher) runWorker(ctx context.Context, worker int) {
	logger := d.logger.With(zap.Int("worker", worker))
	for {
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error("Failed to dequeue alert job", zap.Error(err))
			continue
		}
		d.Process(ctx, job)
	}
}

// Process handles a single job: resolve the truck, find region-matched
// residents with known coordinates, and notify everyone within the distance
// threshold. Exported so tests can drive jobs without running the pool.
func (d *Dispatcher) Process(ctx context.Context, job models.ProximityAlertJob) {
	truck, err := d.trucks.GetTruck(ctx, job.TruckID)
	if err != nil {
		if errors.Is(err, store.ErrTruckNotFound) {
			// The truck vanished between report and dispatch; nothing
			// to notify about.
			d.logger.Warn("Dropping alert job for unknown truck", zap.Int64("truck_id", job.TruckID))
			return
		}
		d.retry(ctx, job, err)
		return
	}

	// Region matching rule: residents whose suburb contains the truck's
	// route text, case-insensitively. The rule lives in the store query so
	// Postgres and memory implementations agree.
	candidates, err := d.residents.ResidentsInRegion(ctx, truck.Route)
	if err != nil {
		d.retry(ctx, job, err)
		return
	}

	var failed bool
	notified := 0
	for _, resident := range candidates {
		if !resident.HasCoordinates() {
			continue
		}
		distanceKm := geo.HaversineKm(job.Latitude, job.Longitude, *resident.Lat, *resident.Lng)
		if distanceKm > d.thresholdKm {
			continue
		}
		if err := d.notifier.NotifyProximity(ctx, truck, resident); err != nil {
			d.logger.Error("Notification failed",
				zap.Int64("truck_id", truck.ID),
				zap.String("resident", resident.Email),
				zap.Error(err))
			failed = true
			continue
		}
		notified++
	}

	if failed {
		d.retry(ctx, job, errors.New("one or more notifications failed"))
		return
	}

	if notified > 0 {
		d.logger.Info("Proximity alerts sent",
			zap.Int64("truck_id", truck.ID),
			zap.Int("residents", notified))
	}
}

// retry re-enqueues the job with an incremented attempt count, or
// dead-letters it once MaxAttempts is reached. Alert failures never
// propagate back to the reporting connection.
func (d *Dispatcher) retry(ctx context.Context, job models.ProximityAlertJob, cause error) {
	job.Attempt++
	if job.Attempt >= d.maxAttempts {
		d.logger.Error("Alert job exhausted retries",
			zap.Int64("truck_id", job.TruckID),
			zap.Int("attempts", job.Attempt),
			zap.Error(cause))
		if err := d.queue.DeadLetter(ctx, job); err != nil {
			d.logger.Error("Failed to dead-letter alert job", zap.Error(err))
		}
		return
	}

	d.logger.Warn("Retrying alert job",
		zap.Int64("truck_id", job.TruckID),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause))
	if err := d.queue.Enqueue(ctx, job); err != nil {
		d.logger.Error("Failed to re-enqueue alert job", zap.Error(err))
	}
}
