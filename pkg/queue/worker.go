package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/searchfabric/connectors/pkg/common/logger"
	"github.com/sirupsen/logrus"
)

type WorkerConfig struct {
	Concurrency  int
	BatchSize    int
	PollInterval time.Duration
	IdleDelay    time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  4,
		BatchSize:    10,
		PollInterval: 500 * time.Millisecond,
		IdleDelay:    800 * time.Millisecond,
	}
}

// Worker runs claim/process/resolve loops against the queue. Any number
// of workers (and worker processes) may run concurrently; the claim
// protocol keeps their batches disjoint.
type Worker struct {
	svc  *Service
	proc Processor
	dlq  Publisher // optional; dead-lettered events are mirrored here
	cfg  WorkerConfig
}

func NewWorker(svc *Service, proc Processor, dlq Publisher, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 800 * time.Millisecond
	}
	return &Worker{svc: svc, proc: proc, dlq: dlq, cfg: cfg}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(w.cfg.Concurrency)

	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("worker-%s", uuid.New().String()[:8])
		go func() {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}

	wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID string) {
	log := logger.Log.WithField("worker_id", workerID)
	log.WithFields(logrus.Fields{
		"poll_interval": w.cfg.PollInterval.String(),
		"batch_size":    w.cfg.BatchSize,
	}).Info("worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		case <-ticker.C:
			claimed, err := w.svc.ClaimBatch(ctx, w.cfg.BatchSize, workerID)
			if err != nil {
				log.WithError(err).Error("claim failed")
				continue
			}
			if len(claimed) == 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.cfg.IdleDelay):
				}
				continue
			}

			for _, ev := range claimed {
				w.processOne(ctx, log, ev)
			}
		}
	}
}

// processOne runs the processor and reports the outcome. A failure here
// never affects the other events in the batch.
func (w *Worker) processOne(ctx context.Context, log *logrus.Entry, ev Event) {
	outcome := Success()
	if err := w.proc.Process(ctx, ev); err != nil {
		outcome = Failure(err.Error())
	}

	resolved, err := w.svc.Resolve(ctx, ev.ID, outcome)
	if err != nil {
		// InvalidState here means the reaper or another resolver beat us.
		log.WithError(err).WithField("event_id", ev.ID).Error("resolve failed")
		return
	}

	if resolved.Status == StatusDeadLetter && w.dlq != nil {
		if err := w.dlq.PublishEvent(ctx, resolved.EventType, resolved.SourceID, Envelope(*resolved)); err != nil {
			log.WithError(err).WithField("event_id", resolved.ID).Error("failed to mirror event to DLQ topic")
		}
	}
}
