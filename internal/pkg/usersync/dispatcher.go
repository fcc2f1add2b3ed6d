package usersync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	DefaultWorkers       = 4
	DefaultQueueSize     = 256
	DefaultJobTimeout    = 25 * time.Second
	DefaultPollInterval  = time.Second
	DefaultSweepInterval = time.Minute
)

var (
	ErrQueueFull        = errors.New("usersync: queue full")
	ErrQueueUnavailable = errors.New("usersync: queue unavailable")
	ErrStopped          = errors.New("usersync: dispatcher not running")
)

// Processor reconciles one event. *Reconciler implements it.
type Processor interface {
	Reconcile(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error)
}

// Job is a verified event waiting for a worker.
type Job struct {
	EventID    string
	Event      *clerk.Event
	ReceivedAt time.Time
}

// Result is reported for every processed job.
type Result struct {
	Job      Job
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

type DispatcherConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// Queue defaults to a MemoryQueue of QueueSize.
	Queue Queue
	// PollInterval bounds how long an idle worker waits before checking for Stop.
	PollInterval time.Duration
	// OnResult is called from the worker goroutine after each job.
	OnResult func(Result)
}

// DispatcherConfigFromEnv reads WEBHOOK_WORKERS, WEBHOOK_QUEUE_SIZE,
// WEBHOOK_PROCESS_TIMEOUT and WEBHOOK_QUEUE_BACKEND.
func DispatcherConfigFromEnv() DispatcherConfig {
	size := env.GetEnvInt("WEBHOOK_QUEUE_SIZE", DefaultQueueSize)
	return DispatcherConfig{
		Workers:    env.GetEnvInt("WEBHOOK_WORKERS", DefaultWorkers),
		QueueSize:  size,
		JobTimeout: env.GetEnvDuration("WEBHOOK_PROCESS_TIMEOUT", DefaultJobTimeout),
		Queue:      QueueFromEnv(size),
	}
}

// stuckRecoverer is implemented by durable queues that can hand back jobs of
// crashed workers.
type stuckRecoverer interface {
	RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error)
}

// Dispatcher runs accepted events on a fixed worker pool behind a bounded queue.
// Results never reach the HTTP caller; they are logged and handed to OnResult.
type Dispatcher struct {
	processor Processor
	cfg       DispatcherConfig
	queue     Queue

	stopCh  chan struct{}
	stopCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

func NewDispatcher(p Processor, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Queue == nil {
		cfg.Queue = NewMemoryQueue(cfg.QueueSize)
	}
	return &Dispatcher{processor: p, cfg: cfg, queue: cfg.Queue}
}

// Start launches the workers, plus the stuck-job sweeper for durable queues.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.stopCtx, d.cancel = context.WithCancel(context.Background())
	log.Infof("[UserSync] Starting %d workers (queue=%d, timeout=%s, durable=%t)",
		d.cfg.Workers, d.cfg.QueueSize, d.cfg.JobTimeout, d.queue.Durable())

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	if r, ok := d.queue.(stuckRecoverer); ok {
		d.wg.Add(1)
		go d.stuckSweeper(r, DefaultStuckAfter, DefaultSweepInterval)
	}
}

// Stop refuses new jobs and waits for the workers. An in-memory queue is drained
// first; a durable queue keeps its pending jobs for the next start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	log.Info("[UserSync] Stopping workers...")
	d.running = false
	close(d.stopCh)
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	log.Info("[UserSync] All workers stopped")
}

// Submit enqueues job without blocking on the workers. It returns ErrQueueFull
// when no slot is free, ErrQueueUnavailable when a durable queue cannot be
// reached and ErrStopped when the dispatcher is not running.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		return ErrStopped
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return d.queue.Push(ctx, job)
}

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.queue.Len(ctx)
}

func (d *Dispatcher) stopped() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		qj, err := d.queue.Pop(d.stopCtx, d.cfg.PollInterval)
		if err != nil {
			log.Errorf("[UserSync] Worker %d: dequeue failed: %v", id, err)
			select {
			case <-d.stopCh:
				return
			case <-time.After(d.cfg.PollInterval):
			}
			continue
		}
		if qj == nil {
			if d.stopped() {
				return
			}
			continue
		}

		d.process(id, qj.Job)
		d.queue.Ack(context.Background(), qj)
		if d.queue.Durable() && d.stopped() {
			return
		}
	}
}

func (d *Dispatcher) stuckSweeper(r stuckRecoverer, maxAge, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			n, err := r.RecoverStuck(ctx, maxAge)
			cancel()
			if err != nil {
				log.Errorf("[UserSync] Stuck job sweep failed: %v", err)
			} else if n > 0 {
				log.Warnf("[UserSync] Requeued %d stuck jobs", n)
			}
		}
	}
}

func (d *Dispatcher) process(workerID int, job Job) {
	start := time.Now()
	res := Result{Job: job}

	func() {
		defer func() {
			if p := recover(); p != nil {
				log.Errorf("[UserSync] Worker %d panicked on event %s: %v", workerID, job.EventID, p)
				res.Err = errors.New("panic while processing event")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
		defer cancel()
		res.Outcome, res.Err = d.processor.Reconcile(ctx, job.EventID, job.Event)
	}()

	res.Duration = time.Since(start)
	if res.Err != nil {
		log.Errorf("[UserSync] Worker %d: event %s failed after %s: %v", workerID, job.EventID, res.Duration, res.Err)
	} else {
		log.Debugf("[UserSync] Worker %d: event %s -> %s in %s", workerID, job.EventID, res.Outcome, res.Duration)
	}
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(res)
	}
}
