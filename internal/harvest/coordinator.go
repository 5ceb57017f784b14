package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/govtools/archive-resistance/internal/metrics"
	"github.com/govtools/archive-resistance/internal/report"
	"github.com/govtools/archive-resistance/internal/storage"
)

// heartbeatEvery is the completion cadence for coordinator heartbeat logs
const heartbeatEvery = 10

// Coordinator fans the domain list out to a bounded pool of workers, skips
// domains already in the checkpoint, and serializes result persistence.
// Per-domain stats are owned by one harvester at a time, so the report
// writer's mutex and sqlite are the only shared state.
type Coordinator struct {
	harvester    *Harvester
	store        *storage.Store
	writer       *report.Writer
	tracker      *metrics.Tracker
	workers      int
	retryPartial bool

	mu        sync.Mutex
	finished  int
	todoTotal int
}

// NewCoordinator creates a Coordinator with the given collaborators
func NewCoordinator(h *Harvester, store *storage.Store, writer *report.Writer, tracker *metrics.Tracker, workers int, retryPartial bool) *Coordinator {
	return &Coordinator{
		harvester:    h,
		store:        store,
		writer:       writer,
		tracker:      tracker,
		workers:      workers,
		retryPartial: retryPartial,
	}
}

// Run harvests every domain not already checkpointed, using up to the
// configured number of concurrent workers. Cancelling the context stops
// dispatch; in-flight domains finalize as interrupted and are left for the
// next run.
func (c *Coordinator) Run(ctx context.Context, domains []string) error {
	skip, err := c.store.SkipSet(c.retryPartial)
	if err != nil {
		// Storage trouble is surfaced but not fatal: worst case we repeat work
		logrus.Warnf("Failed to load checkpoint, starting from scratch: %v", err)
		skip = make(map[string]bool)
	}

	queue := NewQueue()
	todo := 0
	for _, d := range domains {
		if skip[d] {
			continue
		}
		if queue.Push(d) {
			todo++
		}
	}
	// All work is known up front; a stopped queue drains FIFO then releases workers
	queue.Stop()

	skipped := len(domains) - todo
	c.tracker.AddSkipped(skipped)
	c.mu.Lock()
	c.todoTotal = todo
	c.mu.Unlock()

	logrus.Infof("Resuming: %d domains already checkpointed, %d to harvest", skipped, todo)
	if todo == 0 {
		logrus.Info("Nothing to do")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		id := i + 1
		g.Go(func() error {
			return c.worker(gctx, id, queue)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logrus.Infof("Run finished: %s", c.tracker.LogProgress())
	return nil
}

// worker drains the queue until it is empty or the context is cancelled
func (c *Coordinator) worker(ctx context.Context, id int, queue *Queue) error {
	logrus.Debugf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			logrus.Debugf("Worker %d stopping: %v", id, ctx.Err())
			return nil
		default:
		}

		domain, ok := queue.Pop()
		if !ok {
			logrus.Debugf("Worker %d: queue drained, exiting", id)
			return nil
		}

		c.processDomain(ctx, domain)
	}
}

// processDomain harvests one domain and persists the outcome. A panic in a
// worker marks the domain failed and never propagates to the run.
func (c *Coordinator) processDomain(ctx context.Context, domain string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Worker panic while harvesting %s: %v", domain, r)
			c.tracker.DomainFailed()
		}
	}()

	logrus.Infof("Harvesting %s...", domain)
	res := c.harvester.Harvest(ctx, domain)

	if res.Reason == ReasonInterrupted {
		logrus.Infof("Interrupted %s mid-harvest; it stays unchecked for the next run", domain)
		return
	}

	// CSV rows first, checkpoint second: a domain only enters the checkpoint
	// after its output has durably landed
	if err := c.writer.Write(res.Domain, res.Summary, res.Monthly); err != nil {
		logrus.Errorf("Failed to write report rows for %s: %v", domain, err)
		c.tracker.DomainFailed()
		return
	}

	state := res.Reason.State()
	if err := c.store.RecordHarvest(res.Domain, state, string(res.Reason), res.Summary, res.Monthly, res.Pages); err != nil {
		logrus.Errorf("Failed to checkpoint %s (will be re-harvested next run): %v", domain, err)
	}

	if state == storage.StateCompleted {
		c.tracker.DomainCompleted(res.Pages, res.Summary.Total)
	} else {
		c.tracker.DomainPartial(res.Pages, res.Summary.Total)
	}

	logrus.Infof("Finished %s: reason=%s captures=%d pages=%d elapsed=%s",
		res.Domain, res.Reason, res.Summary.Total, res.Pages, res.Elapsed.Round(time.Millisecond))

	c.mu.Lock()
	c.finished++
	if c.finished%heartbeatEvery == 0 {
		logrus.Infof("Heartbeat: %d/%d domains finished this run", c.finished, c.todoTotal)
	}
	c.mu.Unlock()
}
