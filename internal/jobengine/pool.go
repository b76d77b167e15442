package jobengine

import (
	"context"
	"sync"
	"time"

	"github.com/aphrodite-badges/aphrodite/internal/logging"
	"github.com/aphrodite-badges/aphrodite/internal/metrics"
)

// Pool wraps the Engine as a suture.Service: a dispatcher goroutine feeding
// a fixed-size worker set, grounded on the teacher's supervisor/services
// adapter shape (thin Serve/String wrappers around a domain object).
type Pool struct {
	engine *Engine
}

// NewPool returns a suture.Service for engine, sized by engine's Config.
func NewPool(engine *Engine) *Pool {
	return &Pool{engine: engine}
}

func (p *Pool) String() string { return "jobengine-pool" }

// Serve runs the dispatcher and worker goroutines until ctx is cancelled.
func (p *Pool) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(p.engine.cfg.Workers)
	for i := 0; i < p.engine.cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			p.engine.workerLoop(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.engine.dispatchLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// dispatchLoop round-robins across queued jobs at the item level, feeding
// the shared work-unit channel that every worker reads from.
func (e *Engine) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		unit, ok := e.popNext()
		if !ok {
			select {
			case <-e.notify:
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case e.units <- unit:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) popNext() (workUnit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.queues)
	for i := 0; i < n; i++ {
		idx := (e.cursor + i) % n
		q := e.queues[idx]
		if len(q.items) == 0 {
			continue
		}
		item := q.items[0]
		q.items = q.items[1:]
		e.cursor = idx + 1
		if len(q.items) == 0 {
			e.queues = append(e.queues[:idx], e.queues[idx+1:]...)
			e.cursor = 0
		} else {
			e.cursor %= len(e.queues)
		}
		return workUnit{jobID: q.jobID, itemID: item, kind: q.kind, mask: q.mask, opts: q.opts}, true
	}
	return workUnit{}, false
}

func (e *Engine) workerLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case unit, ok := <-e.units:
			if !ok {
				return
			}
			e.processUnit(ctx, unit)
		}
	}
}

// processUnit runs one work unit end to end and persists the outcome,
// then checks whether the owning job has now completed.
func (e *Engine) processUnit(ctx context.Context, unit workUnit) {
	_ = e.db.MarkJobStarted(ctx, unit.jobID)
	e.publishEvent(unit.jobID, ProgressEvent{JobID: unit.jobID, Event: "item_started", ItemID: unit.itemID})

	itemCtx, cancel := context.WithTimeout(ctx, e.engineItemTimeout())
	defer cancel()

	log := logging.WithComponent("jobengine")
	start := time.Now()

	metrics.QueueDepth.Add(-1)
	status, errKind, badgesApplied := e.runItem(itemCtx, unit)
	duration := time.Since(start)

	metrics.RecordItemResult(status, string(errKind), duration)
	e.recordResult(ctx, unit, status, errKind, badgesApplied, duration)
	log.Info().Str("job_id", unit.jobID).Str("item_id", unit.itemID).Str("status", status).Dur("duration", duration).Msg("item finished")

	e.maybeFinishJob(ctx, unit.jobID)
}

func (e *Engine) engineItemTimeout() time.Duration {
	return e.cfg.ItemTimeout
}
