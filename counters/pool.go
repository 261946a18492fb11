package counters

import (
	"context"
	"sync"
	"time"

	"github.com/plumehq/plume/internal/pkg/log"
)

// applyTimeout bounds one delta application, seeding query included.
const applyTimeout = 10 * time.Second

// Pool applies counter deltas on a fixed set of workers fed by a bounded
// queue. Deltas are enqueued by privacy transitions before their commit and
// run detached from the request: a dropped client never cancels them.
// Failures are logged and swallowed; the cache self-corrects on the next
// forced seed.
type Pool struct {
	service *Service
	jobs    chan Delta
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines over a queue of the given depth.
func NewPool(service *Service, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Pool{
		service: service,
		jobs:    make(chan Delta, queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Enqueue schedules a delta. A full queue blocks the caller: backpressure
// is preferred over dropping deltas, which would never converge back to
// the true count.
func (p *Pool) Enqueue(delta Delta) {
	// The send stays under the mutex so Shutdown cannot close the channel
	// between the closed check and the send. Workers drain without taking
	// the lock, so a full queue still makes progress.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		log.Warn("counter pool closed, dropping delta %+v", delta)
		return
	}
	p.jobs <- delta
}

// Shutdown stops accepting deltas, drains the queue, and waits for the
// workers up to the context deadline. Callers must stop producing first:
// main only shuts the pool down after the HTTP listener has closed.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for delta := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		if err := p.service.Apply(ctx, delta); err != nil {
			log.Error("counter update %q%+d failed: %v", delta.Key, delta.Amount, err)
		}
		cancel()
	}
}
