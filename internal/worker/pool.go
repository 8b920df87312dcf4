// Package worker bounds the number of concurrent acquisition jobs so a
// burst of analysis requests cannot fork an unbounded number of child
// processes.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/onesong-app/pulse/pkg/logger"
)

// ErrBusy means the queue is full; the caller should degrade rather than
// block the request.
var ErrBusy = errors.New("worker pool queue is full")

// Job is one unit of background work. Run receives the job's own context
// so an abandoned request cancels its work.
type Job struct {
	Name string
	Ctx  context.Context
	Run  func(ctx context.Context)
}

// Pool runs submitted jobs on a fixed set of goroutines.
type Pool struct {
	jobs chan Job
	wg   sync.WaitGroup
	log  *logger.Logger
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{jobs: make(chan Job, queueSize), log: logger.GetLogger()}
	p.start(workers)
	return p
}

func (p *Pool) start(workers int) {
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if job.Ctx != nil && job.Ctx.Err() != nil {
					p.log.Debugf("worker: skipping %s, context already done", job.Name)
					continue
				}
				ctx := job.Ctx
				if ctx == nil {
					ctx = context.Background()
				}
				job.Run(ctx)
			}
		}()
	}
}

// Stop drains the queue and waits for in-flight jobs to finish. Submit
// must not be called after Stop.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Submit queues a job without blocking. Returns ErrBusy when the queue is
// full.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	default:
		p.log.Warnf("worker: queue full, rejecting %s", job.Name)
		return ErrBusy
	}
}
