package websocket

import (
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is a unit of work transferring ownership of one accepted socket
// from the accept loop to a worker (spec.md Section 3). A Job is
// consumed exactly once.
type Job func(net.Conn)

// job pairs a Job with the conn it owns, so the queue element carries
// everything a worker needs without a second channel.
type job struct {
	conn net.Conn
	fn   Job
}

// Pool is a fixed-size worker pool fed by a single shared job queue,
// grounded on the classic Rust thread-pool pattern: N goroutines pull
// from one channel, and shutdown closes the sending side before
// waiting for every goroutine to drain and exit (spec.md Section 4.7).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	log  zerolog.Logger

	closeOnce sync.Once
}

// NewPool starts a Pool of size workers, each running its loop
// immediately. size must be greater than zero. queueDepth sets the job
// channel's buffer; zero means an unbuffered, hand-off queue.
func NewPool(size, queueDepth int) *Pool {
	if size <= 0 {
		panic("websocket: pool size must be > 0")
	}

	p := &Pool{
		jobs: make(chan job, queueDepth),
		log:  log.Logger,
	}

	for id := 0; id < size; id++ {
		p.wg.Add(1)
		go p.worker(id)
	}

	return p
}

// worker dequeues jobs until the channel is closed, then returns. The
// receive end is implicitly shared via Go's channel semantics, so no
// explicit mutex is needed the way the original implementation wraps
// its receiver in a mutex-guarded Arc (spec.md Section 4.7's SPMC
// note).
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	workerLog := p.log.With().Int("worker_id", id).Logger()
	for j := range p.jobs {
		workerLog.Debug().Msg("got a job; executing")
		j.fn(j.conn)
	}
	workerLog.Debug().Msg("queue closed; shutting down")
}

// Submit enqueues a job carrying ownership of conn. It blocks if every
// worker is busy and the queue is full. Submit must not be called
// after Shutdown.
func (p *Pool) Submit(conn net.Conn, fn Job) {
	p.jobs <- job{conn: conn, fn: fn}
}

// Shutdown closes the job queue and blocks until every in-flight job
// has run to completion and every worker goroutine has exited
// (spec.md Section 4.7's graceful-shutdown contract). Callers must
// stop calling Submit before calling Shutdown.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
