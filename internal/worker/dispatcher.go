package worker

import (
	"container/list"
	"errors"
	"sync"

	"studyai/internal/config"
	"studyai/internal/logger"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher queue full")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type sessionQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher keeps one FIFO per session and hands jobs to the pool in
// round-robin order across sessions.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job // entry point for submitted jobs
	log      *logger.Logger

	mu        sync.Mutex
	closed    bool
	queues    map[string]*sessionQueue
	ready     *list.List // session ids with queued jobs
	positions map[string]*list.Element

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(cfg config.WorkerConfig, log *logger.Logger) *Dispatcher {
	d := newDispatcher(cfg, log)
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.pool.purgeStaleWorkers()
	go d.run()
	return d
}

func newDispatcher(cfg config.WorkerConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout(), log),
		jobQueue:  make(chan Job, cfg.QueueSize),
		log:       log,
		queues:    make(map[string]*sessionQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the session at the front of the ready list
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				d.drain()
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			d.drain()
			return
		default:
		}
	}
}

// CancelSession drops the queued jobs of a session. Jobs already handed to a
// worker keep running.
func (d *Dispatcher) CancelSession(sessionID string) int {
	d.mu.Lock()
	q := d.queues[sessionID]
	delete(d.queues, sessionID)
	if elem, ok := d.positions[sessionID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
	}
	d.mu.Unlock()

	if q == nil {
		return 0
	}
	for _, job := range q.jobs {
		job.drop()
	}
	return len(q.jobs)
}

// Close stops dispatching, drops queued jobs and retires idle workers.
// Running jobs finish on their own.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.quit)
		d.pool.close()
		<-d.done
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.SessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[job.SessionID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.SessionID] = d.ready.PushBack(job.SessionID)
}

// nextJob pops the head job of the first ready session and moves that
// session to the back of the ready list.
func (d *Dispatcher) nextJob() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	sessionID := elem.Value.(string)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
		delete(d.queues, sessionID)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.nextJob()
	if !ok {
		return false
	}
	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.drop()
		return true
	}
	d.debugLog("dispatch job", "job", job.Name, "session_id", job.SessionID, "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// drain drops everything still waiting after Close.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobQueue:
			job.drop()
		default:
			d.mu.Lock()
			ids := make([]string, 0, len(d.queues))
			for id := range d.queues {
				ids = append(ids, id)
			}
			d.mu.Unlock()
			for _, id := range ids {
				d.CancelSession(id)
			}
			return
		}
	}
}

// Stats reports pool occupancy.
type Stats struct {
	Running int
	Idle    int
	Queued  int
}

func (d *Dispatcher) Stats() Stats {
	running, idle := d.pool.stats()
	d.mu.Lock()
	queued := len(d.jobQueue)
	for _, q := range d.queues {
		queued += len(q.jobs)
	}
	d.mu.Unlock()
	return Stats{Running: running, Idle: idle, Queued: queued}
}
