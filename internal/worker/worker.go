package worker

import (
	"studyai/internal/logger"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
	log        *logger.Logger
}

func NewWorker(id int, pool *jobChannelPool, log *logger.Logger) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
		log:        log,
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker job panicked", "worker", w.id, "job", job.Name, "session_id", job.SessionID, "panic", r)
		}
	}()
	if job.Run != nil {
		job.Run()
	}
}
