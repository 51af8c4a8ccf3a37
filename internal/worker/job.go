package worker

// Job is one unit of session work.
type Job struct {
	SessionID string
	Name      string
	Run       func()
	// Drop runs instead of Run when the job is discarded before dispatch.
	Drop func()

	stop bool
}

func (job Job) drop() {
	if job.Drop != nil {
		job.Drop()
	}
}

// Executor accepts jobs for asynchronous execution.
type Executor interface {
	Submit(job Job) error
}

// Inline runs every job on the caller's goroutine.
type Inline struct{}

func (Inline) Submit(job Job) error {
	if job.Run != nil {
		job.Run()
	}
	return nil
}
