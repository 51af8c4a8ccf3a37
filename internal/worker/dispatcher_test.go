package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"studyai/internal/config"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestDispatcherRunsJobsInSessionOrder(t *testing.T) {
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16}, nil)
	defer d.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		err := d.Submit(Job{SessionID: "s1", Name: "step", Run: func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestNextJobRoundRobin(t *testing.T) {
	d := newDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, nil)
	d.enqueueJob(Job{SessionID: "a", Name: "a1"})
	d.enqueueJob(Job{SessionID: "a", Name: "a2"})
	d.enqueueJob(Job{SessionID: "b", Name: "b1"})
	d.enqueueJob(Job{SessionID: "a", Name: "a3"})

	var got []string
	for {
		job, ok := d.nextJob()
		if !ok {
			break
		}
		got = append(got, job.Name)
	}
	want := []string{"a1", "b1", "a2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("unexpected jobs %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
}

func TestCancelSessionDropsQueuedJobs(t *testing.T) {
	d := newDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, nil)
	dropped := 0
	for i := 0; i < 3; i++ {
		d.enqueueJob(Job{SessionID: "gone", Drop: func() { dropped++ }})
	}
	d.enqueueJob(Job{SessionID: "kept", Name: "kept"})

	if n := d.CancelSession("gone"); n != 3 || dropped != 3 {
		t.Fatalf("expected 3 dropped jobs, got n=%d dropped=%d", n, dropped)
	}
	job, ok := d.nextJob()
	if !ok || job.Name != "kept" {
		t.Fatalf("other sessions must keep their jobs: %#v", job)
	}
	if _, ok := d.nextJob(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	defer func() {
		close(release)
		d.Close()
	}()

	if err := d.Submit(Job{SessionID: "s", Run: func() { close(started); <-release }}); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-started
	// the dispatcher takes this one and waits for a free worker
	if err := d.Submit(Job{SessionID: "s", Run: func() {}}); err != nil {
		t.Fatalf("submit second: %v", err)
	}
	waitFor(t, func() bool { return len(d.jobQueue) == 0 })
	if err := d.Submit(Job{SessionID: "s", Run: func() {}}); err != nil {
		t.Fatalf("submit third: %v", err)
	}
	if err := d.Submit(Job{SessionID: "s", Run: func() {}}); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}
}

func TestDispatcherCloseDropsPending(t *testing.T) {
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 8}, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	if err := d.Submit(Job{SessionID: "s", Run: func() { close(started); <-release }}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	var mu sync.Mutex
	dropped := 0
	for i := 0; i < 3; i++ {
		err := d.Submit(Job{SessionID: "s", Run: func() {}, Drop: func() {
			mu.Lock()
			dropped++
			mu.Unlock()
		}})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	d.Close()
	close(release)

	mu.Lock()
	defer mu.Unlock()
	if dropped != 3 {
		t.Fatalf("expected 3 dropped jobs, got %d", dropped)
	}
	if err := d.Submit(Job{SessionID: "s"}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, nil)
	defer d.Close()

	done := make(chan struct{})
	if err := d.Submit(Job{SessionID: "s", Run: func() { panic("boom") }}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(Job{SessionID: "s", Run: func() { close(done) }}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not recover from panic")
	}
}

func TestPoolShutdownExpiredKeepsMinimum(t *testing.T) {
	p := newJobChannelPool(1, 3, time.Millisecond, nil)
	for i := 0; i < 3; i++ {
		p.spawnWorker()
	}
	if running, idle := p.stats(); running != 3 || idle != 3 {
		t.Fatalf("unexpected pool state running=%d idle=%d", running, idle)
	}
	if n := p.shutdownExpired(time.Now().Add(time.Second)); n != 2 {
		t.Fatalf("expected 2 retired workers, got %d", n)
	}
	waitFor(t, func() bool {
		running, _ := p.stats()
		return running == 1
	})
	p.close()
}

func TestInlineExecutor(t *testing.T) {
	ran := false
	if err := (Inline{}).Submit(Job{Run: func() { ran = true }}); err != nil || !ran {
		t.Fatalf("inline executor did not run job: ran=%v err=%v", ran, err)
	}
}
