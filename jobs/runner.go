package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/appforge/app-builder-api/metrics"

	"github.com/Noah-Huppert/golog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// JobTypeT is used to specify what type of job to start
type JobTypeT string

// JobTypePipeline identifies a job of type PipelineJob
var JobTypePipeline JobTypeT = "pipeline"

// defaultQueueSize is the number of submitted jobs which can wait to be picked up
// by Run
const defaultQueueSize = 256

// ErrQueueFull is returned by Submit when a job cannot be accepted right now
var ErrQueueFull = fmt.Errorf("job queue is full")

// ErrStopped is returned by Submit once the JobRunner's context is canceled
var ErrStopped = fmt.Errorf("job runner is stopped")

// JobStartRequest provides informtion required to start a job
type JobStartRequest struct {
	// ID of the run, set by Submit if empty
	ID string

	// Type of job to start
	Type JobTypeT

	// Data required to start job
	Data []byte
}

// JobRunner starts jobs in the background. At most MaxConcurrent jobs execute at
// once, others wait in a bounded queue.
type JobRunner struct {
	// queue is a channel to which requests to start jobs are sent
	queue chan JobStartRequest

	// jobInstances holds jobs which can be run
	jobInstances map[JobTypeT]Job

	// slots limits the number of jobs executing at once
	slots chan struct{}

	// running tracks jobs which were accepted and have not finished
	running *sync.WaitGroup

	// submitMu makes checking Ctx and queueing a request one step, so no request
	// is queued after Run drains the queue
	submitMu *sync.Mutex

	// Ctx stops the runner from accepting new jobs when canceled. Jobs which were
	// accepted still run.
	Ctx context.Context

	// Logger
	Logger golog.Logger

	// Metrics records job metrics
	Metrics metrics.Metrics

	// MaxConcurrent is the maximum number of jobs executing at once
	MaxConcurrent int
}

// Init initializes a JobRunner. The Register(), Submit() and Run() methods will not
// work properly unless this method is called.
func (r *JobRunner) Init() {
	r.queue = make(chan JobStartRequest, defaultQueueSize)
	r.jobInstances = map[JobTypeT]Job{}
	r.running = &sync.WaitGroup{}
	r.submitMu = &sync.Mutex{}

	maxConcurrent := r.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	r.slots = make(chan struct{}, maxConcurrent)
}

// Register makes a job available to run, must be called before Run
func (r JobRunner) Register(jobType JobTypeT, job Job) {
	r.jobInstances[jobType] = job
}

// Submit new job. Never blocks, returns the run ID. Returns ErrQueueFull if the
// queue has no room and ErrStopped once Ctx is canceled.
func (r JobRunner) Submit(req JobStartRequest) (string, error) {
	if _, ok := r.jobInstances[req.Type]; !ok {
		return "", fmt.Errorf("cannot handle job type: %s", req.Type)
	}

	if len(req.ID) == 0 {
		req.ID = uuid.New().String()
	}

	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	if r.Ctx.Err() != nil {
		return "", ErrStopped
	}

	r.running.Add(1)

	select {
	case r.queue <- req:
		r.Metrics.JobsSubmittedTotal.With(prometheus.Labels{
			"job_type": string(req.Type),
		}).Inc()
		return req.ID, nil
	default:
		r.running.Done()
		return "", ErrQueueFull
	}
}

// Run takes requests off the queue whenever fewer than MaxConcurrent jobs are
// executing and starts each in a goroutine. Once JobRunner.Ctx is canceled the
// jobs still queued are started and Run returns. Use Wait to wait for jobs to
// finish.
// Should be run in a goroutine b/c this method blocks.
func (r JobRunner) Run() {
	r.Logger.Info("running")

	for {
		// {{{1 Wait for a free slot
		select {
		case r.slots <- struct{}{}:
		case <-r.Ctx.Done():
			r.drain()
			return
		}

		// {{{1 Start next job
		select {
		case req := <-r.queue:
			go r.run(req)
		case <-r.Ctx.Done():
			<-r.slots
			r.drain()
			return
		}
	}
}

// drain starts every job left in the queue. Submit rejects requests once Ctx is
// canceled, so holding submitMu guarantees the queue only shrinks.
func (r JobRunner) drain() {
	r.submitMu.Lock()
	r.submitMu.Unlock()

	if len(r.queue) > 0 {
		r.Logger.Infof("stopping, starting %d queued jobs first", len(r.queue))
	}

	for {
		select {
		case req := <-r.queue:
			r.slots <- struct{}{}
			go r.run(req)
		default:
			return
		}
	}
}

// Wait blocks until all accepted jobs finish or timeout passes. Returns false if
// the timeout passed first. Only call once Ctx is canceled, so no new jobs are
// accepted while waiting.
func (r JobRunner) Wait(timeout time.Duration) bool {
	// Let a Submit which saw Ctx before it was canceled finish its Add
	r.submitMu.Lock()
	r.submitMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// run executes one job in a slot taken by Run and frees the slot when done.
// Panics are recovered and logged so a faulty job cannot crash the process.
func (r JobRunner) run(req JobStartRequest) {
	defer r.running.Done()
	defer func() { <-r.slots }()

	durationTimer := r.Metrics.StartTimer()
	successful := "0"

	defer func() {
		if recovery := recover(); recovery != nil {
			r.Metrics.JobPanicsTotal.With(prometheus.Labels{
				"job_type": string(req.Type),
			}).Inc()

			r.Logger.Error(string(debug.Stack()))
			r.Logger.Errorf("%s job %s panicked: %#v", req.Type, req.ID, recovery)
		}

		durationTimer.Finish(r.Metrics.JobsRunDurationsMilliseconds.With(prometheus.Labels{
			"job_type":   string(req.Type),
			"successful": successful,
		}))
	}()

	// Started jobs outlive Ctx so shutdown does not abandon them half way
	jobCtx := context.WithoutCancel(r.Ctx)

	r.Logger.Debugf("starting %s job %s", req.Type, req.ID)

	if err := r.jobInstances[req.Type].Do(jobCtx, req.ID, req.Data); err != nil {
		r.Logger.Errorf("failed to run %s job %s: %s", req.Type, req.ID, err.Error())
		return
	}

	successful = "1"
	r.Logger.Debugf("finished %s job %s", req.Type, req.ID)
}
