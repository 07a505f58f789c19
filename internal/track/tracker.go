// Package track discovers job lifecycle transitions by re-querying the
// backend's authoritative record. It never asserts a transition locally:
// a poller re-fetches snapshots on a fixed cadence until a terminal state
// appears, and a blocking wait defers to the backend's own hold-open
// endpoint for interactive flows.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/model"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 5 * time.Second

// JobFetcher is the subset of the API client the tracker depends on.
type JobFetcher interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	WaitJob(ctx context.Context, id string, timeout time.Duration) (backend.WaitOutcome, error)
}

// Options tunes a poller.
type Options struct {
	// Interval between poll resolutions. Defaults to DefaultInterval.
	Interval time.Duration
	// MaxConsecutiveFailures stops the loop after that many transport
	// failures in a row. 0 means poll indefinitely until cancelled, which
	// is the observed production behavior.
	MaxConsecutiveFailures int
}

// Poller drives one polling loop for one job. Polls are strictly
// sequential: the next fetch is not scheduled until the prior one
// resolves. Stop is idempotent and releases the timer.
type Poller struct {
	client JobFetcher
	opts   Options

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	err     error
}

// NewPoller creates a poller for the given client.
func NewPoller(client JobFetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Poller{
		client: client,
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins polling jobID, invoking onUpdate with every fetched
// snapshot. The loop ends when a terminal status is observed, the context
// is cancelled, Stop is called, or the consecutive-failure cap (if any)
// is hit. Start may be called once per poller.
func (p *Poller) Start(ctx context.Context, jobID string, onUpdate func(*model.Job)) error {
	if jobID == "" {
		return eris.New("track: job id is required")
	}
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return eris.New("track: poller already started")
	}
	p.started = true
	p.mu.Unlock()

	go p.loop(ctx, jobID, onUpdate)
	return nil
}

func (p *Poller) loop(ctx context.Context, jobID string, onUpdate func(*model.Job)) {
	defer close(p.doneCh)

	failures := 0
	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(nil)
			return
		case <-p.stopCh:
			p.finish(nil)
			return
		case <-timer.C:
		}

		job, err := p.client.GetJob(ctx, jobID)
		if err != nil {
			// A single failed poll never stops the loop; the next tick
			// retries. Only the optional cap turns persistent transport
			// failure into a terminal condition.
			failures++
			zap.L().Warn("track: poll failed",
				zap.String("job_id", jobID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
			if p.opts.MaxConsecutiveFailures > 0 && failures >= p.opts.MaxConsecutiveFailures {
				p.finish(eris.Wrapf(err, "track: %d consecutive poll failures", failures))
				return
			}
			timer.Reset(p.opts.Interval)
			continue
		}
		failures = 0

		if !p.emit(job, onUpdate) {
			// Stopped while the fetch was in flight; discard the snapshot.
			p.finish(nil)
			return
		}

		if job.Terminal() {
			zap.L().Info("track: job reached terminal state",
				zap.String("job_id", jobID),
				zap.String("status", string(job.Status)),
			)
			p.finish(nil)
			return
		}

		// Re-arm only after the fetch resolved, so polls never overlap.
		timer.Reset(p.opts.Interval)
	}
}

// emit invokes the callback unless the poller was stopped. The stopped
// check and the callback are deliberately not under the same lock so a
// callback may itself call Stop.
func (p *Poller) emit(job *model.Job, onUpdate func(*model.Job)) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	if onUpdate != nil {
		onUpdate(job)
	}
	return true
}

func (p *Poller) finish(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
}

// Stop cancels the loop. Calling Stop more than once, or before Start, is
// a no-op. No further callbacks fire once Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()
}

// Done is closed when the loop has fully exited.
func (p *Poller) Done() <-chan struct{} {
	return p.doneCh
}

// Err reports why the loop ended: nil for cancellation or a terminal
// status, non-nil only when the consecutive-failure cap fired.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// WaitResult is the outcome of a blocking wait.
type WaitResult struct {
	// Job is the terminal snapshot, set only when the wait completed.
	Job *model.Job
	// TimedOut distinguishes a bounded-wait expiry from failure; the
	// caller may simply wait again.
	TimedOut bool
}

// Wait blocks via the backend's hold-open endpoint up to maxWait, then
// fetches the authoritative snapshot on completion. Used by interactive
// single-item flows such as messaging-session login confirmation.
func Wait(ctx context.Context, client JobFetcher, jobID string, maxWait time.Duration) (WaitResult, error) {
	outcome, err := client.WaitJob(ctx, jobID, maxWait)
	if err != nil {
		return WaitResult{}, err
	}
	if outcome.TimedOut {
		return WaitResult{TimedOut: true}, nil
	}
	job, err := client.GetJob(ctx, jobID)
	if err != nil {
		return WaitResult{}, err
	}
	return WaitResult{Job: job}, nil
}
