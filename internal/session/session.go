// Package session holds the per-view orchestration context: the current
// job and batch references, the single active poller, and the last-known
// balance snapshot. One Session is constructed when a view activates and
// torn down when it deactivates; there are no hidden global singletons.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/batch"
	"github.com/casedesk/intel-cli/internal/model"
	"github.com/casedesk/intel-cli/internal/track"
)

// Session is the single owner of the "current job" and "current batch"
// references for one view. Both are replaced wholesale on each new
// submission; a response for a superseded job is discarded by comparing
// against the currently tracked identifier.
type Session struct {
	id       string
	client   track.JobFetcher
	pollOpts track.Options

	mu         sync.Mutex
	closed     bool
	currentJob *model.Job
	poller     *track.Poller
	batchRun   *batch.Execution
	balance    int
	hasBalance bool
}

// New creates a session for one view activation.
func New(client track.JobFetcher, pollOpts track.Options) *Session {
	return &Session{
		id:       uuid.New().String(),
		client:   client,
		pollOpts: pollOpts,
	}
}

// ID returns the session identifier, used in logs to tie updates to views.
func (s *Session) ID() string { return s.id }

// TrackJob adopts job as the current job and starts a polling loop for it,
// implicitly cancelling any prior loop. Updates for a job that has since
// been superseded never reach onUpdate.
func (s *Session) TrackJob(ctx context.Context, job *model.Job, onUpdate func(*model.Job)) error {
	if job == nil || job.ID == "" {
		return eris.New("session: cannot track empty job")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return eris.New("session: closed")
	}
	if s.poller != nil {
		s.poller.Stop()
	}
	s.currentJob = job
	poller := track.NewPoller(s.client, s.pollOpts)
	s.poller = poller
	s.mu.Unlock()

	zap.L().Debug("session: tracking job",
		zap.String("session_id", s.id),
		zap.String("job_id", job.ID),
	)

	return poller.Start(ctx, job.ID, func(snapshot *model.Job) {
		s.mu.Lock()
		stale := s.closed || s.currentJob == nil || s.currentJob.ID != snapshot.ID
		if !stale {
			s.currentJob = snapshot
		}
		s.mu.Unlock()

		if stale {
			zap.L().Debug("session: discarding stale job update",
				zap.String("session_id", s.id),
				zap.String("job_id", snapshot.ID),
			)
			return
		}
		if onUpdate != nil {
			onUpdate(snapshot)
		}
	})
}

// CurrentJob returns the latest snapshot of the tracked job, or nil.
func (s *Session) CurrentJob() *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentJob
}

// Poller returns the active polling loop, or nil.
func (s *Session) Poller() *track.Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poller
}

// AdoptBatch replaces the current batch execution wholesale.
func (s *Session) AdoptBatch(e *batch.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchRun = e
}

// Batch returns the current batch execution, or nil.
func (s *Session) Batch() *batch.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchRun
}

// SetBalance records a freshly fetched balance snapshot. The session never
// computes a balance; callers pass only backend-fetched values.
func (s *Session) SetBalance(credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = credits
	s.hasBalance = true
}

// Balance returns the last-known balance snapshot, if any was fetched.
func (s *Session) Balance() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, s.hasBalance
}

// Close tears the view context down: the poller is stopped and the
// references dropped. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	poller := s.poller
	s.poller = nil
	s.currentJob = nil
	s.batchRun = nil
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	zap.L().Debug("session: closed", zap.String("session_id", s.id))
}
