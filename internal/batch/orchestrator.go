package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/model"
)

// Submitter is the subset of the API client the orchestrator depends on:
// one aggregate call for the whole input set.
type Submitter interface {
	SubmitBulk(ctx context.Context, req backend.BulkRequest) (*backend.BulkResult, error)
}

// Outcome is one per-input result. Exactly one of Job and Err is set.
type Outcome struct {
	Input string
	Job   *model.Job
	Err   error
}

// Summary is the terminal accounting for a batch run. The backend reports
// only aggregate counts for the bulk call; there is no per-item progress
// stream during it.
type Summary struct {
	Total         int // inputs presented
	Dispatched    int // inputs that passed local validation
	Saved         int // backend-confirmed saves
	LocalFailures int // rejected before any backend contact
	Discrepancy   string
}

// Line renders the aggregate progress line.
func (s Summary) Line() string {
	line := fmt.Sprintf("%d of %d processed (%d saved, %d rejected locally)",
		s.Dispatched, s.Total, s.Saved, s.LocalFailures)
	if s.Discrepancy != "" {
		line += "; " + s.Discrepancy
	}
	return line
}

// Request describes one batch run.
type Request struct {
	Inputs []string
	Kind   model.JobKind
	CaseID string
}

// Execution is one in-flight batch run. Outcomes arrive in input order on
// a finite channel; an execution is not restartable.
type Execution struct {
	outcomes chan Outcome

	mu      sync.Mutex
	summary Summary
	err     error
	done    chan struct{}
}

// Outcomes returns the per-input outcome stream, closed when the batch
// reaches terminal state. len(outcomes) always equals len(inputs).
func (e *Execution) Outcomes() <-chan Outcome {
	return e.outcomes
}

// Wait blocks until the batch is terminal and returns the summary. The
// error is non-nil only when the bulk call itself could not be issued;
// per-input failures live in the outcomes.
func (e *Execution) Wait() (Summary, error) {
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary, e.err
}

// Orchestrator runs batches.
type Orchestrator struct {
	client Submitter
}

// New creates a batch orchestrator.
func New(client Submitter) *Orchestrator {
	return &Orchestrator{client: client}
}

// Run validates every input independently, dispatches the valid ones as a
// single bulk call, and emits one outcome per input preserving input
// order. An invalid input is recorded as an immediate local failure and
// never contacts the backend; it does not abort the rest.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Execution {
	e := &Execution{
		outcomes: make(chan Outcome, len(req.Inputs)),
		done:     make(chan struct{}),
	}
	go o.run(ctx, req, e)
	return e
}

func (o *Orchestrator) run(ctx context.Context, req Request, e *Execution) {
	defer close(e.done)
	defer close(e.outcomes)

	summary := Summary{Total: len(req.Inputs)}

	// Phase 1: local validation, in order.
	type slot struct {
		input string
		err   error
	}
	slots := make([]slot, len(req.Inputs))
	var valid []string
	for i, input := range req.Inputs {
		slots[i].input = input
		if err := validateInput(input, req.Kind); err != nil {
			slots[i].err = err
			summary.LocalFailures++
			continue
		}
		valid = append(valid, input)
	}
	summary.Dispatched = len(valid)

	// Phase 2: one aggregate backend call for everything that validated.
	byInput := make(map[string]backend.BulkItem, len(valid))
	var bulkErr error
	if len(valid) > 0 {
		result, err := o.client.SubmitBulk(ctx, backend.BulkRequest{
			Kind:   req.Kind,
			CaseID: req.CaseID,
			Inputs: valid,
		})
		if err != nil {
			bulkErr = err
			zap.L().Error("batch: bulk submission failed",
				zap.Int("inputs", len(valid)),
				zap.Error(err),
			)
		} else {
			for _, item := range result.Items {
				byInput[item.Input] = item
			}
			summary.Saved = result.Saved
			if result.Saved != len(valid) {
				summary.Discrepancy = fmt.Sprintf(
					"backend saved %d of %d dispatched inputs", result.Saved, len(valid))
				zap.L().Warn("batch: saved/dispatched discrepancy",
					zap.Int("saved", result.Saved),
					zap.Int("dispatched", len(valid)),
				)
			}
		}
	}

	// Phase 3: emit outcomes in input order.
	for _, s := range slots {
		out := Outcome{Input: s.input}
		switch {
		case s.err != nil:
			out.Err = s.err
		case bulkErr != nil:
			out.Err = bulkErr
		default:
			item, ok := byInput[s.input]
			switch {
			case !ok:
				out.Err = eris.Errorf("batch: backend returned no outcome for %s", s.input)
			case item.Error != "":
				out.Err = &model.BackendError{Detail: item.Error}
			default:
				out.Job = item.Job
			}
		}
		e.outcomes <- out
	}

	zap.L().Info("batch: run complete", zap.String("summary", summary.Line()))

	e.mu.Lock()
	e.summary = summary
	e.err = bulkErr
	e.mu.Unlock()
}

// validateInput applies the per-kind local input policy.
func validateInput(input string, kind model.JobKind) error {
	switch kind {
	case model.KindSingleProfileScrape, model.KindMultiProviderSearch:
		if !gate.ValidPhone(input) {
			return &model.ValidationError{Field: "input", Reason: "not a valid phone number: " + input}
		}
	case model.KindUsernameSweep:
		if len(input) < 3 {
			return &model.ValidationError{Field: "input", Reason: "username too short: " + input}
		}
	default:
		return &model.ValidationError{Field: "kind", Reason: "unknown job kind"}
	}
	return nil
}
