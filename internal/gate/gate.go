// Package gate enforces the preconditions for job submission: input
// validation, affordability against a freshly fetched balance, and explicit
// consent for gated providers. Nothing reaches the backend until every
// check passes; a declined consent aborts with zero side effects.
package gate

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/catalog"
	"github.com/casedesk/intel-cli/internal/model"
)

// minTermLength is the minimum length for identity lookup terms.
const minTermLength = 3

// Backend is the subset of the API client the gate depends on.
type Backend interface {
	Balance(ctx context.Context) (int, error)
	Disclaimer(ctx context.Context) (string, error)
	CreateJob(ctx context.Context, req backend.CreateJobRequest) (*model.Job, error)
}

// ConsentFunc presents the disclaimer text to the user and reports whether
// they affirmatively accepted it. Called only when a selected provider is
// consent-gated.
type ConsentFunc func(disclaimer string) bool

// Request describes one submission.
type Request struct {
	Kind      model.JobKind
	CaseID    string
	Term      string
	TermType  string // phone | email | username
	Providers []string
	Consent   ConsentFunc
}

// Result is a successful submission: the accepted job plus the refreshed
// balance (credits are charged server-side, so the snapshot is re-fetched
// after the create call).
type Result struct {
	Job          *model.Job
	Cost         int
	BalanceAfter int
}

// Gate validates and submits jobs.
type Gate struct {
	client  Backend
	catalog *catalog.Catalog
}

// New creates a submission gate.
func New(client Backend, cat *catalog.Catalog) *Gate {
	return &Gate{client: client, catalog: cat}
}

var foldCaser = cases.Fold()

// NormalizeTerm lowercases and trims a search term for identity lookups.
func NormalizeTerm(term string) string {
	return foldCaser.String(strings.TrimSpace(term))
}

// Submit runs the full gate and, when every precondition holds, issues the
// backend create call. It returns without waiting for a terminal state.
func (g *Gate) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := g.validate(&req); err != nil {
		return nil, err
	}

	cost := 0
	var gated []string
	if req.Kind == model.KindMultiProviderSearch {
		var err error
		cost, err = g.catalog.TotalCost(req.Providers)
		if err != nil {
			return nil, err
		}
		gated = g.catalog.ConsentGated(req.Providers)
	}

	// Preflight: balance always, disclaimer only when a gated provider is
	// selected. Fetched concurrently; both are backend round trips.
	var balance int
	var disclaimer string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b, err := g.client.Balance(egCtx)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if len(gated) > 0 {
		eg.Go(func() error {
			d, err := g.client.Disclaimer(egCtx)
			if err != nil {
				return err
			}
			disclaimer = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if cost > balance {
		return nil, &model.InsufficientCreditsError{Required: cost, Available: balance}
	}

	consented := false
	if len(gated) > 0 {
		if req.Consent == nil || !req.Consent(disclaimer) {
			zap.L().Info("gate: consent declined, submission aborted",
				zap.Strings("providers", gated),
			)
			return nil, &model.ConsentDeclinedError{Providers: gated}
		}
		consented = true
	}

	job, err := g.client.CreateJob(ctx, backend.CreateJobRequest{
		Kind:      req.Kind,
		CaseID:    req.CaseID,
		Term:      NormalizeTerm(req.Term),
		TermType:  req.TermType,
		Providers: req.Providers,
		Consented: consented,
	})
	if err != nil {
		return nil, err
	}

	// The backend charged credits during creation; re-fetch rather than
	// decrement locally. A transport hiccup here leaves the stale snapshot
	// in place, which the next submission's preflight corrects.
	after, err := g.client.Balance(ctx)
	if err != nil {
		zap.L().Warn("gate: balance refresh after submission failed", zap.Error(err))
		after = balance
	}

	zap.L().Info("gate: job submitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("cost", cost),
		zap.Int("balance_after", after),
	)

	return &Result{Job: job, Cost: cost, BalanceAfter: after}, nil
}

// validate applies the local input policy; failures never reach the backend.
func (g *Gate) validate(req *Request) error {
	if !req.Kind.Valid() {
		return &model.ValidationError{Field: "kind", Reason: "unknown job kind"}
	}
	if req.CaseID == "" {
		return &model.ValidationError{Field: "case", Reason: "a destination case is required"}
	}

	term := strings.TrimSpace(req.Term)
	if len(term) < minTermLength {
		return &model.ValidationError{Field: "term", Reason: "search term must be at least 3 characters"}
	}

	switch req.TermType {
	case "email":
		if _, err := mail.ParseAddress(term); err != nil {
			return &model.ValidationError{Field: "term", Reason: "not a valid email address"}
		}
	case "phone":
		if !ValidPhone(term) {
			return &model.ValidationError{Field: "term", Reason: "not a valid phone number"}
		}
	case "", "username":
		// Length check above is the whole policy.
	default:
		return &model.ValidationError{Field: "term_type", Reason: "unknown term type " + req.TermType}
	}

	if req.Kind == model.KindMultiProviderSearch && len(req.Providers) == 0 {
		return &model.ValidationError{Field: "providers", Reason: "no providers selected"}
	}
	return nil
}

// ValidPhone applies the phone input policy shared with the batch
// orchestrator: an optional leading +, then 7 to 15 digits, tolerating
// spaces, dashes, and parentheses.
func ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
