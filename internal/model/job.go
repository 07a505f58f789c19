// Package model defines the core domain types shared across the orchestration engine.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// JobKind identifies which investigative flow a job belongs to.
type JobKind string

const (
	// KindMultiProviderSearch is a credit-gated phone/email search fanned
	// out across selected providers.
	KindMultiProviderSearch JobKind = "multi_provider_search"
	// KindSingleProfileScrape is a single messaging-app profile scrape.
	KindSingleProfileScrape JobKind = "single_profile_scrape"
	// KindUsernameSweep checks a username across social platforms.
	KindUsernameSweep JobKind = "username_sweep"
)

// Valid reports whether the kind is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindMultiProviderSearch, KindSingleProfileScrape, KindUsernameSweep:
		return true
	}
	return false
}

// JobStatus is the backend-authoritative lifecycle state of a job.
// The client never transitions a status locally; every value comes from
// a backend snapshot.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProviderResult is one provider's contribution to a completed job.
type ProviderResult struct {
	ProviderKey string          `json:"provider_key"`
	Success     bool            `json:"success"`
	Confidence  float64         `json:"confidence,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Job is one submitted unit of investigative work. The backend assigns the
// ID and owns every subsequent field change; the client only re-fetches.
type Job struct {
	ID              string           `json:"id"`
	Kind            JobKind          `json:"kind"`
	Status          JobStatus        `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	CostCharged     int              `json:"cost_charged"`
	ProviderResults []ProviderResult `json:"provider_results,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// Completed reports whether the job finished successfully.
func (j *Job) Completed() bool {
	return j != nil && j.Status == StatusCompleted
}

// Terminal reports whether the job reached a terminal status.
func (j *Job) Terminal() bool {
	return j != nil && j.Status.Terminal()
}

// Validate checks the structural invariants of a backend job snapshot:
// provider results only on completed jobs, an error message exactly on
// failed jobs, and a known status. Snapshots violating these are rejected
// at the client boundary rather than propagated into the engine.
func (j *Job) Validate() error {
	if j.ID == "" {
		return eris.New("job: missing id")
	}
	switch j.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
	default:
		return eris.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	if j.Status != StatusCompleted && len(j.ProviderResults) > 0 {
		return eris.Errorf("job %s: provider results on non-completed job", j.ID)
	}
	if j.Status == StatusFailed && j.ErrorMessage == "" {
		return eris.Errorf("job %s: failed without error message", j.ID)
	}
	if j.Status != StatusFailed && j.ErrorMessage != "" {
		return eris.Errorf("job %s: error message on non-failed job", j.ID)
	}
	if j.CostCharged < 0 {
		return eris.Errorf("job %s: negative cost charged", j.ID)
	}
	return nil
}
