package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/casedesk/intel-cli/internal/model"
)

// CreateJobRequest is the payload for POST /jobs.
type CreateJobRequest struct {
	Kind      model.JobKind `json:"kind"`
	CaseID    string        `json:"case_id"`
	Term      string        `json:"term"`
	TermType  string        `json:"term_type,omitempty"` // phone | email | username
	Providers []string      `json:"providers,omitempty"`
	Consented bool          `json:"consented,omitempty"`
}

// CreateJob submits one unit of work and returns the accepted job in its
// initial (pending or in-progress) state. Credits are charged server-side.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*model.Job, error) {
	var job model.Job
	if err := c.callJSON(ctx, http.MethodPost, "/jobs", nil, req, &job, callOpts{}); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, eris.Wrap(err, "backend: create job snapshot")
	}
	return &job, nil
}

// GetJob fetches the authoritative snapshot of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, eris.New("backend: job id is required")
	}
	var job model.Job
	if err := c.callJSON(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &job, callOpts{}); err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, eris.Wrap(err, "backend: job snapshot")
	}
	return &job, nil
}

// WaitOutcome is the result of a server-side blocking wait.
type WaitOutcome struct {
	Done     bool `json:"success"`
	TimedOut bool `json:"timed_out"`
}

// WaitJob blocks server-side until the job completes or the supplied
// timeout elapses. A timeout is not a failure; the caller may wait again.
func (c *Client) WaitJob(ctx context.Context, id string, timeout time.Duration) (WaitOutcome, error) {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		return WaitOutcome{}, eris.New("backend: wait timeout must be positive")
	}

	// Bound the request slightly beyond the server-side hold.
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	q := url.Values{"timeout": {strconv.Itoa(secs)}}
	body := map[string]string{"job_id": id}

	var out WaitOutcome
	err := c.callJSON(ctx, http.MethodPost, "/jobs/wait", q, body, &out, callOpts{longPoll: true, noRetry: true})
	if err != nil {
		return WaitOutcome{}, err
	}
	if !out.Done {
		out.TimedOut = true
	}
	return out, nil
}

// BulkRequest is the payload for POST /jobs/bulk: one aggregate call for
// the whole input set.
type BulkRequest struct {
	Kind   model.JobKind `json:"kind"`
	CaseID string        `json:"case_id"`
	Inputs []string      `json:"inputs"`
}

// BulkItem is one per-input outcome from a bulk submission.
type BulkItem struct {
	Input string     `json:"input"`
	Job   *model.Job `json:"job,omitempty"`
	Error string     `json:"error,omitempty"`
}

// BulkResult carries the backend's terminal aggregate counts and per-input
// outcomes. Only terminal counts are guaranteed; there is no streaming
// progress.
type BulkResult struct {
	Total int        `json:"total"`
	Saved int        `json:"saved"`
	Items []BulkItem `json:"results"`
}

// SubmitBulk dispatches the whole input set as a single backend call.
func (c *Client) SubmitBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if len(req.Inputs) == 0 {
		return nil, eris.New("backend: bulk submission with no inputs")
	}
	var out BulkResult
	if err := c.callJSON(ctx, http.MethodPost, "/jobs/bulk", nil, req, &out, callOpts{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance fetches the current credit balance. The engine never decrements
// locally; this is the only source of the value.
func (c *Client) Balance(ctx context.Context) (int, error) {
	var out struct {
		Credits int `json:"credits"`
	}
	if err := c.callJSON(ctx, http.MethodGet, "/balance", nil, nil, &out, callOpts{}); err != nil {
		return 0, err
	}
	return out.Credits, nil
}

// Disclaimer fetches the consent text shown before sensitive providers run.
func (c *Client) Disclaimer(ctx context.Context) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.callJSON(ctx, http.MethodGet, "/disclaimer", nil, nil, &out, callOpts{}); err != nil {
		return "", err
	}
	if out.Text == "" {
		return "", eris.New("backend: empty disclaimer text")
	}
	return out.Text, nil
}

// ClearCache clears cached prior results, optionally scoped by filter.
// Callers should refresh the balance afterwards.
func (c *Client) ClearCache(ctx context.Context, filter string) error {
	var q url.Values
	if filter != "" {
		q = url.Values{"filter": {filter}}
	}
	return c.callJSON(ctx, http.MethodDelete, "/cache", q, nil, nil, callOpts{})
}

// SessionStatus describes the messaging-app session used by profile scrapes.
type SessionStatus struct {
	LoggedIn bool   `json:"logged_in"`
	Message  string `json:"message"`
}

// LoginStatus reports whether the backend's messaging session is active,
// prompting the device-pairing flow when it is not.
func (c *Client) LoginStatus(ctx context.Context) (SessionStatus, error) {
	var out SessionStatus
	err := c.callJSON(ctx, http.MethodGet, "/session", nil, nil, &out, callOpts{})
	return out, err
}

// CloseSession tears down the backend's messaging session.
func (c *Client) CloseSession(ctx context.Context) error {
	return c.callJSON(ctx, http.MethodPost, "/session/close", nil, nil, nil, callOpts{})
}

// ExportArtifact streams a generated artifact for a completed job. The
// response is never retried automatically; a non-success status surfaces
// as a backend error. The caller owns closing the returned body.
func (c *Client) ExportArtifact(ctx context.Context, jobID, format string) (io.ReadCloser, string, error) {
	path := fmt.Sprintf("/jobs/%s/export/%s", url.PathEscape(jobID), url.PathEscape(format))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.do(ctx, req, nil, callOpts{noRetry: true})
	if err != nil {
		return nil, "", err
	}
	if err := checkStatus(resp); err != nil {
		_ = resp.Body.Close()
		return nil, "", err
	}

	filename := dispositionFilename(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = fmt.Sprintf("job_%s.%s", jobID, format)
	}
	return resp.Body, filename, nil
}

// dispositionFilename parses the filename from a Content-Disposition
// header, returning "" when absent or malformed.
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
