package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/catalog"
	"github.com/casedesk/intel-cli/internal/export"
	"github.com/casedesk/intel-cli/internal/gate"
	"github.com/casedesk/intel-cli/internal/model"
)

// mockEngine backs both the bridge's Engine interface and the gate's
// Backend interface.
type mockEngine struct {
	balance    int
	disclaimer string
	jobs       map[string]*model.Job
	createdJob *model.Job
}

func (m *mockEngine) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, &model.BackendError{Status: http.StatusNotFound, Detail: "job not found"}
	}
	return j, nil
}

func (m *mockEngine) Balance(ctx context.Context) (int, error) { return m.balance, nil }

func (m *mockEngine) Disclaimer(ctx context.Context) (string, error) { return m.disclaimer, nil }

func (m *mockEngine) CreateJob(ctx context.Context, req backend.CreateJobRequest) (*model.Job, error) {
	return m.createdJob, nil
}

type artifactStub struct{}

func (artifactStub) ExportArtifact(ctx context.Context, jobID, format string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("%PDF")), "report.pdf", nil
}

func testServer(t *testing.T, engine *mockEngine) *httptest.Server {
	t.Helper()
	cat, err := catalog.New([]catalog.Provider{
		{Key: "caller_id", Name: "Caller ID", Cost: 10},
		{Key: "breach_scan", Name: "Breach Scan", Cost: 25, Sensitive: true, ConsentRequired: true},
	})
	require.NoError(t, err)

	s := New(engine, gate.New(engine, cat), export.New(artifactStub{}, t.TempDir()), cat, []string{"http://localhost:5173"})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestBridge_Health(t *testing.T) {
	srv := testServer(t, &mockEngine{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridge_CatalogAndBalance(t *testing.T) {
	srv := testServer(t, &mockEngine{balance: 80})

	resp, err := http.Get(srv.URL + "/api/catalog")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var cat struct {
		Providers []catalog.Provider `json:"providers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cat))
	assert.Len(t, cat.Providers, 2)

	resp2, err := http.Get(srv.URL + "/api/balance")
	require.NoError(t, err)
	defer resp2.Body.Close() //nolint:errcheck
	var bal map[string]int
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&bal))
	assert.Equal(t, 80, bal["credits"])
}

func TestBridge_SearchSuccess(t *testing.T) {
	engine := &mockEngine{
		balance:    100,
		createdJob: &model.Job{ID: "j1", Kind: model.KindMultiProviderSearch, Status: model.StatusPending},
	}
	srv := testServer(t, engine)

	resp := postJSON(t, srv.URL+"/api/search",
		`{"kind":"multi_provider_search","case_id":"case-7","term":"+15550100001","term_type":"phone","providers":["caller_id"]}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Job          *model.Job `json:"job"`
		BalanceAfter int        `json:"balance_after"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "j1", out.Job.ID)
	assert.Equal(t, 100, out.BalanceAfter)
}

func TestBridge_ErrorStatusMapping(t *testing.T) {
	engine := &mockEngine{
		balance:    5,
		disclaimer: "d",
		jobs: map[string]*model.Job{
			"pending": {ID: "pending", Status: model.StatusPending},
		},
	}
	srv := testServer(t, engine)

	// Validation failure -> 400.
	resp := postJSON(t, srv.URL+"/api/search", `{"kind":"bogus","case_id":"c","term":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Insufficient credits -> 402.
	resp = postJSON(t, srv.URL+"/api/search",
		`{"kind":"multi_provider_search","case_id":"c","term":"abcdef","providers":["caller_id"]}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Declined consent -> 403.
	engine.balance = 100
	resp = postJSON(t, srv.URL+"/api/search",
		`{"kind":"multi_provider_search","case_id":"c","term":"abcdef","providers":["breach_scan"],"consented":false}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Export of a non-completed job -> 409.
	resp = postJSON(t, srv.URL+"/api/export", `{"job_id":"pending","format":"pdf"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown job -> backend status passthrough.
	resp = postJSON(t, srv.URL+"/api/export", `{"job_id":"missing","format":"pdf"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridge_ExportSuccess(t *testing.T) {
	engine := &mockEngine{jobs: map[string]*model.Job{
		"done": {ID: "done", Status: model.StatusCompleted,
			ProviderResults: []model.ProviderResult{{ProviderKey: "caller_id", Success: true}}},
	}}
	srv := testServer(t, engine)

	resp := postJSON(t, srv.URL+"/api/export", `{"job_id":"done","format":"pdf"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, strings.HasSuffix(out["path"], "report.pdf"))
}

func TestBridge_GetJob(t *testing.T) {
	engine := &mockEngine{jobs: map[string]*model.Job{
		"j1": {ID: "j1", Status: model.StatusInProgress},
	}}
	srv := testServer(t, engine)

	resp, err := http.Get(srv.URL + "/api/jobs/j1")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job model.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, model.StatusInProgress, job.Status)
}

func TestBridge_CORSHeaders(t *testing.T) {
	srv := testServer(t, &mockEngine{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/balance", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
