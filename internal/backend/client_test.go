package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/intel-cli/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:     srv.URL + "/api",
		Credentials: StaticToken("test-token"),
		Timeout:     5 * time.Second,
		RatePerSec:  1000,
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseURLAndCredentials(t *testing.T) {
	_, err := New(Options{Credentials: StaticToken("t")})
	require.Error(t, err)

	_, err = New(Options{BaseURL: "http://127.0.0.1:1"})
	require.Error(t, err)
}

func TestClient_InjectsAuthHeader(t *testing.T) {
	var gotAuth, gotAgent string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		_ = json.NewEncoder(w).Encode(map[string]int{"credits": 10})
	}))

	_, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Contains(t, gotAgent, "intel-cli")
}

func TestClient_EmptyTokenIsAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Credentials: StaticToken("")})
	require.NoError(t, err)

	_, err = c.Balance(context.Background())
	require.ErrorIs(t, err, model.ErrAuthRequired)
}

func TestClient_Unauthorized(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token expired"}`))
	}))

	_, err := c.Balance(context.Background())
	require.ErrorIs(t, err, model.ErrAuthRequired)
	assert.Contains(t, err.Error(), "token expired")
}

func TestClient_BackendDetailPassthrough(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"Insufficient credits"}`))
	}))

	_, err := c.Balance(context.Background())
	var backendErr *model.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusPaymentRequired, backendErr.Status)
	assert.Equal(t, "Insufficient credits", backendErr.Detail, "backend wording surfaces verbatim")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"credits": 42})
	}))

	credits, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, credits)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"job not found"}`))
	}))

	_, err := c.GetJob(context.Background(), "job-404")
	var backendErr *model.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_TransportErrorWrapped(t *testing.T) {
	c, err := New(Options{
		BaseURL:     "http://127.0.0.1:1",
		Credentials: StaticToken("t"),
		Timeout:     200 * time.Millisecond,
		MaxRetries:  1,
		RatePerSec:  1000,
	})
	require.NoError(t, err)

	_, err = c.Balance(context.Background())
	assert.True(t, model.IsTransport(err), "dial failures map to TransportError, got %v", err)
}

func TestCreateJob_RejectsMalformedSnapshot(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Failed without an error message violates the snapshot contract.
		_, _ = w.Write([]byte(`{"id":"j1","kind":"username_sweep","status":"failed"}`))
	}))

	_, err := c.CreateJob(context.Background(), CreateJobRequest{Kind: model.KindUsernameSweep, CaseID: "c", Term: "abc"})
	require.Error(t, err)
}

func TestCreateJob_SendsPayload(t *testing.T) {
	var got CreateJobRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"j1","kind":"multi_provider_search","status":"pending","cost_charged":25}`))
	}))

	job, err := c.CreateJob(context.Background(), CreateJobRequest{
		Kind:      model.KindMultiProviderSearch,
		CaseID:    "case-7",
		Term:      "jane doe",
		Providers: []string{"caller_id"},
		Consented: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, 25, job.CostCharged)
	assert.Equal(t, "case-7", got.CaseID)
	assert.True(t, got.Consented)
}

func TestWaitJob_TimeoutIsNotFailure(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/jobs/wait", r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("timeout"))
		_, _ = w.Write([]byte(`{"success":false}`))
	}))

	out, err := c.WaitJob(context.Background(), "job-1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, out.Done)
	assert.True(t, out.TimedOut)
}

func TestWaitJob_Done(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	out, err := c.WaitJob(context.Background(), "job-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, out.Done)
	assert.False(t, out.TimedOut)
}

func TestSubmitBulk(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/jobs/bulk", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"total": 2, "saved": 1,
			"results": [
				{"input":"+15550100001","job":{"id":"j1","status":"pending"}},
				{"input":"+15550100002","error":"provider rejected"}
			]
		}`))
	}))

	out, err := c.SubmitBulk(context.Background(), BulkRequest{
		Kind: model.KindSingleProfileScrape, CaseID: "c", Inputs: []string{"+15550100001", "+15550100002"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Saved)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "j1", out.Items[0].Job.ID)
	assert.Equal(t, "provider rejected", out.Items[1].Error)

	_, err = c.SubmitBulk(context.Background(), BulkRequest{Kind: model.KindSingleProfileScrape})
	require.Error(t, err, "empty input set never reaches the wire")
}

func TestDisclaimer_EmptyTextRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	_, err := c.Disclaimer(context.Background())
	require.Error(t, err)
}

func TestClearCache_FilterQuery(t *testing.T) {
	var gotFilter string
	var gotMethod string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.ClearCache(context.Background(), "case-7"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "case-7", gotFilter)
}

func TestExportArtifact(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/jobs/job-1/export/pdf", r.URL.Path)
		w.Header().Set("Content-Disposition", `attachment; filename="job-1-report.pdf"`)
		_, _ = w.Write([]byte("%PDF"))
	}))

	body, filename, err := c.ExportArtifact(context.Background(), "job-1", "pdf")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck
	assert.Equal(t, "job-1-report.pdf", filename)
}

func TestExportArtifact_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, _, err := c.ExportArtifact(context.Background(), "job-1", "pdf")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "export downloads are single-attempt")
}

func TestDispositionFilename(t *testing.T) {
	assert.Equal(t, "r.pdf", dispositionFilename(`attachment; filename="r.pdf"`))
	assert.Equal(t, "", dispositionFilename(""))
	assert.Equal(t, "", dispositionFilename("not a header"))
	assert.Equal(t, "", dispositionFilename("attachment"))
}
