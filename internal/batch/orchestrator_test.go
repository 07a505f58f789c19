package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/intel-cli/internal/backend"
	"github.com/casedesk/intel-cli/internal/model"
)

type mockSubmitter struct {
	result *backend.BulkResult
	err    error
	calls  int
	lastReq backend.BulkRequest
}

func (m *mockSubmitter) SubmitBulk(ctx context.Context, req backend.BulkRequest) (*backend.BulkResult, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func collect(t *testing.T, e *Execution) []Outcome {
	t.Helper()
	var out []Outcome
	for o := range e.Outcomes() {
		out = append(out, o)
	}
	return out
}

func TestRun_IsolatesInvalidInputs(t *testing.T) {
	mock := &mockSubmitter{result: &backend.BulkResult{
		Total: 2,
		Saved: 2,
		Items: []backend.BulkItem{
			{Input: "+15550100001", Job: &model.Job{ID: "j1", Status: model.StatusPending}},
			{Input: "+15550100002", Job: &model.Job{ID: "j2", Status: model.StatusPending}},
		},
	}}
	o := New(mock)

	e := o.Run(context.Background(), Request{
		Inputs: []string{"+15550100001", "garbage", "+15550100002"},
		Kind:   model.KindSingleProfileScrape,
		CaseID: "case-7",
	})
	outcomes := collect(t, e)

	// One outcome per input, in input order.
	require.Len(t, outcomes, 3)
	assert.Equal(t, "+15550100001", outcomes[0].Input)
	assert.Equal(t, "garbage", outcomes[1].Input)
	assert.Equal(t, "+15550100002", outcomes[2].Input)

	assert.Equal(t, "j1", outcomes[0].Job.ID)
	assert.True(t, model.IsValidation(outcomes[1].Err))
	assert.Equal(t, "j2", outcomes[2].Job.ID)

	// The malformed row never reaches the backend.
	assert.Equal(t, 1, mock.calls)
	assert.Equal(t, []string{"+15550100001", "+15550100002"}, mock.lastReq.Inputs)

	summary, err := e.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Dispatched)
	assert.Equal(t, 2, summary.Saved)
	assert.Equal(t, 1, summary.LocalFailures)
	assert.Empty(t, summary.Discrepancy)
}

func TestRun_AllInvalidSkipsBackend(t *testing.T) {
	mock := &mockSubmitter{}
	o := New(mock)

	e := o.Run(context.Background(), Request{
		Inputs: []string{"x", "yy"},
		Kind:   model.KindUsernameSweep,
		CaseID: "case-7",
	})
	outcomes := collect(t, e)

	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		assert.True(t, model.IsValidation(out.Err))
	}
	assert.Zero(t, mock.calls, "nothing valid, nothing dispatched")

	summary, err := e.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.LocalFailures)
	assert.Zero(t, summary.Dispatched)
}

func TestRun_BulkErrorFailsDispatchedOnly(t *testing.T) {
	mock := &mockSubmitter{err: &model.TransportError{Op: "bulk", Err: context.DeadlineExceeded}}
	o := New(mock)

	e := o.Run(context.Background(), Request{
		Inputs: []string{"+15550100001", "bad", "+15550100002"},
		Kind:   model.KindSingleProfileScrape,
		CaseID: "case-7",
	})
	outcomes := collect(t, e)

	require.Len(t, outcomes, 3)
	assert.True(t, model.IsTransport(outcomes[0].Err))
	assert.True(t, model.IsValidation(outcomes[1].Err), "local rejection is reported as such, not as the bulk failure")
	assert.True(t, model.IsTransport(outcomes[2].Err))

	_, err := e.Wait()
	require.Error(t, err)
}

func TestRun_PerItemBackendFailures(t *testing.T) {
	mock := &mockSubmitter{result: &backend.BulkResult{
		Total: 2,
		Saved: 1,
		Items: []backend.BulkItem{
			{Input: "+15550100001", Job: &model.Job{ID: "j1", Status: model.StatusPending}},
			{Input: "+15550100002", Error: "duplicate submission"},
		},
	}}
	o := New(mock)

	e := o.Run(context.Background(), Request{
		Inputs: []string{"+15550100001", "+15550100002"},
		Kind:   model.KindSingleProfileScrape,
		CaseID: "case-7",
	})
	outcomes := collect(t, e)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "j1", outcomes[0].Job.ID)
	var backendErr *model.BackendError
	require.ErrorAs(t, outcomes[1].Err, &backendErr)
	assert.Equal(t, "duplicate submission", backendErr.Detail)

	summary, err := e.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Saved)
	assert.Contains(t, summary.Discrepancy, "saved 1 of 2")
}

func TestRun_MissingItemOutcome(t *testing.T) {
	mock := &mockSubmitter{result: &backend.BulkResult{Total: 1, Saved: 1, Items: nil}}
	o := New(mock)

	e := o.Run(context.Background(), Request{
		Inputs: []string{"+15550100001"},
		Kind:   model.KindSingleProfileScrape,
		CaseID: "case-7",
	})
	outcomes := collect(t, e)

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	assert.Contains(t, outcomes[0].Err.Error(), "no outcome")
}

func TestSummary_Line(t *testing.T) {
	s := Summary{Total: 10, Dispatched: 8, Saved: 7, LocalFailures: 2, Discrepancy: "backend saved 7 of 8 dispatched inputs"}
	assert.Equal(t, "8 of 10 processed (7 saved, 2 rejected locally); backend saved 7 of 8 dispatched inputs", s.Line())
}

func TestValidateInput(t *testing.T) {
	assert.NoError(t, validateInput("+15550100001", model.KindSingleProfileScrape))
	assert.Error(t, validateInput("garbage", model.KindSingleProfileScrape))
	assert.NoError(t, validateInput("jdoe42", model.KindUsernameSweep))
	assert.Error(t, validateInput("jd", model.KindUsernameSweep))
	assert.Error(t, validateInput("anything", "bogus"))
}
