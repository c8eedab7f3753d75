package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/testutil"
)

const accountURL = "http://api.test/account/v1/accounts/1"

func account(url, status string) hal.Representation {
	return hal.Representation{
		"accountNumber": "123456789",
		"status":        status,
		hal.LinksKey:    testutil.Link("self", url),
	}
}

func triggerBody(url string) []byte {
	return []byte(fmt.Sprintf(`{"_links":{"account":{"href":%q}}}`, url))
}

func newRegistry(t *testing.T, client hal.Client, opts ...ExecutorOption) *Registry {
	t.Helper()
	r, err := NewRegistry(client, NewExecutor(opts...), AccountPending)
	require.NoError(t, err)
	return r
}

func TestAccountPending_Completes(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, account(accountURL, "ACCOUNT_CREATED"))
	r := newRegistry(t, client, WithRunIDs(NewFixedGenerator("run-1")))

	res, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "ACCOUNT_PENDING", res.Resource.Status())
	assert.Equal(t, "123456789", res.Resource["accountNumber"])

	require.Equal(t, 1, client.Count("PUT", accountURL))
	var put testutil.Request
	for _, req := range client.Requests() {
		if req.Method == "PUT" {
			put = req
		}
	}
	assert.Equal(t, "ACCOUNT_PENDING", put.Body.Status())
	// Start URL, then the self relation.
	assert.Equal(t, 2, client.Count("GET", accountURL))
}

func TestAccountPending_PreconditionFailure(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, account(accountURL, "ACCOUNT_PENDING"))
	r := newRegistry(t, client)

	res, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.Error(t, err)

	assert.True(t, faults.IsPrecondition(err))
	assert.Nil(t, res.Resource)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 0, client.Count("PUT", accountURL), "mutation must not run")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "resolve", stepErr.Step)

	var fault *faults.Error
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "ACCOUNT_CREATED", fault.Expected)
	assert.Equal(t, "ACCOUNT_PENDING", fault.Actual)
	assert.Equal(t, "resource state invalid: ACCOUNT_PENDING", fault.Message)
}

func TestAccountPending_PostconditionFailure(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, account(accountURL, "ACCOUNT_CREATED"))
	client.SetPutResponse(accountURL, account(accountURL, "ACCOUNT_CREATED"))
	r := newRegistry(t, client)

	res, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.Error(t, err)

	assert.True(t, faults.IsPostcondition(err))
	assert.Nil(t, res.Resource)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "mutate", stepErr.Step)
	assert.Contains(t, err.Error(), "status could not be updated to ACCOUNT_PENDING")
}

func TestAccountPending_TransportFailure(t *testing.T) {
	client := testutil.NewFakeClient()
	r := newRegistry(t, client)

	_, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.Error(t, err)
	assert.True(t, faults.IsTransport(err))
	assert.Equal(t, 0, client.Count("PUT", accountURL))
}

func TestAccountPending_MissingFollowRelation(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, hal.Representation{"status": "ACCOUNT_CREATED"})
	r := newRegistry(t, client)

	_, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.Error(t, err)
	assert.True(t, faults.IsTransport(err))
	assert.Contains(t, err.Error(), `link relation "self" not found`)
}

func TestRun_StepsRunInOrderAndAbortOnFirstFailure(t *testing.T) {
	var order []string
	record := func(name string, fail bool) Step {
		return Step{Name: name, Fn: func(ctx context.Context, wc Context) Outcome {
			order = append(order, name)
			if fail {
				return Fail(errors.New(name + " broke"))
			}
			return Advance(wc)
		}}
	}

	exec := NewExecutor()
	_, err := exec.Run(context.Background(), []Step{
		record("one", false),
		record("two", true),
		record("three", false),
	}, hal.From(testutil.NewFakeClient(), accountURL))

	require.Error(t, err)
	assert.Equal(t, []string{"one", "two"}, order)
	assert.EqualError(t, err, "step 2 (two): two broke")
}

func TestRun_ContextFlowsBetweenSteps(t *testing.T) {
	exec := NewExecutor()
	res, err := exec.Run(context.Background(), []Step{
		{Name: "set", Fn: func(ctx context.Context, wc Context) Outcome {
			wc.Resource = hal.Representation{"status": "A"}
			return Advance(wc)
		}},
		{Name: "check", Fn: func(ctx context.Context, wc Context) Outcome {
			if wc.Resource.Status() != "A" {
				return Fail(fmt.Errorf("got %q", wc.Resource.Status()))
			}
			wc.Resource = wc.Resource.WithStatus("B")
			return Advance(wc)
		}},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "B", res.Resource.Status())
}

func TestRun_FailWithoutReasonStillAborts(t *testing.T) {
	ran := false
	exec := NewExecutor()
	_, err := exec.Run(context.Background(), []Step{
		{Name: "bad", Fn: func(ctx context.Context, wc Context) Outcome { return Fail(nil) }},
		{Name: "after", Fn: func(ctx context.Context, wc Context) Outcome { ran = true; return Advance(wc) }},
	}, nil)

	require.Error(t, err)
	assert.False(t, ran)
}

func TestRun_ZeroOutcomeAborts(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, account(accountURL, "ACCOUNT_CREATED"))

	exec := NewExecutor(WithRunIDs(NewFixedGenerator("run-0")))
	steps := append([]Step{
		{Name: "noop", Fn: func(ctx context.Context, wc Context) Outcome { return Outcome{} }},
	}, AccountPending.Steps()...)

	var res Result
	var err error
	require.NotPanics(t, func() {
		res, err = exec.Run(context.Background(), steps, hal.From(client, accountURL))
	})

	require.ErrorIs(t, err, ErrNoOutcome)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "noop", stepErr.Step)
	assert.Equal(t, "run-0", res.RunID)
	assert.Nil(t, res.Resource)
	assert.Zero(t, client.Count("GET", accountURL))
}

func TestSteps_WithoutTraversalFail(t *testing.T) {
	exec := NewExecutor()
	var err error
	require.NotPanics(t, func() {
		_, err = exec.Run(context.Background(), AccountPending.Steps(), nil)
	})
	require.ErrorIs(t, err, ErrNoTraversal)

	out := MutateStep("ACCOUNT_PENDING").Fn(context.Background(), Context{Resource: account(accountURL, "ACCOUNT_CREATED")})
	assert.True(t, out.Failed())
	assert.ErrorIs(t, out.Err(), ErrNoTraversal)
}

func TestRun_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := false
	exec := NewExecutor()
	_, err := exec.Run(ctx, []Step{
		{Name: "cancel", Fn: func(ctx context.Context, wc Context) Outcome { cancel(); return Advance(wc) }},
		{Name: "after", Fn: func(ctx context.Context, wc Context) Outcome { ran = true; return Advance(wc) }},
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	client := testutil.NewFakeClient()
	const n = 8
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("http://api.test/account/v1/accounts/%d", i)
		client.Set(url, account(url, "ACCOUNT_CREATED"))
	}
	r := newRegistry(t, client)

	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("http://api.test/account/v1/accounts/%d", i)
			results[i], errs[i] = r.Trigger(context.Background(), "account-pending", triggerBody(url))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "ACCOUNT_PENDING", results[i].Resource.Status())
		assert.Equal(t, fmt.Sprintf("http://api.test/account/v1/accounts/%d", i), mustHref(t, results[i].Resource, "self"))
		assert.False(t, seen[results[i].RunID], "run IDs must be unique")
		seen[results[i].RunID] = true
	}
}

func mustHref(t *testing.T, rep hal.Representation, rel string) string {
	t.Helper()
	href, ok := rep.Href(rel)
	require.True(t, ok)
	return href
}

func TestRun_RecordsMetrics(t *testing.T) {
	client := testutil.NewFakeClient()
	client.Set(accountURL, account(accountURL, "ACCOUNT_CREATED"))
	m := metrics.New()
	r := newRegistry(t, client, WithMetrics(m))

	_, err := r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.NoError(t, err)
	_, err = r.Trigger(context.Background(), "account-pending", triggerBody(accountURL))
	require.Error(t, err, "account is already pending")

	count, err := promtest.GatherAndCount(m.Registry(), "hyperdash_workflow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per result label")
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "valid", body: `{"_links":{"account":{"href":"http://x/1"}}}`, want: "http://x/1"},
		{name: "missing rel", body: `{"_links":{"order":{"href":"http://x/1"}}}`, wantErr: true},
		{name: "empty href", body: `{"_links":{"account":{"href":""}}}`, wantErr: true},
		{name: "no links", body: `{}`, wantErr: true},
		{name: "malformed", body: `{"_links":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrigger([]byte(tt.body), "account")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTrigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	client := testutil.NewFakeClient()

	_, err := NewRegistry(client, NewExecutor(), AccountPending, AccountPending)
	assert.ErrorContains(t, err, "duplicate workflow")

	_, err = NewRegistry(client, NewExecutor(), Transition{})
	assert.Error(t, err)

	other := Transition{Name: "order-confirm", TriggerRel: "order", FollowRel: "self",
		Precondition: "ORDER_CREATED", Postcondition: "ORDER_CONFIRMED"}
	r, err := NewRegistry(client, NewExecutor(), other, AccountPending)
	require.NoError(t, err)
	assert.Equal(t, []string{"account-pending", "order-confirm"}, r.Names())

	got, ok := r.Get("order-confirm")
	require.True(t, ok)
	assert.Equal(t, "ORDER_CONFIRMED", got.Postcondition)

	_, err = r.Trigger(context.Background(), "nope", triggerBody(accountURL))
	assert.ErrorIs(t, err, ErrUnknownWorkflow)

	_, err = r.Trigger(context.Background(), "account-pending", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "7", a[14:15], "version nibble")
}
