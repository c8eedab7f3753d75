package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/testutil"
)

const (
	testBase    = "http://api.test"
	accountURL  = testBase + "/account/v1/accounts/1"
	eventsURL   = accountURL + "/events"
	commandsURL = accountURL + "/commands"
)

func activeAccount(c *testutil.FakeClient) {
	c.Set(accountURL, hal.Representation{
		"status":     "ACCOUNT_ACTIVE",
		hal.LinksKey: testutil.Link("self", accountURL, "events", eventsURL, "commands", commandsURL),
	})
	c.Set(eventsURL, testutil.Feed("accountEventList",
		map[string]any{"type": "ACCOUNT_CREATED", "createdAt": int64(1000)},
		map[string]any{"type": "ACCOUNT_ACTIVATED", "createdAt": int64(2000)},
	))
	c.Set(commandsURL, hal.Representation{
		hal.LinksKey: testutil.Link("self", commandsURL, "suspend", accountURL+"/commands/suspend"),
	})
	c.Set(accountURL+"/commands/suspend", hal.Representation{"status": "ACCOUNT_SUSPENDED"})
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestWatchOnce(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)

	cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	out, err := execute(t, cmd, "account", "1", "--once", "--pace", "0", "--base-url", testBase)
	require.NoError(t, err)

	assert.Contains(t, out, "== account/1 ==")
	assert.Contains(t, out, "account/1 history (2)")
	assert.Contains(t, out, "ACCOUNT_ACTIVATED")
	assert.Contains(t, out, "suspend")
	assert.Equal(t, 1, client.Count("GET", eventsURL))
}

func TestWatchOnce_JournalRoundTrip(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)
	db := filepath.Join(t.TempDir(), "session.db")

	watch := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	_, err := execute(t, watch, "account", "1", "--once", "--pace", "0", "--base-url", testBase, "--journal", db)
	require.NoError(t, err)

	out, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--journal", db)
	require.NoError(t, err)
	assert.Equal(t, "account/1\n", out)

	out, err = execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "account", "1", "--journal", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "snapshot account/1 ACCOUNT_ACTIVE", lines[0])
	assert.Contains(t, out, "commands account/1 [suspend]")
	assert.Contains(t, out, "table account/1 ACCOUNT_CREATED@1000")

	out, err = execute(t, NewJournalCommand(&RootOptions{Format: "json"}), "account", "1", "--journal", db, "--events")
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data, 2)
}

// scrape returns the collector's exposition text.
func scrape(t *testing.T, m *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestWatchOnce_RecordsMetrics(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)
	m := metrics.New()

	cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client, Metrics: m})
	_, err := execute(t, cmd, "account", "1", "--once", "--pace", "0", "--base-url", testBase)
	require.NoError(t, err)

	body := scrape(t, m)
	assert.Contains(t, body, `hyperdash_poll_cycles_total{kind="ACCOUNT",outcome="first_observation"} 1`)
	assert.Contains(t, body, `hyperdash_events_replayed_total{kind="ACCOUNT"} 1`)
}

func TestWatch_ShrunkFeedCountsReconciliationFault(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)
	clk := testutil.NewManualClock(time.Date(2017, 7, 14, 2, 40, 0, 0, time.UTC))
	m := metrics.New()

	cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client, Clock: clk, Metrics: m})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"account", "1", "--pace", "0", "--interval", "2s", "--base-url", testBase})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd.SetContext(ctx)

	result := make(chan error, 1)
	go func() { result <- cmd.Execute() }()

	// First cycle done once the loop waits out the interval.
	require.True(t, clk.WaitForWaiters(1, 5*time.Second))
	client.Set(eventsURL, testutil.Feed("accountEventList",
		map[string]any{"type": "ACCOUNT_CREATED", "createdAt": int64(1000)},
	))
	clk.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, m), `hyperdash_reconciliation_faults_total{kind="ACCOUNT"} 1`)
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "watch did not stop after cancel")
	}
}

func TestWatchOnce_ServesMetrics(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)

	cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	_, err := execute(t, cmd, "account", "1", "--once", "--pace", "0", "--base-url", testBase, "--metrics-addr", "127.0.0.1:0")
	assert.NoError(t, err)

	cmd = newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	_, err = execute(t, cmd, "account", "1", "--once", "--metrics-addr", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatchOnce_Errors(t *testing.T) {
	t.Run("unknown kind", func(t *testing.T) {
		cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: testutil.NewFakeClient()})
		_, err := execute(t, cmd, "invoice", "1", "--once")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("resource unreachable", func(t *testing.T) {
		cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}, Client: testutil.NewFakeClient()})
		out, err := execute(t, cmd, "account", "1", "--once", "--base-url", testBase)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "snapshot")
		assert.Contains(t, out, "error:")
	})

	t.Run("missing args", func(t *testing.T) {
		cmd := newWatchCommand(&WatchOptions{RootOptions: &RootOptions{Format: "text"}})
		_, err := execute(t, cmd, "account")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 2 arg")
	})
}

func TestCommand_Invoke(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)

	cmd := newCommandCommand(&CommandOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	out, err := execute(t, cmd, "account", "1", "suspend", "--base-url", testBase)
	require.NoError(t, err)
	assert.Contains(t, out, "ACCOUNT_SUSPENDED")
	assert.Equal(t, 1, client.Count("GET", accountURL+"/commands/suspend"))
}

func TestCommand_ListsWithoutRel(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)

	cmd := newCommandCommand(&CommandOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	out, err := execute(t, cmd, "account", "1", "--base-url", testBase)
	require.NoError(t, err)
	assert.Contains(t, out, "commands:")
	assert.Contains(t, out, "suspend")
	assert.Equal(t, 0, client.Count("GET", accountURL+"/commands/suspend"))
}

func TestCommand_NotOffered(t *testing.T) {
	client := testutil.NewFakeClient()
	activeAccount(client)

	cmd := newCommandCommand(&CommandOptions{RootOptions: &RootOptions{Format: "text"}, Client: client})
	_, err := execute(t, cmd, "account", "1", "archive", "--base-url", testBase)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), `"archive" not offered`)
}

func createdAccount(c *testutil.FakeClient, status string) {
	c.Set(accountURL, hal.Representation{
		"status":     status,
		hal.LinksKey: testutil.Link("self", accountURL),
	})
}

func newTestStep(client *testutil.FakeClient, format string) *cobra.Command {
	return newStepCommand(&StepOptions{
		RootOptions: &RootOptions{Format: format},
		Client:      client,
		RunIDs:      testutil.NewFixedRunIDGenerator("run-1"),
	})
}

func TestStep_URL(t *testing.T) {
	client := testutil.NewFakeClient()
	createdAccount(client, "ACCOUNT_CREATED")

	out, err := execute(t, newTestStep(client, "text"), "account-pending", "--url", accountURL)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 completed")
	assert.Contains(t, out, "status: ACCOUNT_PENDING")
	assert.Equal(t, 1, client.Count("PUT", accountURL))
}

func TestStep_TriggerFromStdin(t *testing.T) {
	client := testutil.NewFakeClient()
	createdAccount(client, "ACCOUNT_CREATED")

	cmd := newTestStep(client, "json")
	cmd.SetIn(strings.NewReader(fmt.Sprintf(`{"_links":{"account":{"href":%q}}}`, accountURL)))
	out, err := execute(t, cmd, "account-pending", "--trigger", "-")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
}

func TestStep_PreconditionFailure(t *testing.T) {
	client := testutil.NewFakeClient()
	createdAccount(client, "ACCOUNT_ACTIVE")

	out, err := execute(t, newTestStep(client, "text"), "account-pending", "--url", accountURL)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [PRECONDITION_VIOLATION] run run-1:")
	assert.Equal(t, 0, client.Count("PUT", accountURL))
}

func TestStep_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"account-pending"}},
		{"both targets", []string{"account-pending", "--url", accountURL, "--trigger", "-"}},
		{"unknown workflow", []string{"order-shipped", "--url", accountURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newTestStep(testutil.NewFakeClient(), "text"), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestServe_StopsWhenContextEnds(t *testing.T) {
	cmd := newServeCommand(&ServeOptions{RootOptions: &RootOptions{Format: "text"}, Client: testutil.NewFakeClient()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd.SetContext(ctx)

	assert.NoError(t, cmd.Execute())
}

func TestJournal_RequiresPath(t *testing.T) {
	_, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJournal_ArgCount(t *testing.T) {
	_, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 0 or 2 arg(s)")
}

func TestStates(t *testing.T) {
	out, err := execute(t, NewStatesCommand(&RootOptions{Format: "text"}), "account")
	require.NoError(t, err)
	assert.Contains(t, out, "ACCOUNT (initial ACCOUNT_CREATED)")
	assert.Contains(t, out, "ACCOUNT_CREATED --CREATED--> ACCOUNT_PENDING")

	out, err = execute(t, NewStatesCommand(&RootOptions{Format: "json"}))
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data, 3)

	_, err = execute(t, NewStatesCommand(&RootOptions{Format: "text"}), "invoice")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
