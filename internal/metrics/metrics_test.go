package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New("")

	m.ObserveRequester("edge-01", "bulkget", requester.Bulk, 20*time.Millisecond, nil)
	m.ObserveRequester("edge-01", "simpletable:1.3.6.1.2.1.2.1.0", requester.ExtendedBulk, time.Second,
		&requester.CycleError{Timeout: true})
	m.ObserveCycle("edge-01", time.Second, false, 3)
	m.ObserveCycle("edge-01", time.Second, true, 7)
	m.ObserveFirstPass("edge-01", 1, errors.New("discover simple table"))
	m.ObserveTargetState("edge-01", false)
	m.ObserveFlush(10, time.Millisecond, nil)
	m.ObserveFlush(5, time.Millisecond, errors.New("copy failed"))

	body := scrape(t, m)
	for _, line := range []string{
		`snmppoller_cycles_total{result="partial",target="edge-01"} 1`,
		`snmppoller_cycles_total{result="success",target="edge-01"} 1`,
		`snmppoller_samples_collected_total{target="edge-01"} 10`,
		`snmppoller_requester_failures_total{group="simpletable:1.3.6.1.2.1.2.1.0",reason="timeout",strategy="extended_bulk",target="edge-01"} 1`,
		`snmppoller_pending_tables{target="edge-01"} 1`,
		`snmppoller_table_discovery_total{result="incomplete",target="edge-01"} 1`,
		`snmppoller_target_up{target="edge-01"} 0`,
		`snmppoller_rows_written_total 10`,
		`snmppoller_flush_failures_total 1`,
		`go_goroutines`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&requester.CycleError{Timeout: true}, "timeout"},
		{requester.ErrSessionClosed, "session_closed"},
		{&requester.CycleError{Code: int(gosnmp.NoSuchName)}, "agent"},
		{&requester.CycleError{Code: requester.ErrCodeRender}, "render"},
		{&requester.CycleError{Code: requester.ErrCodeTransport}, "transport"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureReason(tt.err), "%v", tt.err)
	}
}
