package requester_test

import (
	"strconv"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/nmslite/snmppoller/internal/requester/requestertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func systemAgent() *requestertest.Agent {
	return requestertest.NewAgent().
		SetString(request.SysDescr, "Linux edge-01").
		Set(request.SysUpTime, gosnmp.TimeTicks, uint32(123456)).
		SetString(request.SysName, "edge-01").
		SetInt(request.IfNumber, 3)
}

func ifTableAgent(rows int) *requestertest.Agent {
	a := systemAgent()
	for i := 1; i <= rows; i++ {
		idx := strconv.Itoa(i)
		a.SetInt(request.Join(request.IfIndex, idx), i)
		a.SetString(request.Join(request.IfDescr, idx), "eth"+idx)
		a.Set(request.Join(request.IfInOctets, idx), gosnmp.Counter32, uint(1000*i))
	}
	return a
}

func scalars(oids ...string) []*request.ValueRequest {
	out := make([]*request.ValueRequest, len(oids))
	for i, oid := range oids {
		out[i] = request.New(oid, nil)
	}
	return out
}

func valueOf(t *testing.T, vr *request.ValueRequest) any {
	t.Helper()
	res, ok := vr.Result()
	require.True(t, ok, "no result for %s", vr.OID())
	return res.Value
}

func TestSequential_Execute(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	r := requester.NewSequential(scalars(request.SysDescr, request.SysUpTime, request.SysName), nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Linux edge-01", valueOf(t, results[0]))
	assert.Equal(t, uint64(123456), valueOf(t, results[1]))
	assert.Equal(t, "edge-01", valueOf(t, results[2]))

	assert.Equal(t, 3, r.Cursor())
	assert.False(t, r.IsError())
	assert.False(t, r.IsTimeout())

	sent := session.Sent()
	require.Len(t, sent, 3)
	for i, msg := range sent {
		assert.Equal(t, gosnmp.GetRequest, msg.Type)
		assert.Equal(t, i, msg.RequestID)
		assert.Len(t, msg.OIDs, 1)
	}
	assert.Zero(t, session.Violations())
}

func TestSequential_Failures(t *testing.T) {
	tests := []struct {
		name        string
		script      func(n int, msg requester.Message) requestertest.Fault
		oids        []string
		wantTimeout bool
		wantCode    int
		wantCursor  int
		wantIs      error
	}{
		{
			name:        "timeout before any value",
			script:      func(int, requester.Message) requestertest.Fault { return requestertest.Timeout },
			oids:        []string{request.SysDescr, request.SysName},
			wantTimeout: true,
			wantCursor:  0,
			wantIs:      requester.ErrTimeout,
		},
		{
			name: "agent error mid chain",
			script: func(n int, _ requester.Message) requestertest.Fault {
				if n == 2 {
					return requestertest.AgentError
				}
				return requestertest.Answer
			},
			oids:       []string{request.SysDescr, request.SysName, request.SysUpTime},
			wantCode:   int(gosnmp.GenErr),
			wantCursor: 1,
			wantIs:     requester.ErrTransport,
		},
		{
			name:       "missing instance",
			oids:       []string{request.SysDescr, "1.3.6.1.2.1.1.99.0"},
			wantCode:   requester.ErrCodeRender,
			wantCursor: 1,
			wantIs:     request.ErrNoSuchValue,
		},
		{
			name: "empty response",
			script: func(n int, _ requester.Message) requestertest.Fault {
				if n == 1 {
					return requestertest.Empty
				}
				return requestertest.Answer
			},
			oids:       []string{request.SysDescr},
			wantCode:   requester.ErrCodeEmpty,
			wantCursor: 0,
			wantIs:     requester.ErrTransport,
		},
		{
			name: "send rejected",
			script: func(int, requester.Message) requestertest.Fault {
				return requestertest.Reject
			},
			oids:       []string{request.SysDescr},
			wantCode:   requester.ErrCodeTransport,
			wantCursor: 0,
			wantIs:     requester.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := requestertest.NewSession(systemAgent())
			session.Script = tt.script
			session.ErrorStatus = gosnmp.GenErr
			r := requester.NewSequential(scalars(tt.oids...), nil)

			results, err := r.Execute(session)
			require.Error(t, err)
			assert.Nil(t, results)
			assert.ErrorIs(t, err, tt.wantIs)

			assert.Equal(t, tt.wantTimeout, r.IsTimeout())
			assert.Equal(t, !tt.wantTimeout, r.IsError())
			if !tt.wantTimeout {
				assert.Equal(t, tt.wantCode, r.ErrorCode())
			}
			assert.Equal(t, tt.wantCursor, r.Cursor())
			assert.Less(t, r.Cursor(), len(tt.oids))
		})
	}
}

func TestSequential_TimeoutLeavesNoValue(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	session.Script = func(int, requester.Message) requestertest.Fault { return requestertest.Timeout }
	reqs := scalars(request.SysDescr)
	r := requester.NewSequential(reqs, nil)

	results, err := r.Execute(session)
	assert.Nil(t, results)
	var cycleErr *requester.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.True(t, cycleErr.Timeout)
	assert.True(t, r.IsTimeout())
	assert.False(t, r.IsError())

	_, ok := reqs[0].Result()
	assert.False(t, ok)
}

func TestSequential_StickyFailureDespitePartialWrites(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	session.Script = func(n int, _ requester.Message) requestertest.Fault {
		if n == 3 {
			return requestertest.Timeout
		}
		return requestertest.Answer
	}
	reqs := scalars(request.SysDescr, request.SysName, request.SysUpTime)
	r := requester.NewSequential(reqs, nil)

	results, err := r.Execute(session)
	require.ErrorIs(t, err, requester.ErrTimeout)
	assert.Nil(t, results)

	// the first two were written this cycle, the cycle still failed
	assert.Equal(t, "Linux edge-01", valueOf(t, reqs[0]))
	assert.Equal(t, "edge-01", valueOf(t, reqs[1]))
	assert.Equal(t, 2, r.Cursor())
}

func TestSequential_FlagsResetBetweenCycles(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	fail := true
	session.Script = func(int, requester.Message) requestertest.Fault {
		if fail {
			return requestertest.Timeout
		}
		return requestertest.Answer
	}
	r := requester.NewSequential(scalars(request.SysDescr, request.SysName), nil)

	_, err := r.Execute(session)
	require.Error(t, err)
	require.True(t, r.IsTimeout())

	fail = false
	results, err := r.Execute(session)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.False(t, r.IsTimeout())
	assert.False(t, r.IsError())
	assert.Equal(t, 2, r.Cursor())
}

func TestSequential_DropsUncorrelatedResponses(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	session.Script = func(int, requester.Message) requestertest.Fault { return requestertest.Stale }
	reqs := scalars(request.SysDescr, request.SysName)
	r := requester.NewSequential(reqs, nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Linux edge-01", valueOf(t, reqs[0]))
	assert.Equal(t, "edge-01", valueOf(t, reqs[1]))
	assert.Equal(t, 2, r.Cursor())
}

func TestSequential_Add(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	r := requester.NewSequential(scalars(request.SysDescr), nil)
	r.Add(request.New(request.SysName, request.StringRenderer))
	assert.Equal(t, 2, r.Len())

	results, err := r.Execute(session)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "edge-01", valueOf(t, results[1]))
}

func TestExecute_Preconditions(t *testing.T) {
	session := requestertest.NewSession(systemAgent())

	_, err := requester.NewSequential(nil, nil).Execute(session)
	assert.ErrorIs(t, err, requester.ErrNoRequests)
	_, err = requester.NewBulk(nil, nil).Execute(session)
	assert.ErrorIs(t, err, requester.ErrNoRequests)

	require.NoError(t, session.Close())
	_, err = requester.NewSequential(scalars(request.SysDescr), nil).Execute(session)
	assert.ErrorIs(t, err, requester.ErrSessionClosed)
}

func TestCursorBound(t *testing.T) {
	faults := []requestertest.Fault{
		requestertest.Answer,
		requestertest.Timeout,
		requestertest.AgentError,
		requestertest.Empty,
		requestertest.Stale,
	}
	oids := []string{request.SysDescr, request.SysUpTime, request.SysName, request.IfNumber}

	for failAt := 1; failAt <= len(oids); failAt++ {
		for _, fault := range faults {
			session := requestertest.NewSession(systemAgent())
			session.Script = func(n int, _ requester.Message) requestertest.Fault {
				if n == failAt {
					return fault
				}
				return requestertest.Answer
			}
			r := requester.NewSequential(scalars(oids...), nil)

			_, err := r.Execute(session)
			cursor := r.Cursor()
			assert.GreaterOrEqual(t, cursor, 0)
			assert.LessOrEqual(t, cursor, len(oids))
			assert.Equal(t, err == nil, cursor == len(oids), "fault %d at %d", fault, failAt)
		}
	}
}

func TestSerialExecution_SingleOwner(t *testing.T) {
	session := requestertest.NewSession(ifTableAgent(2))
	rs := []requester.Requester{
		requester.NewSequential(scalars(request.SysDescr, request.SysName), nil),
		requester.NewBulk(scalars(request.SysUpTime, request.IfNumber), nil),
		requester.NewWalk(request.IfDescr, nil, 0, nil),
	}

	for cycle := 0; cycle < 3; cycle++ {
		for _, r := range rs {
			_, err := r.Execute(session)
			require.NoError(t, err, "%s", r.Strategy())
		}
	}
	session.Wait()
	assert.Zero(t, session.Violations())
}

func TestCycleError(t *testing.T) {
	assert.Equal(t, "poll cycle timed out", (&requester.CycleError{Timeout: true}).Error())
	assert.Equal(t, "poll cycle failed: genErr", (&requester.CycleError{Code: int(gosnmp.GenErr)}).Error())
	assert.Equal(t, "poll cycle failed: code 900", (&requester.CycleError{Code: 900}).Error())
	assert.ErrorIs(t, &requester.CycleError{Code: 5}, requester.ErrTransport)
	assert.NotErrorIs(t, &requester.CycleError{Code: 5}, requester.ErrTimeout)
}

func TestStrategy_String(t *testing.T) {
	assert.Equal(t, "sequential", requester.Sequential.String())
	assert.Equal(t, "bulk", requester.Bulk.String())
	assert.Equal(t, "extended_bulk", requester.ExtendedBulk.String())
	assert.Equal(t, "walk", requester.Walk.String())
	assert.Equal(t, "unknown", requester.Strategy(42).String())
}
