package requester_test

import (
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/nmslite/snmppoller/internal/requester/requestertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk_Subtree(t *testing.T) {
	session := requestertest.NewSession(ifTableAgent(3))
	r := requester.NewWalk(request.IfDescr, nil, 0, nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, request.Join(request.IfDescr, "1"), results[0].OID())
	assert.Equal(t, "eth3", valueOf(t, results[2]))
	assert.Equal(t, 3, r.Cursor())

	// three rows plus the GETNEXT that leaves the column
	sent := session.Sent()
	require.Len(t, sent, 4)
	for i, msg := range sent {
		assert.Equal(t, gosnmp.GetNextRequest, msg.Type)
		assert.Equal(t, i, msg.RequestID)
	}
	assert.Equal(t, request.IfDescr, sent[0].OIDs[0])
	assert.Equal(t, request.Join(request.IfDescr, "1"), sent[1].OIDs[0])
}

func TestWalk_EndOfMib(t *testing.T) {
	agent := requestertest.NewAgent().
		SetString("1.3.6.1.4.1.9.1.1", "a").
		SetString("1.3.6.1.4.1.9.1.2", "b")
	session := requestertest.NewSession(agent)
	r := requester.NewWalk("1.3.6.1.4.1.9", nil, 0, nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestWalk_EmptySubtree(t *testing.T) {
	session := requestertest.NewSession(systemAgent())
	r := requester.NewWalk(request.HrStorageMib, nil, 0, nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, r.Cursor())
}

func TestWalk_RowCap(t *testing.T) {
	session := requestertest.NewSession(ifTableAgent(5))
	r := requester.NewWalk(request.IfDescr, request.StringRenderer, 2, nil)

	results, err := r.Execute(session)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Len(t, session.Sent(), 2)
}

func TestWalk_Failures(t *testing.T) {
	session := requestertest.NewSession(ifTableAgent(3))
	session.Script = func(n int, _ requester.Message) requestertest.Fault {
		if n == 2 {
			return requestertest.Timeout
		}
		return requestertest.Stale
	}
	r := requester.NewWalk(request.IfDescr, nil, 0, nil)

	results, err := r.Execute(session)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, requester.ErrTimeout)
	assert.Equal(t, 1, r.Cursor())

	session.Script = nil
	results, err = r.Execute(session)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, results, r.Results())
}

func TestWalk_NoRoot(t *testing.T) {
	_, err := requester.NewWalk("", nil, 0, nil).Execute(requestertest.NewSession(systemAgent()))
	assert.ErrorIs(t, err, requester.ErrNoRequests)
}
