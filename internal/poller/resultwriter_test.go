package poller

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	samples []collector.Sample
	err     error
}

func (r *recordingSink) Submit(_ context.Context, s collector.Sample) error {
	if r.err != nil {
		return r.err
	}
	r.samples = append(r.samples, s)
	return nil
}

func cycleResult(target string, values map[string]uint64) *collector.Result {
	res := &collector.Result{CycleID: uuid.New(), Target: target, Started: time.Now()}
	for oid, v := range values {
		res.Samples = append(res.Samples, collector.Sample{
			Timestamp: res.Started,
			Target:    target,
			CycleID:   res.CycleID,
			OID:       oid,
			Kind:      request.KindCounter,
			Value:     v,
		})
	}
	return res
}

func TestResultWriter_LatestInOIDOrder(t *testing.T) {
	w := NewResultWriter(slog.New(slog.DiscardHandler), nil)

	w.Write(context.Background(), cycleResult("edge-01", map[string]uint64{
		request.Join(request.IfInOctets, "10"): 10,
		request.Join(request.IfInOctets, "2"):  2,
		request.Join(request.IfInOctets, "1"):  1,
	}))

	latest, ok := w.Latest("edge-01")
	require.True(t, ok)
	var oids []string
	for _, s := range latest {
		oids = append(oids, s.OID)
	}
	assert.Equal(t, []string{
		request.Join(request.IfInOctets, "1"),
		request.Join(request.IfInOctets, "2"),
		request.Join(request.IfInOctets, "10"),
	}, oids)

	_, ok = w.Latest("core-01")
	assert.False(t, ok)
}

func TestResultWriter_PartialCycleKeepsOlderValues(t *testing.T) {
	w := NewResultWriter(slog.New(slog.DiscardHandler), nil)
	first := cycleResult("edge-01", map[string]uint64{request.SysUpTime: 100, request.IfNumber: 2})
	w.Write(context.Background(), first)

	second := cycleResult("edge-01", map[string]uint64{request.SysUpTime: 200})
	second.Failed = []string{"simpletable:" + request.IfNumber}
	w.Write(context.Background(), second)

	latest, _ := w.Latest("edge-01")
	require.Len(t, latest, 2)
	byOID := map[string]collector.Sample{}
	for _, s := range latest {
		byOID[s.OID] = s
	}
	assert.Equal(t, uint64(200), byOID[request.SysUpTime].Value)
	assert.Equal(t, second.CycleID, byOID[request.SysUpTime].CycleID)
	assert.Equal(t, first.CycleID, byOID[request.IfNumber].CycleID)
}

func TestResultWriter_Sink(t *testing.T) {
	tests := []struct {
		name    string
		sinkErr error
		want    int
	}{
		{name: "forwards every sample", want: 3},
		{name: "stops at the first submit error", sinkErr: errors.New("submit cancelled"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{err: tt.sinkErr}
			w := NewResultWriter(slog.New(slog.DiscardHandler), sink)
			w.Write(context.Background(), cycleResult("edge-01", map[string]uint64{
				request.SysUpTime: 1, request.IfNumber: 2, request.SysName: 3,
			}))
			assert.Len(t, sink.samples, tt.want)

			_, ok := w.Latest("edge-01")
			assert.True(t, ok, "cache is filled regardless of the sink")
		})
	}
}

func TestResultWriter_IgnoresEmptyResults(t *testing.T) {
	sink := &recordingSink{}
	w := NewResultWriter(nil, sink)
	w.Write(context.Background(), nil)
	w.Write(context.Background(), &collector.Result{Target: "edge-01"})

	_, ok := w.Latest("edge-01")
	assert.False(t, ok)
	assert.Empty(t, sink.samples)
}
