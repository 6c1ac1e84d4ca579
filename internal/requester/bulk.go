package requester

import (
	"log/slog"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
)

const bulkRequestID = -1

// BulkRequester fetches all of its requests in a single GETBULK exchange
type BulkRequester struct {
	base
	requests       []*request.ValueRequest
	nonRepeaters   uint8
	maxRepetitions uint32

	// oidMap indexes the requests by path for the cycle in flight
	oidMap   map[string]*request.ValueRequest
	answered []*request.ValueRequest
}

// NewBulk creates a single-exchange requester with one repetition
func NewBulk(requests []*request.ValueRequest, logger *slog.Logger) *BulkRequester {
	return newBulk(requests, logger, Bulk)
}

func newBulk(requests []*request.ValueRequest, logger *slog.Logger, strategy Strategy) *BulkRequester {
	return &BulkRequester{
		base:           newBase(logger, strategy),
		requests:       requests,
		maxRepetitions: 1,
	}
}

func (r *BulkRequester) Strategy() Strategy {
	return Bulk
}

// MaxRepetition returns how many repeated value groups the agent is asked for
func (r *BulkRequester) MaxRepetition() uint32 {
	return r.maxRepetitions
}

// SetMaxRepetition overrides the repetition count
func (r *BulkRequester) SetMaxRepetition(n uint32) {
	r.maxRepetitions = n
}

// NonRepeaters returns the number of leading varbinds fetched only once
func (r *BulkRequester) NonRepeaters() uint8 {
	return r.nonRepeaters
}

// SetNonRepeaters sets the number of leading varbinds fetched only once
func (r *BulkRequester) SetNonRepeaters(n uint8) {
	r.nonRepeaters = n
}

// RequestList returns the requests sent in the exchange
func (r *BulkRequester) RequestList() []*request.ValueRequest {
	return r.requests
}

// Execute sends one GETBULK for every request and returns the requests
// the agent answered
func (r *BulkRequester) Execute(s Session) ([]*request.ValueRequest, error) {
	if len(r.requests) == 0 {
		return nil, ErrNoRequests
	}

	r.oidMap = make(map[string]*request.ValueRequest, len(r.requests))
	r.answered = make([]*request.ValueRequest, 0, len(r.requests))
	for _, vr := range r.requests {
		r.oidMap[vr.OID()] = vr
	}

	msg := bulkMessage(r.requests, r.nonRepeaters, r.MaxRepetition(), true)
	if err := r.exchange(s, r, msg); err != nil {
		return nil, err
	}
	return r.answered, nil
}

// OnData writes every returned varbind into the request registered under
// its path. A name that matches nothing is retried without the ".0"
// instance suffix; anything still unmatched is dropped.
func (r *BulkRequester) OnData(resp Response) {
	st := &r.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return
	}

	for _, vb := range resp.Variables {
		vr := r.lookup(vb.Name)
		if vr == nil {
			r.logger.Debug("no request for returned oid", "oid", vb.Name)
			continue
		}
		if err := vr.SetResult(vb); err != nil {
			st.failLocked(ErrCodeRender, err)
			return
		}
		r.answered = append(r.answered, vr)
		st.cursor++
	}
	st.releaseLocked()
}

func (r *BulkRequester) lookup(name string) *request.ValueRequest {
	name = request.NormalizeOID(name)
	if vr, ok := r.oidMap[name]; ok {
		delete(r.oidMap, name)
		return vr
	}
	if trimmed, ok := request.TrimInstance(name); ok {
		if vr, ok := r.oidMap[trimmed]; ok {
			r.logger.Debug("matched oid without instance suffix", "oid", name)
			delete(r.oidMap, trimmed)
			return vr
		}
	}
	return nil
}

// Results returns the requests answered by the last cycle, in response order
func (r *BulkRequester) Results() []*request.ValueRequest {
	return r.answered
}

// Len returns the number of configured requests
func (r *BulkRequester) Len() int {
	return len(r.requests)
}

// bulkMessage builds a GETBULK over requests. GETBULK walks forward from
// each varbind, so a scalar path ending in ".0" is sent without it when
// trimScalars is set; the agent then answers with the instance itself.
func bulkMessage(requests []*request.ValueRequest, nonRepeaters uint8, maxRepetitions uint32, trimScalars bool) Message {
	oids := make([]string, len(requests))
	for i, vr := range requests {
		oid := vr.OID()
		if trimScalars {
			oid, _ = request.TrimInstance(oid)
		}
		oids[i] = oid
	}
	return Message{
		Type:           gosnmp.GetBulkRequest,
		RequestID:      bulkRequestID,
		OIDs:           oids,
		NonRepeaters:   nonRepeaters,
		MaxRepetitions: maxRepetitions,
	}
}
