package requester

import (
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
)

// SequentialRequester polls its requests one OID at a time: each response
// triggers the GET for the next request until the cursor reaches the end.
type SequentialRequester struct {
	base
	requests []*request.ValueRequest
}

// NewSequential creates a one-OID-at-a-time GET chain over requests
func NewSequential(requests []*request.ValueRequest, logger *slog.Logger) *SequentialRequester {
	return &SequentialRequester{
		base:     newBase(logger, Sequential),
		requests: requests,
	}
}

func (r *SequentialRequester) Strategy() Strategy {
	return Sequential
}

// Execute runs the GET chain and returns every request on success
func (r *SequentialRequester) Execute(s Session) ([]*request.ValueRequest, error) {
	if len(r.requests) == 0 {
		return nil, ErrNoRequests
	}
	if err := r.exchange(s, r, r.message(0)); err != nil {
		return nil, err
	}
	return r.requests, nil
}

// OnData stores the value for the request under the cursor and sends the
// next GET, or releases the caller once the chain is exhausted. A response
// whose echoed id is not the cursor is dropped.
func (r *SequentialRequester) OnData(resp Response) {
	st := &r.state
	st.mu.Lock()
	if st.released {
		st.mu.Unlock()
		return
	}
	if !r.isKeyValid(resp.RequestID) {
		cursor := st.cursor
		st.mu.Unlock()
		r.logger.Debug("dropping uncorrelated response",
			"request_id", resp.RequestID,
			"cursor", cursor,
		)
		return
	}
	if len(resp.Variables) == 0 {
		st.failLocked(ErrCodeEmpty, fmt.Errorf("empty response for %s", r.requests[st.cursor].OID()))
		st.mu.Unlock()
		return
	}
	if err := r.requests[st.cursor].SetResult(resp.Variables[0]); err != nil {
		st.failLocked(ErrCodeRender, err)
		st.mu.Unlock()
		return
	}

	next, more := r.nextRequestLocked()
	if !more {
		st.releaseLocked()
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	r.sendNext(next)
}

// isKeyValid reports whether an echoed request id addresses the cursor.
// Callers hold the state lock.
func (r *SequentialRequester) isKeyValid(key int) bool {
	return key == r.state.cursor
}

// nextRequestLocked advances the cursor and builds the GET for the new
// position. It reports false once every request has been answered.
func (r *SequentialRequester) nextRequestLocked() (Message, bool) {
	r.state.cursor++
	if r.state.cursor >= len(r.requests) {
		return Message{}, false
	}
	return r.message(r.state.cursor), true
}

func (r *SequentialRequester) message(index int) Message {
	return Message{
		Type:      gosnmp.GetRequest,
		RequestID: index,
		OIDs:      []string{r.requests[index].OID()},
	}
}

// Add appends a request to the chain. It must not be called while a cycle
// is in flight.
func (r *SequentialRequester) Add(vr *request.ValueRequest) {
	r.requests = append(r.requests, vr)
}

// Requests returns every request of the chain in polling order
func (r *SequentialRequester) Requests() []*request.ValueRequest {
	return r.requests
}

// Results returns every request of the chain. Values are only current
// after a successful Execute.
func (r *SequentialRequester) Results() []*request.ValueRequest {
	return r.requests
}

// Len returns the number of requests in the chain
func (r *SequentialRequester) Len() int {
	return len(r.requests)
}
