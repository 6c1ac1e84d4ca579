package requester

import (
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/request"
)

// DefaultMaxWalkRows caps a walk whose agent never leaves the subtree
const DefaultMaxWalkRows = 10000

// WalkRequester traverses every instance under a root OID with a GETNEXT
// chain. Each response is recorded as a request and the next GETNEXT is
// issued from its OID.
type WalkRequester struct {
	base
	root     string
	renderer request.Renderer
	maxRows  int

	found []*request.ValueRequest
}

// NewWalk creates a walk under root. A nil renderer selects the default
// renderer and maxRows <= 0 selects DefaultMaxWalkRows.
func NewWalk(root string, renderer request.Renderer, maxRows int, logger *slog.Logger) *WalkRequester {
	if maxRows <= 0 {
		maxRows = DefaultMaxWalkRows
	}
	if renderer == nil {
		renderer = request.DefaultRenderer
	}
	r := &WalkRequester{
		base:     newBase(logger, Walk),
		root:     request.NormalizeOID(root),
		renderer: renderer,
		maxRows:  maxRows,
	}
	r.logger = r.logger.With("root", r.root)
	return r
}

func (r *WalkRequester) Strategy() Strategy {
	return Walk
}

// Root returns the subtree being walked
func (r *WalkRequester) Root() string {
	return r.root
}

// Execute walks the subtree and returns one request per instance found
func (r *WalkRequester) Execute(s Session) ([]*request.ValueRequest, error) {
	if r.root == "" {
		return nil, ErrNoRequests
	}
	r.found = nil
	if err := r.exchange(s, r, r.message(r.root, 0)); err != nil {
		return nil, err
	}
	return r.found, nil
}

// OnData records the instance returned for the cursor and continues the
// walk from it. The walk ends once the agent answers outside the root.
func (r *WalkRequester) OnData(resp Response) {
	st := &r.state
	st.mu.Lock()
	if st.released {
		st.mu.Unlock()
		return
	}
	if resp.RequestID != st.cursor {
		cursor := st.cursor
		st.mu.Unlock()
		r.logger.Debug("dropping uncorrelated response",
			"request_id", resp.RequestID,
			"cursor", cursor,
		)
		return
	}
	if len(resp.Variables) == 0 {
		st.failLocked(ErrCodeEmpty, fmt.Errorf("empty walk response under %s", r.root))
		st.mu.Unlock()
		return
	}

	vb := resp.Variables[0]
	name := request.NormalizeOID(vb.Name)
	if endOfWalk(vb) || !request.HasPrefix(name, r.root) {
		st.releaseLocked()
		st.mu.Unlock()
		return
	}

	vr := request.New(name, r.renderer)
	if err := vr.SetResult(vb); err != nil {
		st.failLocked(ErrCodeRender, err)
		st.mu.Unlock()
		return
	}
	r.found = append(r.found, vr)
	st.cursor++

	if len(r.found) >= r.maxRows {
		r.logger.Warn("walk stopped at row cap", "max_rows", r.maxRows)
		st.releaseLocked()
		st.mu.Unlock()
		return
	}
	next := r.message(name, st.cursor)
	st.mu.Unlock()

	r.sendNext(next)
}

func (r *WalkRequester) message(from string, id int) Message {
	return Message{
		Type:      gosnmp.GetNextRequest,
		RequestID: id,
		OIDs:      []string{from},
	}
}

// Results returns the instances found by the last walk
func (r *WalkRequester) Results() []*request.ValueRequest {
	return r.found
}

func endOfWalk(vb gosnmp.SnmpPDU) bool {
	switch vb.Type {
	case gosnmp.EndOfMibView, gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return true
	}
	return false
}
