package requester

import (
	"log/slog"

	"github.com/nmslite/snmppoller/internal/request"
)

// ExtendedBulkRequester is a bulk requester whose column template and
// repetition count come from table discovery. One GETBULK over the column
// OIDs with max-repetitions set to the row count returns the whole table.
type ExtendedBulkRequester struct {
	*BulkRequester

	rowCount int
	columns  []*request.ValueRequest
	// rows are the per-row requests discovery produced, keyed by path.
	// Returned varbinds reuse them so renderers chosen at discovery stick.
	rows  map[string]*request.ValueRequest
	order []*request.ValueRequest

	output  map[string]*request.ValueRequest
	results []*request.ValueRequest
}

// NewExtendedBulk creates a table requester with one prototype per column
// and rowCount repetitions. rows are the discovered per-row requests.
func NewExtendedBulk(rowCount int, columns, rows []*request.ValueRequest, logger *slog.Logger) *ExtendedBulkRequester {
	r := &ExtendedBulkRequester{
		BulkRequester: newBulk(columns, logger, ExtendedBulk),
		rowCount:      rowCount,
		columns:       columns,
		rows:          make(map[string]*request.ValueRequest, len(rows)),
		order:         rows,
	}
	for _, vr := range rows {
		r.rows[vr.OID()] = vr
	}
	return r
}

func (r *ExtendedBulkRequester) Strategy() Strategy {
	return ExtendedBulk
}

// MaxRepetition returns the discovered row count
func (r *ExtendedBulkRequester) MaxRepetition() uint32 {
	if r.rowCount < 0 {
		return 0
	}
	return uint32(r.rowCount)
}

// RequestList returns the column template
func (r *ExtendedBulkRequester) RequestList() []*request.ValueRequest {
	return r.columns
}

// Rows returns the per-row requests produced by discovery
func (r *ExtendedBulkRequester) Rows() []*request.ValueRequest {
	return r.order
}

// Execute fetches every column for the discovered row count. The output
// map is rebuilt each cycle so rows missing from this response never
// carry a previous cycle's values.
func (r *ExtendedBulkRequester) Execute(s Session) ([]*request.ValueRequest, error) {
	columns := r.RequestList()
	if len(columns) == 0 {
		return nil, ErrNoRequests
	}

	r.output = make(map[string]*request.ValueRequest, len(columns))
	r.results = make([]*request.ValueRequest, 0, len(columns)*max(r.rowCount, 1))

	msg := bulkMessage(columns, r.NonRepeaters(), r.MaxRepetition(), false)
	if err := r.exchange(s, r, msg); err != nil {
		return nil, err
	}
	return r.results, nil
}

// OnData assigns each varbind to the column it lies under. Varbinds that
// belong to no column, such as the first entry past the end of the table,
// and end-of-view markers are skipped.
func (r *ExtendedBulkRequester) OnData(resp Response) {
	st := &r.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.released {
		return
	}

	for _, vb := range resp.Variables {
		if endOfWalk(vb) {
			continue
		}
		name := request.NormalizeOID(vb.Name)
		column := r.columnFor(name)
		if column == nil {
			r.logger.Debug("varbind outside table columns", "oid", name)
			continue
		}
		if _, seen := r.output[name]; seen {
			continue
		}

		vr, ok := r.rows[name]
		if !ok {
			vr = request.New(name, column.Renderer())
		}
		if err := vr.SetResult(vb); err != nil {
			st.failLocked(ErrCodeRender, err)
			return
		}
		r.output[name] = vr
		r.results = append(r.results, vr)
		st.cursor++
	}
	st.releaseLocked()
}

func (r *ExtendedBulkRequester) columnFor(name string) *request.ValueRequest {
	for _, column := range r.columns {
		if request.HasPrefix(name, column.OID()) {
			return column
		}
	}
	return nil
}

// Results returns the row values of the last cycle in response order
func (r *ExtendedBulkRequester) Results() []*request.ValueRequest {
	return r.results
}

// Len returns the number of columns in the template
func (r *ExtendedBulkRequester) Len() int {
	return len(r.columns)
}
