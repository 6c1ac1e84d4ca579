// Package plan turns a static list of OID declarations into the requesters
// a collector executes every cycle, and folds table rows into them once
// the tables have been discovered against a live session.
package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/nmslite/snmppoller/internal/table"
)

// Version selects the fetch strategy family
type Version int

const (
	// V1 agents are polled one OID per exchange
	V1 Version = 1
	// V2 agents are bulk capable (SNMP v2c and v3)
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("version(%d)", int(v))
}

// GroupBulkGet is the key of the flat scalar group
const GroupBulkGet = "bulkget"

var (
	ErrInvalidVersion     = errors.New("invalid protocol version")
	ErrInvalidDeclaration = errors.New("invalid declaration")
	ErrDuplicateGroup     = errors.New("duplicate table declaration")
)

type simplePending struct {
	table     *table.SimpleIndexedTable
	discovery *requester.SequentialRequester
}

type complexPending struct {
	table     *table.ComplexIndexedTable
	discovery *requester.WalkRequester
}

// Plan owns every requester of one target. It is not safe for concurrent
// use; a collector drives it from a single goroutine.
type Plan struct {
	version        Version
	maxWalkRows    int
	maxRepetitions uint32
	logger         *slog.Logger

	groups map[string]requester.Requester
	order  []string

	pendingSimple  []simplePending
	pendingComplex []complexPending
}

// Option configures a Plan
type Option func(*Plan)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Plan) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxWalkRows caps complex table discovery walks
func WithMaxWalkRows(n int) Option {
	return func(p *Plan) {
		p.maxWalkRows = n
	}
}

// WithBulkRepetitions sets max-repetitions on the V2 scalar group. Zero
// keeps the single repetition a scalar needs.
func WithBulkRepetitions(n uint32) Option {
	return func(p *Plan) {
		p.maxRepetitions = n
	}
}

// Classify sorts declarations into the flat scalar group and the pending
// table discoveries. Under V1 bare scalars get the ".0" instance suffix and
// the scalar group is sequential; under V2 it is a single bulk exchange.
// Configuration errors are returned before anything is built.
func Classify(version Version, decls []Declaration, opts ...Option) (*Plan, error) {
	if version != V1 && version != V2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, int(version))
	}

	p := &Plan{
		version: version,
		logger:  slog.Default(),
		groups:  make(map[string]requester.Requester),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "plan", "version", version.String())

	var scalars []*request.ValueRequest
	tables := make(map[string]struct{})
	for i, d := range decls {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("declaration %d: %w", i, err)
		}

		switch d.Kind {
		case KindScalar:
			vr := d.Request
			if version == V1 && !strings.HasSuffix(vr.OID(), ".0") {
				vr.SetOID(vr.OID() + ".0")
			}
			scalars = append(scalars, vr)

		case KindSimpleTable:
			key := simpleGroup(d.Simple.OID())
			if _, dup := tables[key]; dup {
				return nil, fmt.Errorf("declaration %d: %w: %s", i, ErrDuplicateGroup, key)
			}
			tables[key] = struct{}{}
			p.logger.Info("simple indexed table declared", "oid", d.Simple.OID())
			discovery := requester.NewSequential(
				[]*request.ValueRequest{request.New(d.Simple.OID(), request.DefaultRenderer)},
				p.logger,
			)
			p.pendingSimple = append(p.pendingSimple, simplePending{table: d.Simple, discovery: discovery})

		case KindComplexTable:
			key := complexGroup(d.Complex.OID())
			if _, dup := tables[key]; dup {
				return nil, fmt.Errorf("declaration %d: %w: %s", i, ErrDuplicateGroup, key)
			}
			tables[key] = struct{}{}
			p.logger.Info("complex indexed table declared", "oid", d.Complex.OID())
			discovery := requester.NewWalk(d.Complex.OID(), request.DefaultRenderer, p.maxWalkRows, p.logger)
			p.pendingComplex = append(p.pendingComplex, complexPending{table: d.Complex, discovery: discovery})
		}
	}

	if len(scalars) > 0 {
		if version == V1 {
			p.logger.Debug("building sequential scalar group", "oids", len(scalars))
			p.register(GroupBulkGet, requester.NewSequential(scalars, p.logger))
		} else {
			p.logger.Debug("building bulk scalar group", "oids", len(scalars))
			bulk := requester.NewBulk(scalars, p.logger)
			if p.maxRepetitions > 0 {
				bulk.SetMaxRepetition(p.maxRepetitions)
			}
			p.register(GroupBulkGet, bulk)
		}
	}
	return p, nil
}

// ProcessFirstTime discovers every pending table over s and folds the rows
// in: under V1 they extend the sequential scalar group, under V2 each table
// becomes its own extended bulk group. Simple tables are processed before
// complex ones. The first failure aborts the pass; tables folded so far
// stay folded and the failed table and everything after it stay pending.
// Once nothing is pending this is a no-op.
func (p *Plan) ProcessFirstTime(s requester.Session) error {
	if p.Pending() == 0 {
		return nil
	}
	p.logger.Debug("extending table processing",
		"simple", len(p.pendingSimple),
		"complex", len(p.pendingComplex),
	)

	for len(p.pendingSimple) > 0 {
		entry := p.pendingSimple[0]
		results, err := entry.discovery.Execute(s)
		if err != nil {
			return fmt.Errorf("discover simple table %s: %w", entry.table.OID(), err)
		}
		rows, err := entry.table.ProcessFilters(results[0].ResultValue())
		if err != nil {
			return err
		}
		p.fold(simpleGroup(entry.table.OID()), entry.table, rows)
		p.pendingSimple = p.pendingSimple[1:]
	}
	p.pendingSimple = nil

	for len(p.pendingComplex) > 0 {
		entry := p.pendingComplex[0]
		results, err := entry.discovery.Execute(s)
		if err != nil {
			return fmt.Errorf("discover complex table %s: %w", entry.table.OID(), err)
		}
		rows, err := entry.table.ProcessFilters(results)
		if err != nil {
			return err
		}
		p.fold(complexGroup(entry.table.OID()), entry.table, rows)
		p.pendingComplex = p.pendingComplex[1:]
	}
	p.pendingComplex = nil
	return nil
}

// fold moves the discovered rows of tbl into their destination group
func (p *Plan) fold(key string, tbl table.IndexedTable, rows []*request.ValueRequest) {
	if p.version == V1 {
		flat, ok := p.groups[GroupBulkGet].(*requester.SequentialRequester)
		if !ok {
			flat = requester.NewSequential(nil, p.logger)
			p.register(GroupBulkGet, flat)
		}
		for _, vr := range rows {
			flat.Add(vr)
		}
		p.logger.Info("get set extended", "table", tbl.OID(), "oids", len(rows), "total", flat.Len())
		return
	}

	p.register(key, requester.NewExtendedBulk(tbl.Count(), tbl.Columns(), rows, p.logger.With("group", key)))
	p.logger.Info("table group registered",
		"group", key,
		"rows", tbl.Count(),
		"columns", len(tbl.Columns()),
	)
}

func (p *Plan) register(key string, r requester.Requester) {
	if _, ok := p.groups[key]; !ok {
		p.order = append(p.order, key)
	}
	p.groups[key] = r
}

// Requesters returns the registered requesters in registration order. The
// slice is fresh but the requesters are shared; callers must not run them
// concurrently.
func (p *Plan) Requesters() []requester.Requester {
	out := make([]requester.Requester, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.groups[key])
	}
	return out
}

// Group returns the requester registered under key
func (p *Plan) Group(key string) (requester.Requester, bool) {
	r, ok := p.groups[key]
	return r, ok
}

// Groups returns the registered group keys in registration order
func (p *Plan) Groups() []string {
	return append([]string(nil), p.order...)
}

// Pending returns the number of tables still awaiting discovery
func (p *Plan) Pending() int {
	return len(p.pendingSimple) + len(p.pendingComplex)
}

func (p *Plan) Version() Version {
	return p.version
}

func simpleGroup(oid string) string {
	return "simpletable:" + oid
}

func complexGroup(oid string) string {
	return "complextable:" + oid
}
