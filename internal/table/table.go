// Package table declares indexed tables whose rows are only known after a
// discovery exchange against the agent.
//
// A simple table is discovered with one GET against an index-bearing scalar
// (ifNumber.0, say); the returned value is fed to its filter. A complex
// table is discovered by walking an OID subtree; every walked instance is
// fed to its filter. Either way the filter expands the column template into
// one request per column and row.
package table

import (
	"errors"
	"fmt"

	"github.com/nmslite/snmppoller/internal/request"
)

// Kind distinguishes the two discovery modes
type Kind int

const (
	Simple Kind = iota
	Complex
)

func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Complex:
		return "complex"
	}
	return "unknown"
}

var (
	ErrNoColumns   = errors.New("table has no columns")
	ErrInvalidRows = errors.New("invalid table index value")
)

// IndexedTable is what the plan needs to know about a table regardless of
// how it is discovered
type IndexedTable interface {
	Kind() Kind
	// OID is the discovery target: the index scalar or the walked subtree
	OID() string
	// Columns is the per-row template
	Columns() []*request.ValueRequest
	// Count is the row count established by the last expansion
	Count() int
}

// SimpleFilter expands the value of the index scalar into per-row requests
type SimpleFilter func(value string, columns []*request.ValueRequest) ([]*request.ValueRequest, error)

// ComplexFilter expands the instances found by a walk into per-row requests
type ComplexFilter func(root string, walked, columns []*request.ValueRequest) ([]*request.ValueRequest, error)

// SimpleIndexedTable is discovered with a single GET
type SimpleIndexedTable struct {
	oid     string
	columns []*request.ValueRequest
	filter  SimpleFilter
	count   int
}

// NewSimple declares a table discovered through the scalar at oid. A nil
// filter selects CountExpansion.
func NewSimple(oid string, columns []*request.ValueRequest, filter SimpleFilter) (*SimpleIndexedTable, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("simple table %s: %w", oid, ErrNoColumns)
	}
	if filter == nil {
		filter = CountExpansion
	}
	return &SimpleIndexedTable{
		oid:     request.NormalizeOID(oid),
		columns: columns,
		filter:  filter,
	}, nil
}

func (t *SimpleIndexedTable) Kind() Kind                       { return Simple }
func (t *SimpleIndexedTable) OID() string                      { return t.oid }
func (t *SimpleIndexedTable) Columns() []*request.ValueRequest { return t.columns }
func (t *SimpleIndexedTable) Count() int                       { return t.count }

// ProcessFilters runs the filter over the discovered value and records the
// resulting row count
func (t *SimpleIndexedTable) ProcessFilters(value string) ([]*request.ValueRequest, error) {
	rows, err := t.filter(value, t.columns)
	if err != nil {
		return nil, fmt.Errorf("expand simple table %s: %w", t.oid, err)
	}
	t.count = rowCount(rows, t.columns)
	return rows, nil
}

// ComplexIndexedTable is discovered by walking a subtree
type ComplexIndexedTable struct {
	oid     string
	columns []*request.ValueRequest
	filter  ComplexFilter
	count   int
}

// NewComplex declares a table discovered by walking oid. A nil filter
// selects IndexExpansion.
func NewComplex(oid string, columns []*request.ValueRequest, filter ComplexFilter) (*ComplexIndexedTable, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("complex table %s: %w", oid, ErrNoColumns)
	}
	if filter == nil {
		filter = IndexExpansion
	}
	return &ComplexIndexedTable{
		oid:     request.NormalizeOID(oid),
		columns: columns,
		filter:  filter,
	}, nil
}

func (t *ComplexIndexedTable) Kind() Kind                       { return Complex }
func (t *ComplexIndexedTable) OID() string                      { return t.oid }
func (t *ComplexIndexedTable) Columns() []*request.ValueRequest { return t.columns }
func (t *ComplexIndexedTable) Count() int                       { return t.count }

// ProcessFilters runs the filter over every walked instance and records
// the resulting row count
func (t *ComplexIndexedTable) ProcessFilters(walked []*request.ValueRequest) ([]*request.ValueRequest, error) {
	rows, err := t.filter(t.oid, walked, t.columns)
	if err != nil {
		return nil, fmt.Errorf("expand complex table %s: %w", t.oid, err)
	}
	t.count = rowCount(rows, t.columns)
	return rows, nil
}

func rowCount(rows, columns []*request.ValueRequest) int {
	if len(columns) == 0 {
		return 0
	}
	return len(rows) / len(columns)
}
