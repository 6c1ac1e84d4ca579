package plan

import (
	"fmt"

	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/table"
)

// DeclarationKind tags a configuration entry
type DeclarationKind int

const (
	KindScalar DeclarationKind = iota
	KindSimpleTable
	KindComplexTable
)

func (k DeclarationKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSimpleTable:
		return "simple_table"
	case KindComplexTable:
		return "complex_table"
	}
	return "unknown"
}

// Declaration is one entry of a target's OID configuration. Exactly one of
// Request, Simple and Complex is set, matching Kind.
type Declaration struct {
	Kind    DeclarationKind
	Request *request.ValueRequest
	Simple  *table.SimpleIndexedTable
	Complex *table.ComplexIndexedTable
}

// Scalar declares a single value
func Scalar(oid string, renderer request.Renderer) Declaration {
	return Declaration{Kind: KindScalar, Request: request.New(oid, renderer)}
}

// SimpleTable declares a table discovered with one GET
func SimpleTable(t *table.SimpleIndexedTable) Declaration {
	return Declaration{Kind: KindSimpleTable, Simple: t}
}

// ComplexTable declares a table discovered with a walk
func ComplexTable(t *table.ComplexIndexedTable) Declaration {
	return Declaration{Kind: KindComplexTable, Complex: t}
}

func (d Declaration) validate() error {
	switch d.Kind {
	case KindScalar:
		if d.Request == nil || d.Request.OID() == "" {
			return fmt.Errorf("%w: scalar without oid", ErrInvalidDeclaration)
		}
	case KindSimpleTable:
		if d.Simple == nil || d.Simple.OID() == "" {
			return fmt.Errorf("%w: simple table without oid", ErrInvalidDeclaration)
		}
	case KindComplexTable:
		if d.Complex == nil || d.Complex.OID() == "" {
			return fmt.Errorf("%w: complex table without oid", ErrInvalidDeclaration)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidDeclaration, int(d.Kind))
	}
	return nil
}
