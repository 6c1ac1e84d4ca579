// Package request holds the addressable unit of a poll: one OID paired with
// the renderer that turns the agent's raw varbind into a typed value.
package request

import (
	"fmt"
	"sync"

	"github.com/gosnmp/gosnmp"
)

// Result is the last value stored on a ValueRequest
type Result struct {
	// Name is the OID the agent actually answered with. For bulk exchanges
	// it may differ from the requested path by an instance suffix.
	Name  string
	Value any
	Kind  Kind
}

// ValueRequest is a single OID to poll together with its renderer.
// A ValueRequest is owned by exactly one requester at a time; its result is
// overwritten once per poll cycle and never cleared.
type ValueRequest struct {
	oid      string
	renderer Renderer

	mu     sync.RWMutex
	result *Result
}

// New creates a ValueRequest for oid. A nil renderer selects DefaultRenderer.
func New(oid string, renderer Renderer) *ValueRequest {
	if renderer == nil {
		renderer = DefaultRenderer
	}
	return &ValueRequest{
		oid:      NormalizeOID(oid),
		renderer: renderer,
	}
}

// OID returns the configured path in dotted form without a leading dot
func (v *ValueRequest) OID() string {
	return v.oid
}

// SetOID replaces the configured path. Only used while a plan is being built.
func (v *ValueRequest) SetOID(oid string) {
	v.oid = NormalizeOID(oid)
}

// Renderer returns the renderer bound to this request
func (v *ValueRequest) Renderer() Renderer {
	return v.renderer
}

// SetResult renders pdu and stores the typed value. On a render failure
// the previous result is left untouched and the error is returned to the
// caller, which owns the failure.
func (v *ValueRequest) SetResult(pdu gosnmp.SnmpPDU) error {
	value, kind, err := v.renderer(pdu)
	if err != nil {
		return fmt.Errorf("render %s: %w", v.oid, err)
	}

	v.mu.Lock()
	v.result = &Result{
		Name:  NormalizeOID(pdu.Name),
		Value: value,
		Kind:  kind,
	}
	v.mu.Unlock()
	return nil
}

// Result returns the last stored result and whether one exists
func (v *ValueRequest) Result() (Result, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.result == nil {
		return Result{}, false
	}
	return *v.result, true
}

// ResultType returns the kind of the last stored value, KindUnknown if none
func (v *ValueRequest) ResultType() Kind {
	r, ok := v.Result()
	if !ok {
		return KindUnknown
	}
	return r.Kind
}

// ResultValue returns the last stored value formatted as a string
func (v *ValueRequest) ResultValue() string {
	r, ok := v.Result()
	if !ok {
		return ""
	}
	return FormatValue(r.Value)
}

func (v *ValueRequest) String() string {
	return v.oid
}
