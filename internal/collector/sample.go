package collector

import (
	"time"

	"github.com/google/uuid"
	"github.com/nmslite/snmppoller/internal/request"
)

// Sample is one rendered value of one cycle
type Sample struct {
	Timestamp time.Time
	Target    string
	CycleID   uuid.UUID
	Group     string
	OID       string
	Kind      request.Kind
	Value     any
}

// Text returns the value formatted for display and storage
func (s Sample) Text() string {
	return request.FormatValue(s.Value)
}

// Number returns the value as a float when the kind is numeric
func (s Sample) Number() (float64, bool) {
	if !s.Kind.Numeric() {
		return 0, false
	}
	return request.Float(s.Value)
}

// Result is the outcome of one Collect call
type Result struct {
	CycleID  uuid.UUID
	Target   string
	Started  time.Time
	Duration time.Duration
	Samples  []Sample
	// Failed lists the group keys whose requester failed this cycle
	Failed []string
	// FirstPass is set when table discovery ran after this cycle;
	// FirstPassErr holds its failure
	FirstPass    bool
	FirstPassErr error
}

// Success reports whether every requester of the cycle succeeded
func (r *Result) Success() bool {
	return len(r.Failed) == 0
}
