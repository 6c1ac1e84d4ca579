package requester

import (
	"fmt"
	"sync"

	"github.com/gosnmp/gosnmp"
)

// CycleError describes why an Execute call failed. It matches ErrTimeout or
// ErrTransport with errors.Is.
type CycleError struct {
	Code    int
	Timeout bool
	Err     error
}

func (e *CycleError) Error() string {
	if e.Timeout {
		return "poll cycle timed out"
	}
	if e.Err != nil {
		return fmt.Sprintf("poll cycle failed (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("poll cycle failed: %s", describeCode(e.Code))
}

func (e *CycleError) Unwrap() []error {
	if e.Timeout {
		return []error{ErrTimeout}
	}
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

func describeCode(code int) string {
	switch code {
	case ErrCodeTransport:
		return "transport"
	case ErrCodeRender:
		return "render"
	case ErrCodeEmpty:
		return "empty response"
	}
	if code >= 0 && code <= 255 {
		if name, ok := agentErrors[gosnmp.SNMPError(code)]; ok {
			return name
		}
	}
	return fmt.Sprintf("code %d", code)
}

var agentErrors = map[gosnmp.SNMPError]string{
	gosnmp.NoError:             "noError",
	gosnmp.TooBig:              "tooBig",
	gosnmp.NoSuchName:          "noSuchName",
	gosnmp.BadValue:            "badValue",
	gosnmp.ReadOnly:            "readOnly",
	gosnmp.GenErr:              "genErr",
	gosnmp.NoAccess:            "noAccess",
	gosnmp.WrongType:           "wrongType",
	gosnmp.WrongLength:         "wrongLength",
	gosnmp.WrongEncoding:       "wrongEncoding",
	gosnmp.WrongValue:          "wrongValue",
	gosnmp.NoCreation:          "noCreation",
	gosnmp.InconsistentValue:   "inconsistentValue",
	gosnmp.ResourceUnavailable: "resourceUnavailable",
	gosnmp.CommitFailed:        "commitFailed",
	gosnmp.UndoFailed:          "undoFailed",
	gosnmp.AuthorizationError:  "authorizationError",
	gosnmp.NotWritable:         "notWritable",
	gosnmp.InconsistentName:    "inconsistentName",
}

// cycleState is the per-Execute bookkeeping of a requester. It is reset at
// the start of every cycle so flags never leak from one cycle into the next.
// The error and timeout flags are sticky: once set the cycle has failed.
type cycleState struct {
	mu       sync.Mutex
	cursor   int
	failed   bool
	code     int
	err      error
	timeout  bool
	released bool
	done     chan struct{}
}

func (c *cycleState) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = 0
	c.failed = false
	c.code = 0
	c.err = nil
	c.timeout = false
	c.released = false
	c.done = make(chan struct{})
}

// wait returns the channel closed when the cycle is released
func (c *cycleState) wait() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// releaseLocked wakes the caller. Callers hold c.mu.
func (c *cycleState) releaseLocked() {
	if c.released {
		return
	}
	c.released = true
	close(c.done)
}

func (c *cycleState) failLocked(code int, err error) {
	if c.released {
		return
	}
	c.failed = true
	c.code = code
	c.err = err
	c.releaseLocked()
}

func (c *cycleState) fail(code int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(code, err)
}

func (c *cycleState) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.timeout = true
	c.releaseLocked()
}

func (c *cycleState) outcome() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout {
		return &CycleError{Timeout: true}
	}
	if c.failed {
		return &CycleError{Code: c.code, Err: c.err}
	}
	return nil
}

func (c *cycleState) position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *cycleState) flags() (failed bool, code int, timeout bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed, c.code, c.timeout
}
