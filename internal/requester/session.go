// Package requester correlates asynchronous agent responses with the
// blocking, ordered poll requests issued by a collector.
//
// A Session delivers responses on its own goroutine through a Handler. Every
// Requester is its own Handler: Execute registers it as the session's
// default callback target, sends the first message and parks on a one-shot
// completion channel until a data, error or timeout callback releases it.
// Only one Requester may be in flight on a Session at a time; callers run
// the requesters of a plan strictly one after another.
package requester

import (
	"errors"

	"github.com/gosnmp/gosnmp"
)

// Message is one outbound exchange
type Message struct {
	Type gosnmp.PDUType
	// RequestID is echoed back in the matching Response. Sequential chains
	// use the cursor position; bulk exchanges use -1.
	RequestID      int
	OIDs           []string
	NonRepeaters   uint8
	MaxRepetitions uint32
}

// Response is the agent's answer to a Message
type Response struct {
	RequestID int
	Variables []gosnmp.SnmpPDU
}

// Handler receives the outcome of an exchange. Callbacks run on the
// session's delivery goroutine, never on the goroutine blocked in Execute.
type Handler interface {
	OnData(resp Response)
	OnError(code int, err error)
	OnTimeout()
}

// Session is the transport a requester drives. Implementations accept a
// single outstanding exchange and report ErrSessionBusy otherwise.
type Session interface {
	// Send delivers msg; the outcome goes to the default handler
	Send(msg Message) error
	// SendWith delivers msg; the outcome goes to h
	SendWith(msg Message, h Handler) error
	SetDefaultHandler(h Handler)
	Close() error
	IsClosed() bool
}

// Error codes reported through OnError that do not come from the agent.
// Agent error-status values (gosnmp.SNMPError) are passed through as-is.
const (
	ErrCodeTransport = -1
	ErrCodeRender    = -2
	ErrCodeEmpty     = -3
)

var (
	ErrTransport     = errors.New("transport error")
	ErrTimeout       = errors.New("request timed out")
	ErrNoRequests    = errors.New("requester has no requests")
	ErrSessionBusy   = errors.New("session already has an exchange in flight")
	ErrSessionClosed = errors.New("session is closed")
)
