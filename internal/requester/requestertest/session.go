package requestertest

import (
	"errors"
	"sync"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/requester"
)

// Fault selects how the session answers one message
type Fault int

const (
	// Answer delivers the agent's response
	Answer Fault = iota
	// Timeout delivers OnTimeout
	Timeout
	// AgentError delivers OnError with Session.ErrorStatus
	AgentError
	// Stale delivers a response carrying a wrong request id, then the
	// real response
	Stale
	// Empty delivers a response without varbinds
	Empty
	// Reject makes Send itself fail
	Reject
)

// Session answers messages from an Agent on a separate goroutine, the way a
// real transport delivers callbacks. It records every message and counts
// exclusivity violations: a handler registration or send while another
// exchange is still outstanding.
type Session struct {
	Agent *Agent
	// Script picks the fault for the n-th message (starting at 1). Nil
	// answers everything.
	Script      func(n int, msg requester.Message) Fault
	ErrorStatus gosnmp.SNMPError

	mu          sync.Mutex
	handler     requester.Handler
	closed      bool
	outstanding bool
	sent        []requester.Message
	violations  int
	wg          sync.WaitGroup
}

func NewSession(agent *Agent) *Session {
	return &Session{Agent: agent}
}

func (s *Session) Send(msg requester.Message) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	return s.SendWith(msg, h)
}

func (s *Session) SendWith(msg requester.Message, h requester.Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return requester.ErrSessionClosed
	}
	if h == nil {
		s.mu.Unlock()
		return errors.New("no handler registered")
	}
	if s.outstanding {
		s.violations++
		s.mu.Unlock()
		return requester.ErrSessionBusy
	}
	s.sent = append(s.sent, msg)
	n := len(s.sent)
	fault := Answer
	if s.Script != nil {
		fault = s.Script(n, msg)
	}
	if fault == Reject {
		s.mu.Unlock()
		return errors.New("send rejected")
	}
	s.outstanding = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.deliver(msg, h, fault)
	return nil
}

func (s *Session) deliver(msg requester.Message, h requester.Handler, fault Fault) {
	defer s.wg.Done()
	resp := requester.Response{RequestID: msg.RequestID, Variables: s.answer(msg)}

	// The exchange is over on the wire before the callback runs, so a
	// handler may send its follow-up from inside the callback.
	s.mu.Lock()
	s.outstanding = false
	s.mu.Unlock()

	switch fault {
	case Timeout:
		h.OnTimeout()
	case AgentError:
		h.OnError(int(s.ErrorStatus), errors.New("agent reported an error"))
	case Stale:
		h.OnData(requester.Response{RequestID: msg.RequestID + 1000, Variables: resp.Variables})
		h.OnData(resp)
	case Empty:
		h.OnData(requester.Response{RequestID: msg.RequestID})
	default:
		h.OnData(resp)
	}
}

func (s *Session) answer(msg requester.Message) []gosnmp.SnmpPDU {
	switch msg.Type {
	case gosnmp.GetRequest:
		out := make([]gosnmp.SnmpPDU, len(msg.OIDs))
		for i, oid := range msg.OIDs {
			out[i] = s.Agent.Get(oid)
		}
		return out
	case gosnmp.GetNextRequest:
		out := make([]gosnmp.SnmpPDU, len(msg.OIDs))
		for i, oid := range msg.OIDs {
			out[i] = s.Agent.GetNext(oid)
		}
		return out
	case gosnmp.GetBulkRequest:
		return s.Agent.GetBulk(msg.OIDs, msg.NonRepeaters, msg.MaxRepetitions)
	}
	return nil
}

func (s *Session) SetDefaultHandler(h requester.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outstanding {
		s.violations++
	}
	s.handler = h
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent returns a copy of every message accepted so far
func (s *Session) Sent() []requester.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]requester.Message(nil), s.sent...)
}

// Violations returns how many times single-exchange ownership was broken
func (s *Session) Violations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations
}

// Wait blocks until every delivery goroutine has returned
func (s *Session) Wait() {
	s.wg.Wait()
}
