// Package transport implements requester.Session on top of gosnmp.
//
// gosnmp calls are synchronous; Session runs each one on its own goroutine
// and reports the outcome through the registered handler, so requesters
// see the same callback-driven delivery a native asynchronous stack gives.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"
	"github.com/nmslite/snmppoller/internal/requester"
)

// client is the subset of *gosnmp.GoSNMP a Session uses
type client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
	GetBulk(oids []string, nonRepeaters uint8, maxRepetitions uint32) (*gosnmp.SnmpPacket, error)
}

// Session is a single-exchange gosnmp session. A second Send while an
// exchange is outstanding fails with requester.ErrSessionBusy.
type Session struct {
	client  client
	version gosnmp.SnmpVersion
	closer  func() error
	logger  *slog.Logger

	mu       sync.Mutex
	handler  requester.Handler
	inFlight bool
	closed   bool
	wg       sync.WaitGroup
}

// Dial builds a gosnmp client for cfg and connects it. For UDP the connect
// only binds a socket; reachability is established by the first exchange.
func Dial(cfg Config, logger *slog.Logger) (*Session, error) {
	g, err := newGoSNMP(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure session for %s: %w", cfg.Host, err)
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Host, g.Port, err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	closer := func() error {
		if g.Conn == nil {
			return nil
		}
		return g.Conn.Close()
	}
	return newSession(g, cfg.Version, closer, logger.With("host", cfg.Host)), nil
}

func newSession(c client, version gosnmp.SnmpVersion, closer func() error, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:  c,
		version: version,
		closer:  closer,
		logger:  logger.With("component", "transport"),
	}
}

func (s *Session) Send(msg requester.Message) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return errors.New("no handler registered")
	}
	return s.SendWith(msg, h)
}

func (s *Session) SendWith(msg requester.Message, h requester.Handler) error {
	if msg.Type == gosnmp.GetBulkRequest && s.version == gosnmp.Version1 {
		return errors.New("GETBULK is not available on SNMP v1")
	}
	switch msg.Type {
	case gosnmp.GetRequest, gosnmp.GetNextRequest, gosnmp.GetBulkRequest:
	default:
		return fmt.Errorf("unsupported request type %v", msg.Type)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return requester.ErrSessionClosed
	}
	if s.inFlight {
		s.mu.Unlock()
		return requester.ErrSessionBusy
	}
	s.inFlight = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.exchange(msg, h)
	return nil
}

func (s *Session) exchange(msg requester.Message, h requester.Handler) {
	defer s.wg.Done()

	packet, err := s.do(msg)

	// Release before dispatching so the handler can send its follow-up
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	switch {
	case err != nil && isTimeout(err):
		s.logger.Debug("request timed out", "type", msg.Type, "oids", len(msg.OIDs))
		h.OnTimeout()
	case err != nil:
		h.OnError(requester.ErrCodeTransport, err)
	case packet.Error != gosnmp.NoError:
		h.OnError(int(packet.Error), fmt.Errorf("agent returned %v at index %d", packet.Error, packet.ErrorIndex))
	default:
		h.OnData(requester.Response{RequestID: msg.RequestID, Variables: packet.Variables})
	}
}

func (s *Session) do(msg requester.Message) (*gosnmp.SnmpPacket, error) {
	switch msg.Type {
	case gosnmp.GetNextRequest:
		return s.client.GetNext(msg.OIDs)
	case gosnmp.GetBulkRequest:
		return s.client.GetBulk(msg.OIDs, msg.NonRepeaters, msg.MaxRepetitions)
	default:
		return s.client.Get(msg.OIDs)
	}
}

func (s *Session) SetDefaultHandler(h requester.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Close waits for an outstanding exchange to be delivered and releases the
// socket. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isTimeout recognizes both socket deadlines and gosnmp's exhausted-retries
// error, which is only exposed as text
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
