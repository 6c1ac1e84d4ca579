package requester

import (
	"log/slog"
	"time"

	"github.com/nmslite/snmppoller/internal/request"
)

// Strategy tags the fetch strategy a Requester implements
type Strategy int

const (
	Sequential Strategy = iota
	Bulk
	ExtendedBulk
	Walk
)

func (s Strategy) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Bulk:
		return "bulk"
	case ExtendedBulk:
		return "extended_bulk"
	case Walk:
		return "walk"
	}
	return "unknown"
}

// Requester issues the exchanges of one poll cycle and collects the typed
// results. Execute blocks until the cycle completes, fails or times out;
// on failure it returns a nil slice and a *CycleError.
type Requester interface {
	Handler

	Strategy() Strategy
	Execute(s Session) ([]*request.ValueRequest, error)
	// Results returns the requests answered by the last successful cycle
	Results() []*request.ValueRequest
	// Cursor returns the position of the in-flight or last cycle
	Cursor() int
	IsError() bool
	ErrorCode() int
	IsTimeout() bool
}

// base carries what every strategy shares: the cycle state, the session of
// the cycle in flight and a logger.
type base struct {
	state   cycleState
	session Session
	logger  *slog.Logger
}

func newBase(logger *slog.Logger, strategy Strategy) base {
	if logger == nil {
		logger = slog.Default()
	}
	b := base{logger: logger.With("component", "requester", "strategy", strategy.String())}
	b.state.done = make(chan struct{})
	return b
}

// exchange runs one cycle: it registers h as the session's callback
// target, sends first and parks until a callback releases the cycle.
func (b *base) exchange(s Session, h Handler, first Message) error {
	if s.IsClosed() {
		return ErrSessionClosed
	}

	b.state.reset()
	b.session = s
	s.SetDefaultHandler(h)

	start := time.Now()
	if err := s.Send(first); err != nil {
		b.state.fail(ErrCodeTransport, err)
	}
	<-b.state.wait()

	err := b.state.outcome()
	if err != nil {
		failed, code, timeout := b.state.flags()
		b.logger.Warn("exchange failed",
			"error", failed,
			"code", code,
			"timeout", timeout,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	b.logger.Debug("exchange completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// OnError marks the cycle failed and releases the caller
func (b *base) OnError(code int, err error) {
	b.state.fail(code, err)
}

// OnTimeout marks the cycle timed out and releases the caller
func (b *base) OnTimeout() {
	b.state.expire()
}

func (b *base) Cursor() int {
	return b.state.position()
}

func (b *base) IsError() bool {
	failed, _, _ := b.state.flags()
	return failed
}

func (b *base) ErrorCode() int {
	_, code, _ := b.state.flags()
	return code
}

func (b *base) IsTimeout() bool {
	_, _, timeout := b.state.flags()
	return timeout
}

// sendNext issues a follow-up message from a callback. A send failure
// ends the cycle.
func (b *base) sendNext(msg Message) {
	if err := b.session.Send(msg); err != nil {
		b.state.fail(ErrCodeTransport, err)
	}
}
