// Package collector drives the plan of one SNMP target: it opens the
// session, pings the agent, runs every requester of the plan once per cycle
// and turns the answered requests into samples.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nmslite/snmppoller/internal/plan"
	"github.com/nmslite/snmppoller/internal/request"
	"github.com/nmslite/snmppoller/internal/requester"
	"github.com/nmslite/snmppoller/internal/transport"
)

var (
	ErrNotStarted     = errors.New("collector not started")
	ErrAlreadyStarted = errors.New("collector already started")
)

// Dialer opens the session of a target
type Dialer func(cfg transport.Config, logger *slog.Logger) (requester.Session, error)

// DialTransport is the production Dialer
func DialTransport(cfg transport.Config, logger *slog.Logger) (requester.Session, error) {
	return transport.Dial(cfg, logger)
}

// Observer receives instrumentation callbacks. Implementations must be
// safe for concurrent use across collectors.
type Observer interface {
	ObserveRequester(target, group string, strategy requester.Strategy, elapsed time.Duration, err error)
	ObserveCycle(target string, elapsed time.Duration, success bool, samples int)
	ObserveFirstPass(target string, pending int, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveRequester(string, string, requester.Strategy, time.Duration, error) {}
func (noopObserver) ObserveCycle(string, time.Duration, bool, int)                            {}
func (noopObserver) ObserveFirstPass(string, int, error)                                      {}

// Collector polls a single target. Start and Collect may be called from
// different goroutines; cycles are serialized on an internal lock.
type Collector struct {
	name     string
	cfg      transport.Config
	plan     *plan.Plan
	pingOID  string
	dial     Dialer
	observer Observer
	logger   *slog.Logger

	mu      sync.Mutex
	session requester.Session

	started atomic.Bool
	pending atomic.Int32
	sysDesc atomic.Value
}

// Option configures a Collector
type Option func(*Collector)

func WithDialer(d Dialer) Option {
	return func(c *Collector) {
		if d != nil {
			c.dial = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Collector) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPingOID overrides the OID fetched by Start. Empty keeps sysDescr.
func WithPingOID(oid string) Option {
	return func(c *Collector) {
		if oid != "" {
			c.pingOID = oid
		}
	}
}

// New creates a collector for the target name reachable through cfg
func New(name string, cfg transport.Config, p *plan.Plan, opts ...Option) *Collector {
	c := &Collector{
		name:     name,
		cfg:      cfg,
		plan:     p,
		pingOID:  request.SysDescr,
		dial:     DialTransport,
		observer: noopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "collector", "target", name)
	c.pending.Store(int32(p.Pending()))
	return c
}

func (c *Collector) Name() string {
	return c.name
}

// Started reports whether the collector holds a live session
func (c *Collector) Started() bool {
	return c.started.Load()
}

// Pending returns the number of tables still awaiting discovery
func (c *Collector) Pending() int {
	return int(c.pending.Load())
}

// Groups returns the number of requesters currently in the plan
func (c *Collector) Groups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plan.Groups())
}

// Host returns the agent address
func (c *Collector) Host() string {
	return c.cfg.Host
}

// SysDescr returns the ping value recorded by the last successful Start
func (c *Collector) SysDescr() string {
	v, _ := c.sysDesc.Load().(string)
	return v
}

// Start opens the session and fetches the ping OID. When the ping fails the
// session is closed again and the collector stays stopped.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.Load() {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := c.dial(c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("open session to %s: %w", c.cfg.Host, err)
	}

	ping := requester.NewSequential([]*request.ValueRequest{request.New(c.pingOID, nil)}, c.logger)
	results, err := ping.Execute(session)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			c.logger.Debug("closing session after failed ping", "error", cerr)
		}
		return fmt.Errorf("ping %s: %w", c.name, err)
	}

	c.session = session
	c.started.Store(true)
	c.sysDesc.Store(results[0].ResultValue())
	c.logger.Info("collector started",
		"host", c.cfg.Host,
		"plan", c.plan.Version().String(),
		"groups", len(c.plan.Groups()),
		"pending_tables", c.plan.Pending(),
		"sys_descr", results[0].ResultValue(),
	)
	return nil
}

// Collect runs one cycle. Requesters execute strictly one after another;
// a failed requester contributes no samples and makes the cycle
// unsuccessful. After a successful cycle any pending tables are discovered
// and folded into the plan, so they are polled from the next cycle on.
// The returned error is reserved for cycles that could not run at all.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started.Load() {
		return nil, ErrNotStarted
	}

	res := &Result{
		CycleID: uuid.New(),
		Target:  c.name,
		Started: time.Now(),
	}
	logger := c.logger.With("cycle_id", res.CycleID.String())

	for _, key := range c.plan.Groups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, _ := c.plan.Group(key)

		start := time.Now()
		results, err := r.Execute(c.session)
		c.observer.ObserveRequester(c.name, key, r.Strategy(), time.Since(start), err)
		if err != nil {
			res.Failed = append(res.Failed, key)
			logger.Warn("requester failed", "group", key, "strategy", r.Strategy().String(), "error", err)
			if errors.Is(err, requester.ErrSessionClosed) {
				c.stopLocked()
			}
			continue
		}
		res.Samples = append(res.Samples, samples(c.name, res.CycleID, key, res.Started, results)...)
	}
	res.Duration = time.Since(res.Started)

	if res.Success() && c.plan.Pending() > 0 {
		res.FirstPass = true
		res.FirstPassErr = c.plan.ProcessFirstTime(c.session)
		c.pending.Store(int32(c.plan.Pending()))
		c.observer.ObserveFirstPass(c.name, c.plan.Pending(), res.FirstPassErr)
		if res.FirstPassErr != nil {
			logger.Warn("table discovery incomplete", "pending", c.plan.Pending(), "error", res.FirstPassErr)
		} else {
			logger.Info("table discovery complete", "groups", len(c.plan.Groups()))
		}
	}

	c.observer.ObserveCycle(c.name, res.Duration, res.Success(), len(res.Samples))
	logger.Debug("cycle completed",
		"samples", len(res.Samples),
		"failed_groups", len(res.Failed),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Stop closes the session. The collector can be started again.
func (c *Collector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Collector) stopLocked() error {
	if !c.started.Swap(false) {
		return nil
	}
	session := c.session
	c.session = nil
	c.logger.Info("collector stopped")
	if session == nil {
		return nil
	}
	return session.Close()
}

func samples(target string, cycle uuid.UUID, group string, at time.Time, results []*request.ValueRequest) []Sample {
	out := make([]Sample, 0, len(results))
	for _, vr := range results {
		r, ok := vr.Result()
		if !ok {
			continue
		}
		name := r.Name
		if name == "" {
			name = vr.OID()
		}
		out = append(out, Sample{
			Timestamp: at,
			Target:    target,
			CycleID:   cycle,
			Group:     group,
			OID:       name,
			Kind:      r.Kind,
			Value:     r.Value,
		})
	}
	return out
}
