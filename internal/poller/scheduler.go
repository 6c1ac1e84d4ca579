package poller

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmslite/snmppoller/internal/channels"
	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/globals"
)

// StateObserver is told whenever a target changes between up and down
type StateObserver interface {
	ObserveTargetState(target string, up bool)
}

type noopStateObserver struct{}

func (noopStateObserver) ObserveTargetState(string, bool) {}

// ScheduledTarget is one collector together with its scheduling state
type ScheduledTarget struct {
	Collector        *collector.Collector
	Interval         time.Duration
	NextPollDeadline time.Time
	heapIndex        int

	mu                  sync.Mutex
	consecutiveFailures int
	lastPollAt          time.Time
	lastError           string
	lastSamples         int

	inFlight atomic.Bool
}

// NewScheduledTarget wraps c for the scheduler. A zero interval falls back
// to one minute.
func NewScheduledTarget(c *collector.Collector, interval time.Duration) *ScheduledTarget {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ScheduledTarget{
		Collector: c,
		Interval:  interval,
		heapIndex: -1,
	}
}

// TargetStatus is a point-in-time view of a scheduled target
type TargetStatus struct {
	Name                string    `json:"name"`
	Host                string    `json:"host"`
	Started             bool      `json:"started"`
	Up                  bool      `json:"up"`
	SysDescr            string    `json:"sys_descr,omitempty"`
	PendingTables       int       `json:"pending_tables"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastPollAt          time.Time `json:"last_poll_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastSamples         int       `json:"last_samples"`
	NextPollAt          time.Time `json:"next_poll_at"`
	IntervalSeconds     int       `json:"interval_seconds"`
}

// PriorityQueue implements heap.Interface for *ScheduledTarget
type PriorityQueue []*ScheduledTarget

func (pq PriorityQueue) Len() int {
	return len(pq)
}

func (pq PriorityQueue) Less(i, j int) bool {
	// Earlier deadlines have higher priority
	return pq[i].NextPollDeadline.Before(pq[j].NextPollDeadline)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].heapIndex = i
	pq[j].heapIndex = j
}

func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*ScheduledTarget)
	item.heapIndex = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*pq = old[0 : n-1]
	return item
}

// Scheduler polls every target on its own interval. A target is never
// collected by two workers at once; if its previous cycle is still running
// when the deadline comes around, that tick is skipped.
type Scheduler struct {
	events   *channels.EventChannels
	writer   *ResultWriter
	observer StateObserver
	logger   *slog.Logger

	tickInterval  time.Duration
	downThreshold int

	heap    PriorityQueue
	heapMu  sync.Mutex
	targets map[string]*ScheduledTarget

	workerSem chan struct{}

	running bool
	runMu   sync.Mutex
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for the given targets. writer and
// observer may be nil.
func NewScheduler(
	targets []*ScheduledTarget,
	events *channels.EventChannels,
	writer *ResultWriter,
	observer StateObserver,
	logger *slog.Logger,
	cfg globals.SchedulerConfig,
) *Scheduler {
	if observer == nil {
		observer = noopStateObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.TickInterval()
	if tick <= 0 {
		tick = time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 16
	}
	threshold := cfg.DownThreshold
	if threshold <= 0 {
		threshold = 3
	}

	s := &Scheduler{
		events:        events,
		writer:        writer,
		observer:      observer,
		logger:        logger.With("component", "scheduler"),
		tickInterval:  tick,
		downThreshold: threshold,
		heap:          make(PriorityQueue, 0, len(targets)),
		targets:       make(map[string]*ScheduledTarget, len(targets)),
		workerSem:     make(chan struct{}, workers),
	}
	for _, st := range targets {
		s.targets[st.Collector.Name()] = st
	}
	return s
}

// Run starts the scheduler and blocks until ctx is cancelled. In-flight
// cycles are awaited and every collector is stopped before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("starting scheduler",
		"tick_interval", s.tickInterval,
		"workers", cap(s.workerSem),
		"down_threshold", s.downThreshold,
		"targets", len(s.targets),
	)

	s.initHeap()
	s.tick(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled, shutting down")
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

func (s *Scheduler) initHeap() {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	now := time.Now()
	s.heap = s.heap[:0]
	for _, st := range s.targets {
		if st.NextPollDeadline.IsZero() {
			st.NextPollDeadline = now
		}
		s.heap = append(s.heap, st)
	}
	heap.Init(&s.heap)

	s.logger.Info("scheduler heap initialized", "target_count", len(s.heap))
}

// tick starts a cycle for every target whose deadline has passed
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.heapMu.Lock()
	var due []*ScheduledTarget
	for len(s.heap) > 0 {
		st := s.heap[0]
		if st.NextPollDeadline.After(now) {
			break
		}
		popped := heap.Pop(&s.heap).(*ScheduledTarget)
		s.rescheduleUnlocked(popped, now)
		due = append(due, popped)
	}
	s.heapMu.Unlock()

	started := 0
	for _, st := range due {
		if !st.inFlight.CompareAndSwap(false, true) {
			s.logger.Debug("previous cycle still running, skipping",
				"target", st.Collector.Name(),
			)
			continue
		}
		started++
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer st.inFlight.Store(false)
			s.processTarget(ctx, st)
		}()
	}

	if started > 0 {
		s.logger.Debug("tick processed due targets", "count", started)
	}
}

// processTarget runs one cycle: start the collector if needed, collect,
// write the samples and update the target state
func (s *Scheduler) processTarget(ctx context.Context, st *ScheduledTarget) {
	c := st.Collector
	logger := s.logger.With("target", c.Name())

	select {
	case s.workerSem <- struct{}{}:
		defer func() { <-s.workerSem }()
	case <-ctx.Done():
		logger.Debug("context cancelled while waiting for a worker")
		return
	}

	if !c.Started() {
		if err := c.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleFailure(st, fmt.Sprintf("start: %v", err), 0)
			return
		}
	}

	res, err := c.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		s.handleFailure(st, fmt.Sprintf("collect: %v", err), 0)
		return
	}

	if s.writer != nil {
		s.writer.Write(ctx, res)
	}
	s.emitCycle(res)
	if res.FirstPass {
		s.emitFirstPass(c, res)
	}

	if res.Success() {
		s.handleSuccess(st, len(res.Samples))
		return
	}
	s.handleFailure(st, "failed groups: "+strings.Join(res.Failed, ", "), len(res.Samples))
}

func (s *Scheduler) handleSuccess(st *ScheduledTarget, samples int) {
	name := st.Collector.Name()

	st.mu.Lock()
	wasDown := st.consecutiveFailures >= s.downThreshold
	st.consecutiveFailures = 0
	st.lastPollAt = time.Now()
	st.lastError = ""
	st.lastSamples = samples
	st.mu.Unlock()

	s.logger.Debug("target poll succeeded", "target", name, "samples", samples)

	if !wasDown {
		return
	}
	s.observer.ObserveTargetState(name, true)
	select {
	case s.events.TargetState <- channels.TargetStateEvent{
		Target:    name,
		Host:      st.Collector.Host(),
		EventType: channels.TargetRecovered,
		Timestamp: time.Now(),
	}:
		s.logger.Info("target recovered", "target", name, "host", st.Collector.Host())
	default:
		s.logger.Warn("failed to emit target recovered event: channel full", "target", name)
	}
}

func (s *Scheduler) handleFailure(st *ScheduledTarget, reason string, samples int) {
	name := st.Collector.Name()

	st.mu.Lock()
	wasUp := st.consecutiveFailures < s.downThreshold
	st.consecutiveFailures++
	failures := st.consecutiveFailures
	st.lastPollAt = time.Now()
	st.lastError = reason
	st.lastSamples = samples
	st.mu.Unlock()

	s.logger.Warn("target poll failed",
		"target", name,
		"consecutive_failures", failures,
		"reason", reason,
	)

	if !wasUp || failures < s.downThreshold {
		return
	}
	s.observer.ObserveTargetState(name, false)
	select {
	case s.events.TargetState <- channels.TargetStateEvent{
		Target:    name,
		Host:      st.Collector.Host(),
		EventType: channels.TargetDown,
		Failures:  failures,
		Reason:    reason,
		Timestamp: time.Now(),
	}:
		s.logger.Warn("target is down",
			"target", name,
			"host", st.Collector.Host(),
			"threshold", s.downThreshold,
		)
	default:
		s.logger.Warn("failed to emit target down event: channel full", "target", name)
	}
}

func (s *Scheduler) emitCycle(res *collector.Result) {
	select {
	case s.events.CycleCompleted <- channels.CycleCompletedEvent{
		Target:   res.Target,
		CycleID:  res.CycleID,
		Success:  res.Success(),
		Samples:  len(res.Samples),
		Failed:   res.Failed,
		Duration: res.Duration,
	}:
	default:
		s.logger.Debug("cycle channel full, dropping event", "target", res.Target)
	}
}

func (s *Scheduler) emitFirstPass(c *collector.Collector, res *collector.Result) {
	ev := channels.FirstPassEvent{
		Target:    c.Name(),
		Pending:   c.Pending(),
		Groups:    c.Groups(),
		Timestamp: time.Now(),
	}
	if res.FirstPassErr != nil {
		ev.Error = res.FirstPassErr.Error()
	}
	select {
	case s.events.FirstPass <- ev:
	default:
		s.logger.Warn("failed to emit first pass event: channel full", "target", c.Name())
	}
}

// rescheduleUnlocked assumes heapMu is held
func (s *Scheduler) rescheduleUnlocked(st *ScheduledTarget, now time.Time) {
	st.NextPollDeadline = now.Add(st.Interval)
	heap.Push(&s.heap, st)
}

func (s *Scheduler) shutdown() {
	s.logger.Info("shutting down scheduler, waiting for workers to complete")
	s.wg.Wait()

	for _, st := range s.targets {
		if err := st.Collector.Stop(); err != nil {
			s.logger.Warn("failed to stop collector", "target", st.Collector.Name(), "error", err)
		}
	}

	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()

	s.logger.Info("scheduler shutdown complete")
}

// Targets returns the status of every target ordered by name
func (s *Scheduler) Targets() []TargetStatus {
	out := make([]TargetStatus, 0, len(s.targets))
	for _, st := range s.targets {
		out = append(out, s.status(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Target returns the status of a single target
func (s *Scheduler) Target(name string) (TargetStatus, bool) {
	st, ok := s.targets[name]
	if !ok {
		return TargetStatus{}, false
	}
	return s.status(st), true
}

func (s *Scheduler) status(st *ScheduledTarget) TargetStatus {
	c := st.Collector

	s.heapMu.Lock()
	next := st.NextPollDeadline
	s.heapMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	return TargetStatus{
		Name:                c.Name(),
		Host:                c.Host(),
		Started:             c.Started(),
		Up:                  st.consecutiveFailures < s.downThreshold,
		SysDescr:            c.SysDescr(),
		PendingTables:       c.Pending(),
		ConsecutiveFailures: st.consecutiveFailures,
		LastPollAt:          st.lastPollAt,
		LastError:           st.lastError,
		LastSamples:         st.lastSamples,
		NextPollAt:          next,
		IntervalSeconds:     int(st.Interval / time.Second),
	}
}
