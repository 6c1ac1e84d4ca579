package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nmslite/snmppoller/internal/collector"
	"github.com/nmslite/snmppoller/internal/poller"
	"github.com/nmslite/snmppoller/internal/request"
)

// TargetSource is implemented by *poller.Scheduler
type TargetSource interface {
	IsRunning() bool
	Targets() []poller.TargetStatus
	Target(name string) (poller.TargetStatus, bool)
}

// ValueSource is implemented by *poller.ResultWriter
type ValueSource interface {
	Latest(target string) ([]collector.Sample, bool)
}

// Value is the JSON form of a sample
type Value struct {
	OID       string    `json:"oid"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
	Number    *float64  `json:"number,omitempty"`
	Group     string    `json:"group"`
	CycleID   string    `json:"cycle_id"`
	Timestamp time.Time `json:"timestamp"`
}

type TargetHandler struct {
	targets TargetSource
	values  ValueSource
}

func NewTargetHandler(targets TargetSource, values ValueSource) *TargetHandler {
	return &TargetHandler{targets: targets, values: values}
}

// List handles GET /api/v1/targets
func (h *TargetHandler) List(w http.ResponseWriter, _ *http.Request) {
	targets := h.targets.Targets()
	sendListResponse(w, targets, len(targets))
}

// Get handles GET /api/v1/targets/{name}
func (h *TargetHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, ok := h.targets.Target(chi.URLParam(r, "name"))
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Target not found", nil)
		return
	}
	sendJSON(w, http.StatusOK, status)
}

// Values handles GET /api/v1/targets/{name}/values. The optional prefix
// query parameter restricts the result to OIDs under that subtree.
func (h *TargetHandler) Values(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.targets.Target(name); !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Target not found", nil)
		return
	}

	samples, _ := h.values.Latest(name)
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))

	out := make([]Value, 0, len(samples))
	for _, s := range samples {
		if prefix != "" && !request.HasPrefix(s.OID, prefix) && request.NormalizeOID(s.OID) != request.NormalizeOID(prefix) {
			continue
		}
		v := Value{
			OID:       s.OID,
			Kind:      s.Kind.String(),
			Value:     s.Text(),
			Group:     s.Group,
			CycleID:   s.CycleID.String(),
			Timestamp: s.Timestamp,
		}
		if n, ok := s.Number(); ok {
			v.Number = &n
		}
		out = append(out, v)
	}
	sendListResponse(w, out, len(out))
}
