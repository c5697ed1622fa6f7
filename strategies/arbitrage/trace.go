package arbitrage

import (
	"sync"

	"github.com/michaelpento.lv/cyclearb/types"
	"go.uber.org/zap"
)

// EventKind identifies a point in a detection pass at which a trace event is
// emitted.
type EventKind string

const (
	EventEdgeAdmitted        EventKind = "edge_admitted"
	EventEdgeRejected        EventKind = "edge_rejected"
	EventCycleFound          EventKind = "cycle_found"
	EventCycleDiscarded      EventKind = "cycle_discarded"
	EventOpportunityAccepted EventKind = "opportunity_accepted"
	EventOpportunityFiltered EventKind = "opportunity_filtered"
	EventPassCompleted       EventKind = "pass_completed"
	EventPassAborted         EventKind = "pass_aborted"
)

// Event is a structured trace record. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	PassID    string
	Pair      types.PairKey
	Path      []string
	Exchange  string
	Reason    string
	ProfitPct float64
}

// Tracer receives trace events. Events are emitted from a single goroutine in
// a deterministic order for a given snapshot.
type Tracer interface {
	Trace(Event)
}

// NopTracer discards all events.
type NopTracer struct{}

func (NopTracer) Trace(Event) {}

// ZapTracer writes events as debug log entries.
type ZapTracer struct {
	logger *zap.Logger
}

func NewZapTracer(logger *zap.Logger) *ZapTracer {
	return &ZapTracer{logger: logger}
}

func (t *ZapTracer) Trace(ev Event) {
	if ce := t.logger.Check(zap.DebugLevel, "Trace"); ce != nil {
		fields := []zap.Field{zap.String("event", string(ev.Kind))}
		if ev.PassID != "" {
			fields = append(fields, zap.String("pass_id", ev.PassID))
		}
		if ev.Pair.From != "" {
			fields = append(fields, zap.Stringer("pair", ev.Pair))
		}
		if len(ev.Path) > 0 {
			fields = append(fields, zap.Strings("path", ev.Path))
		}
		if ev.Exchange != "" {
			fields = append(fields, zap.String("exchange", ev.Exchange))
		}
		if ev.Reason != "" {
			fields = append(fields, zap.String("reason", ev.Reason))
		}
		if ev.Kind == EventOpportunityAccepted || ev.Kind == EventOpportunityFiltered {
			fields = append(fields, zap.Float64("profit_pct", ev.ProfitPct))
		}
		ce.Write(fields...)
	}
}

// TraceRecorder keeps every event in memory.
type TraceRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *TraceRecorder) Trace(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *TraceRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of one kind in emission order.
func (r *TraceRecorder) OfKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *TraceRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
