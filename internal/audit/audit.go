package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened.
type Action string

const (
	ActionAuthorizationStarted Action = "authorization_started"
	ActionCodeExchange         Action = "code_exchange"
	ActionTokenRefresh         Action = "token_refresh"
	ActionTokenValidation      Action = "token_validation"
	ActionTokenRevocation      Action = "token_revocation"
	ActionDeviceFlowInitiated  Action = "device_flow_initiated"
	ActionDeviceFlowCompleted  Action = "device_flow_completed"
	ActionStateMismatch        Action = "state_mismatch"
	ActionCredentialsStored    Action = "credentials_stored"
	ActionLogout               Action = "logout"
)

// Outcome is the result of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is a single audit record. Details must never carry raw tokens,
// authorization codes, verifiers or client secrets.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	Outcome   Outcome           `json:"outcome"`
	Source    string            `json:"source"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives audit events. Implementations must not block the caller.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Record stamps an event and hands it to sink. A nil sink is ignored and a
// panicking sink is recovered.
func Record(ctx context.Context, sink Sink, action Action, outcome Outcome, source string, details map[string]string) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("audit sink panicked", "action", string(action), "panic", r)
		}
	}()

	sink.Record(ctx, Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Outcome:   outcome,
		Source:    source,
		Details:   details,
	})
}

// NopSink discards every event. It is the default when auditing is disabled.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Event) {}

// SlogSink writes events as structured log records.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink logging through logger (slog.Default() if nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Record implements Sink. Failures and state mismatches are logged at warn level.
func (s *SlogSink) Record(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure || event.Action == ActionStateMismatch {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("action", string(event.Action)),
		slog.String("outcome", string(event.Outcome)),
		slog.String("source", event.Source),
		slog.Time("timestamp", event.Timestamp),
	}
	for key, value := range event.Details {
		attrs = append(attrs, slog.String("meta_"+key, value))
	}

	s.logger.LogAttrs(ctx, level, "audit_event", attrs...)
}

// ChannelSink buffers events on a channel for an asynchronous consumer.
// When the buffer is full the event is dropped and counted.
type ChannelSink struct {
	events  chan Event
	dropped atomic.Int64
}

// NewChannelSink creates a ChannelSink with the given buffer size (minimum 1).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Record implements Sink.
func (s *ChannelSink) Record(_ context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the buffer.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// Record implements Sink. Each sink is isolated from the others' panics.
func (m MultiSink) Record(ctx context.Context, event Event) {
	for _, sink := range m {
		recordIsolated(ctx, sink, event)
	}
}

func recordIsolated(ctx context.Context, sink Sink, event Event) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink.Record(ctx, event)
}
