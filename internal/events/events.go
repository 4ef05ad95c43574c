// Package events carries structured notification facts out of the core.
// Formatting and delivery belong to the sinks.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	LeadCreated    Type = "lead.created"
	IntakeCreated  Type = "intake.created"
	StageChanged   Type = "stage.changed"
	RequestCreated Type = "request.created"
)

type Event struct {
	Type       Type           `json:"type"`
	EntityID   string         `json:"entityId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

const defaultPublishTimeout = 10 * time.Second

// Dispatcher fans events out to sinks in the background. Sink failures are
// logged and never reach the caller that emitted the event.
type Dispatcher struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sinks: sinks, logger: logger, timeout: defaultPublishTimeout}
}

func (d *Dispatcher) Emit(event Event) {
	if d == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	for _, sink := range d.sinks {
		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := sink.Publish(ctx, event); err != nil {
				d.logger.Warn("event sink publish failed",
					zap.String("sink", sink.Name()),
					zap.String("type", string(event.Type)),
					zap.String("entity_id", event.EntityID),
					zap.Error(err),
				)
			}
		}(sink)
	}
}

// Wait blocks until every in-flight publish has returned.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, event Event) error {
	s.logger.Info("event",
		zap.String("type", string(event.Type)),
		zap.String("entity_id", event.EntityID),
		zap.Time("occurred_at", event.OccurredAt),
		zap.Any("data", event.Data),
	)
	return nil
}
