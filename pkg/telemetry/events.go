package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/engine"
)

// EventSubscriber receives events from an EventBus.
type EventSubscriber interface {
	Publish(ctx context.Context, event *engine.Event) error
}

// SubscriberFunc adapts a function to EventSubscriber.
type SubscriberFunc func(ctx context.Context, event *engine.Event) error

// Publish calls f.
func (f SubscriberFunc) Publish(ctx context.Context, event *engine.Event) error {
	return f(ctx, event)
}

// EventFilter determines if an event should be delivered.
type EventFilter func(event *engine.Event) bool

// EventBus fans run events out to its subscribers. Delivery is synchronous:
// when Publish returns, every subscriber has seen the event. It implements
// engine.EventPublisher.
type EventBus struct {
	subscribers []subscriberEntry
	filters     []EventFilter
	mu          sync.RWMutex
}

type subscriberEntry struct {
	name       string
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe adds a subscriber. A nil filter receives every event.
func (b *EventBus) Subscribe(name string, sub EventSubscriber, filter EventFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriberEntry{name: name, subscriber: sub, filter: filter})
}

// AddFilter adds a filter applied before any subscriber.
func (b *EventBus) AddFilter(filter EventFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, filter)
}

// Publish delivers event to every matching subscriber. A failing subscriber
// does not stop delivery to the others; their errors are joined.
func (b *EventBus) Publish(ctx context.Context, event *engine.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, filter := range b.filters {
		if !filter(event) {
			return nil
		}
	}

	var errs []error
	for _, entry := range b.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		if err := entry.subscriber.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %s: %w", entry.name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

var levelRank = map[string]int{
	"debug":   0,
	"info":    1,
	"warning": 2,
	"error":   3,
}

// MinLevel passes events at or above level.
func MinLevel(level string) EventFilter {
	min := levelRank[level]
	return func(event *engine.Event) bool {
		return levelRank[event.Level] >= min
	}
}

// OfType passes events of the given types.
func OfType(types ...engine.EventType) EventFilter {
	set := make(map[engine.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(event *engine.Event) bool {
		_, ok := set[event.Type]
		return ok
	}
}

// LogSink writes events to a logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging under the "events" component.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "events").Logger()}
}

// Publish logs the event at its level.
func (s *LogSink) Publish(_ context.Context, event *engine.Event) error {
	var e *zerolog.Event
	switch event.Level {
	case "error":
		e = s.logger.Error()
	case "warning":
		e = s.logger.Warn()
	case "debug":
		e = s.logger.Debug()
	default:
		e = s.logger.Info()
	}

	e = e.Str("event", string(event.Type)).Str("run_id", event.RunID)
	if event.Step != "" {
		e = e.Str("step", event.Step)
	}
	if event.Role != "" {
		e = e.Str("role", string(event.Role))
	}
	if len(event.Details) > 0 {
		e = e.Fields(event.Details)
	}
	e.Msg(event.Message)
	return nil
}
