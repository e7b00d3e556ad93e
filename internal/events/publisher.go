// Package events publishes document lifecycle events to an external bus.
// Publication is best-effort: a failed publish is logged by the implementation
// and must never block or fail the workflow that triggered it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docvault/internal/model"
)

// ServiceName is the envelope service identifier.
const ServiceName = "docvault"

// Publisher delivers lifecycle events. A nil routingKey defaults to
// "document.{eventType}". A non-nil error means delivery was not guaranteed;
// callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any, routingKey string) error
	DocumentUploaded(ctx context.Context, e model.UploadedEvent) error
	DocumentScanned(ctx context.Context, e model.ScannedEvent) error
	DocumentDeleted(ctx context.Context, e model.DeletedEvent) error
	DocumentUpdated(ctx context.Context, e model.UpdatedEvent) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewEnvelope wraps a payload in the standard event envelope.
func NewEnvelope(eventType string, data any, correlationID string) model.Event {
	return model.Event{
		EventType:     eventType,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Service:       ServiceName,
		Data:          data,
		CorrelationID: correlationID,
	}
}

// RoutingKey returns the default routing key for an event type.
func RoutingKey(eventType string) string {
	return "document." + eventType
}

// NopPublisher discards all events. Used when the bus is disabled and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any, string) error { return nil }

func (NopPublisher) DocumentUploaded(context.Context, model.UploadedEvent) error { return nil }

func (NopPublisher) DocumentScanned(context.Context, model.ScannedEvent) error { return nil }

func (NopPublisher) DocumentDeleted(context.Context, model.DeletedEvent) error { return nil }

func (NopPublisher) DocumentUpdated(context.Context, model.UpdatedEvent) error { return nil }

func (NopPublisher) HealthCheck(context.Context) error { return nil }

func (NopPublisher) Close() error { return nil }
