package telemetry

import (
	"context"

	"github.com/bobobo1618/ninesleep/internal/sensor"
)

// Sink receives every record decoded from a batch.
type Sink interface {
	Publish(ctx context.Context, r sensor.Reading) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r sensor.Reading) error

func (f SinkFunc) Publish(ctx context.Context, r sensor.Reading) error { return f(ctx, r) }
