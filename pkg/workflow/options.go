package workflow

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/flowrun/pkg/progress"
	"github.com/dukex/flowrun/pkg/stats"
)

type Option func(*Executor)

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithSink sets where step records and final outcomes are written.
func WithSink(sink stats.Sink) Option {
	return func(e *Executor) {
		if sink != nil {
			e.sink = sink
		}
	}
}

type runConfig struct {
	executionID string
	emitter     progress.Emitter
}

type RunOption func(*runConfig)

// WithExecutionID fixes the execution id instead of generating one.
func WithExecutionID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.executionID = id
		}
	}
}

// WithEmitter sends progress events of the run to emitter.
func WithEmitter(emitter progress.Emitter) RunOption {
	return func(c *runConfig) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}
