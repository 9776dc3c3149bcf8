package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/folio-agent/folio/internal/tools"

// Dispatcher executes tool calls against a Registry. Dispatch never
// fails: unknown tools, bad arguments, handler errors and panics all
// come back as a JSON object with an "error" key, so the model sees
// the failure and the loop continues.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Definitions returns the registry's tool definitions.
func (d *Dispatcher) Definitions() []map[string]any {
	return d.registry.Definitions()
}

// DispatchRaw decodes the model-emitted argument JSON and dispatches.
func (d *Dispatcher) DispatchRaw(ctx context.Context, name, rawArgs string) string {
	if d.registry.Get(name) == nil {
		return d.unknown(name)
	}
	var args map[string]any
	if raw := strings.TrimSpace(rawArgs); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			d.logger.Warn("tool arguments are not a JSON object", "tool", name, "error", err)
			return errorResult((&ArgumentError{Tool: name, Err: err}).Error())
		}
	}
	return d.Dispatch(ctx, name, args)
}

// Dispatch runs the named tool with decoded arguments and returns its
// JSON-encoded result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (result string) {
	tool := d.registry.Get(name)
	if tool == nil {
		return d.unknown(name)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, span := d.tracer.Start(ctx, "tool."+name, trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", name, "panic", r)
			span.SetStatus(codes.Error, "panic")
			result = errorResult(fmt.Sprintf("tool %s panicked: %v", name, r))
		}
	}()

	out, err := tool.Handler(ctx, args)
	if err != nil {
		d.logger.Warn("tool failed", "tool", name, "error", err, "elapsed", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errorResult(err.Error())
	}

	b, err := json.Marshal(out)
	if err != nil {
		d.logger.Warn("tool result not encodable", "tool", name, "error", err)
		span.SetStatus(codes.Error, "encode result")
		return errorResult(fmt.Sprintf("encode %s result: %v", name, err))
	}

	d.logger.Debug("tool executed", "tool", name, "result_bytes", len(b), "elapsed", time.Since(start))
	span.SetAttributes(attribute.Int("tool.result_bytes", len(b)))
	return string(b)
}

func (d *Dispatcher) unknown(name string) string {
	d.logger.Warn("model requested unknown tool", "tool", name)
	return errorResult("unknown tool " + name)
}

func errorResult(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}
