// Package agent runs the tool-calling loop that turns one user message
// into one reply: the model is called repeatedly, its tool calls are
// dispatched and their results fed back until it answers in plain text
// or a bound is hit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/folio-agent/folio/internal/llm"
)

const tracerName = "github.com/folio-agent/folio/internal/agent"

// ToolDispatcher runs tool calls. DispatchRaw never fails; errors come
// back inside the result string.
type ToolDispatcher interface {
	Definitions() []map[string]any
	DispatchRaw(ctx context.Context, name, rawArgs string) string
}

// Usage is the token accounting for one model call.
type Usage struct {
	RequestID    string
	Hop          int
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	Timestamp    time.Time
}

// UsageRecorder persists per-hop token usage.
type UsageRecorder interface {
	Record(ctx context.Context, u Usage) error
}

// Config bounds a single request.
type Config struct {
	Model string
	// MaxHops is the most model calls one request may make.
	MaxHops int
	// Timeout is checked at the start of every hop and also bounds the
	// provider calls.
	Timeout time.Duration
	// MaxToolCalls caps tool calls across all hops of a request.
	MaxToolCalls int
	// MaxToolArgumentBytes caps the raw JSON arguments of one call.
	MaxToolArgumentBytes int
	SystemPrompt         string
}

// Request is one user turn with optional prior history.
type Request struct {
	Message string
	History []llm.Message
	// RequestID is generated when empty.
	RequestID string
}

// Response is the loop's answer.
type Response struct {
	Reply        string `json:"reply"`
	Model        string `json:"model"`
	Hops         int    `json:"hops"`
	ToolCalls    int    `json:"tool_calls"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	RequestID    string `json:"request_id"`
}

// Loop is the orchestration loop. It holds no per-request state and is
// safe for concurrent use.
type Loop struct {
	cfg    Config
	llm    llm.Client
	tools  ToolDispatcher
	usage  UsageRecorder
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// Option configures a Loop.
type Option func(*Loop)

// WithUsageRecorder records token usage after every model call.
func WithUsageRecorder(r UsageRecorder) Option { return func(l *Loop) { l.usage = r } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(l *Loop) { l.logger = logger } }

// WithClock overrides time.Now for timeout checks.
func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }

// WithRequestIDs overrides request ID generation.
func WithRequestIDs(f func() string) Option { return func(l *Loop) { l.newID = f } }

// NewLoop creates a loop. A MaxHops below one is treated as one.
func NewLoop(cfg Config, client llm.Client, tools ToolDispatcher, opts ...Option) *Loop {
	if cfg.MaxHops < 1 {
		cfg.MaxHops = 1
	}
	l := &Loop{
		cfg:    cfg,
		llm:    client,
		tools:  tools,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		newID:  newRequestID,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Config returns the loop bounds.
func (l *Loop) Config() Config { return l.cfg }

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run answers req. Failures that end the request early are returned
// as *AbortError.
func (l *Loop) Run(ctx context.Context, req *Request) (*Response, error) {
	st := &requestState{id: req.RequestID, start: l.now(), state: StateAwaitingModel}
	if st.id == "" {
		st.id = l.newID()
	}
	log := l.logger.With("request_id", st.id)

	ctx, span := l.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("request_id", st.id),
		attribute.String("model", l.cfg.Model),
		attribute.Int("history", len(req.History)),
	))
	defer span.End()

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	conv := NewConversation(l.cfg.SystemPrompt, req.History, req.Message)
	defs := l.tools.Definitions()
	log.Info("agent request started", "model", l.cfg.Model, "history", len(req.History), "tools", len(defs))

	resp, err := l.run(ctx, st, conv, defs, log)

	span.SetAttributes(
		attribute.Int("hops", st.hops),
		attribute.Int("tool_calls", st.toolCalls),
	)
	elapsed := l.now().Sub(st.start)
	if err != nil {
		var abort *AbortError
		if errors.As(err, &abort) {
			span.SetAttributes(attribute.String("abort_reason", string(abort.Reason)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("agent request aborted", "error", err, "elapsed", elapsed)
		return nil, err
	}
	log.Info("agent request completed",
		"hops", resp.Hops,
		"tool_calls", resp.ToolCalls,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", elapsed,
	)
	return resp, nil
}

func (l *Loop) run(ctx context.Context, st *requestState, conv *Conversation, defs []map[string]any, log *slog.Logger) (*Response, error) {
	for st.hops < l.cfg.MaxHops {
		if err := l.checkDeadline(ctx, st); err != nil {
			reason, ok := contextReason(ctx, err)
			if !ok {
				reason = ReasonTimeout
			}
			return nil, st.abort(reason, err)
		}
		st.hops++
		l.transition(st, StateAwaitingModel, log)

		resp, err := l.chat(ctx, st, conv, defs)
		if err != nil {
			if errors.Is(err, llm.ErrNotConfigured) {
				return nil, st.abort(ReasonNotConfigured, err)
			}
			if reason, ok := contextReason(ctx, err); ok {
				return nil, st.abort(reason, err)
			}
			return nil, st.abort(ReasonUpstreamError, err)
		}
		l.transition(st, StateModelResponded, log)

		calls := resp.Message.ToolCalls
		if len(calls) == 0 {
			l.transition(st, StateNoToolCalls, log)
			l.transition(st, StateDone, log)
			model := resp.Model
			if model == "" {
				model = l.cfg.Model
			}
			return &Response{
				Reply:        strings.TrimSpace(resp.Message.Content),
				Model:        model,
				Hops:         st.hops,
				ToolCalls:    st.toolCalls,
				InputTokens:  st.inTokens,
				OutputTokens: st.outTokens,
				RequestID:    st.id,
			}, nil
		}

		l.transition(st, StateHasToolCalls, log)
		if err := l.checkBatch(st, calls); err != nil {
			return nil, err
		}
		for _, call := range calls {
			st.toolCalls++
			log.Debug("dispatching tool", "hop", st.hops, "tool", call.Function.Name, "call_id", call.ID)
			result := l.tools.DispatchRaw(ctx, call.Function.Name, call.Function.Arguments)
			conv.AppendToolExchange(call, result)
		}
	}
	return nil, st.abort(ReasonDidNotConverge, fmt.Errorf("no final answer within %d hops", l.cfg.MaxHops))
}

// checkDeadline reports whether the request ran out of time before a
// new hop starts.
func (l *Loop) checkDeadline(ctx context.Context, st *requestState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.cfg.Timeout > 0 {
		if elapsed := l.now().Sub(st.start); elapsed >= l.cfg.Timeout {
			return fmt.Errorf("elapsed %s exceeds %s", elapsed.Round(time.Millisecond), l.cfg.Timeout)
		}
	}
	return nil
}

// checkBatch validates a whole batch of tool calls before any of them
// runs, so a rejected batch has no side effects.
func (l *Loop) checkBatch(st *requestState, calls []llm.ToolCall) error {
	if limit := l.cfg.MaxToolCalls; limit > 0 && st.toolCalls+len(calls) > limit {
		return st.abort(ReasonTooManyToolCalls,
			fmt.Errorf("%d tool calls requested, %d already made, limit %d", len(calls), st.toolCalls, limit))
	}
	if limit := l.cfg.MaxToolArgumentBytes; limit > 0 {
		for _, c := range calls {
			if n := len(c.Function.Arguments); n > limit {
				return st.abort(ReasonToolArgumentsTooLarge,
					fmt.Errorf("arguments for %s are %d bytes, limit %d", c.Function.Name, n, limit))
			}
		}
	}
	return nil
}

func (l *Loop) chat(ctx context.Context, st *requestState, conv *Conversation, defs []map[string]any) (*llm.ChatResponse, error) {
	ctx, span := l.tracer.Start(ctx, "agent.hop", trace.WithAttributes(
		attribute.Int("hop", st.hops),
		attribute.Int("messages", conv.Len()),
	))
	defer span.End()

	resp, err := l.llm.Chat(ctx, l.cfg.Model, conv.Messages(), defs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	st.inTokens += resp.InputTokens
	st.outTokens += resp.OutputTokens
	span.SetAttributes(
		attribute.Int("tool_calls", len(resp.Message.ToolCalls)),
		attribute.Int("input_tokens", resp.InputTokens),
		attribute.Int("output_tokens", resp.OutputTokens),
	)

	if l.usage != nil {
		model := resp.Model
		if model == "" {
			model = l.cfg.Model
		}
		u := Usage{
			RequestID:    st.id,
			Hop:          st.hops,
			Model:        model,
			Provider:     resp.Provider,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			Timestamp:    l.now(),
		}
		if err := l.usage.Record(ctx, u); err != nil {
			l.logger.Warn("failed to record usage", "request_id", st.id, "error", err)
		}
	}
	return resp, nil
}

func (l *Loop) transition(st *requestState, next State, log *slog.Logger) {
	log.Debug("agent state", "from", st.state.String(), "to", next.String(), "hop", st.hops)
	st.state = next
}
