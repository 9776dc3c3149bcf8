package agent

import (
	"context"
	"errors"
	"fmt"
)

// Reason says why the loop stopped without a reply.
type Reason string

const (
	ReasonTimeout               Reason = "timeout"
	ReasonCanceled              Reason = "canceled"
	ReasonDidNotConverge        Reason = "did_not_converge"
	ReasonTooManyToolCalls      Reason = "too_many_tool_calls"
	ReasonToolArgumentsTooLarge Reason = "tool_arguments_too_large"
	ReasonUpstreamError         Reason = "upstream_error"
	ReasonNotConfigured         Reason = "not_configured"
)

// AbortError is returned by Loop.Run when the request ends without a
// reply. Hops and ToolCalls record how far the request got.
type AbortError struct {
	Reason    Reason
	Hops      int
	ToolCalls int
	Err       error
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf("agent: %s after %d hops and %d tool calls", e.Reason, e.Hops, e.ToolCalls)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() error { return e.Err }

// contextReason classifies an error caused by the request context
// ending. The context's own error wins over whatever the provider
// wrapped: a passed deadline is a timeout, a cancellation means the
// caller went away.
func contextReason(ctx context.Context, err error) (Reason, bool) {
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout, true
	case errors.Is(err, context.Canceled):
		return ReasonCanceled, true
	}
	return "", false
}
