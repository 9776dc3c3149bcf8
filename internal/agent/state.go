package agent

import "time"

// State is a position in the request state machine:
//
//	AwaitingModel -> ModelResponded -> HasToolCalls -> AwaitingModel
//	                                -> NoToolCalls  -> Done
//
// Any state may move to Aborted.
type State int

const (
	StateAwaitingModel State = iota
	StateModelResponded
	StateHasToolCalls
	StateNoToolCalls
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateAwaitingModel:  "awaiting_model",
	StateModelResponded: "model_responded",
	StateHasToolCalls:   "has_tool_calls",
	StateNoToolCalls:    "no_tool_calls",
	StateDone:           "done",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// requestState is the per-request context: created by Run, never
// shared between requests.
type requestState struct {
	id        string
	start     time.Time
	state     State
	hops      int
	toolCalls int
	inTokens  int
	outTokens int
}

func (s *requestState) abort(reason Reason, err error) *AbortError {
	s.state = StateAborted
	return &AbortError{Reason: reason, Hops: s.hops, ToolCalls: s.toolCalls, Err: err}
}
