package tools

import "fmt"

// ArgumentError reports tool arguments that could not be decoded or
// failed validation. Its message is shown to the model verbatim so it
// can correct the call.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

