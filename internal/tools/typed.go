package tools

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Validator is implemented by argument structs that check required
// fields or fill documented defaults after decoding.
type Validator interface {
	Validate() error
}

// Typed adapts a function over a typed argument struct into a Handler.
// Arguments are decoded with mapstructure using json tags; weak typing
// lets "30" and 30.0 both land in an int field and lets a lone string
// fill a []string.
func Typed[A, R any](name string, fn func(ctx context.Context, args A) (R, error)) Handler {
	return func(ctx context.Context, raw map[string]any) (any, error) {
		var args A
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &args,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("build decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return nil, &ArgumentError{Tool: name, Err: err}
		}
		if v, ok := any(&args).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, &ArgumentError{Tool: name, Err: err}
			}
		}
		out, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
