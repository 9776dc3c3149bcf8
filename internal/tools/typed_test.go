package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type pageArgs struct {
	Query   string   `json:"query"`
	PerPage int      `json:"per_page"`
	Tags    []string `json:"tags"`
}

func (a *pageArgs) Validate() error {
	if a.Query == "" {
		return errors.New("query is required")
	}
	if a.PerPage == 0 {
		a.PerPage = 30
	}
	return nil
}

func TestTyped(t *testing.T) {
	var got pageArgs
	h := Typed("search", func(_ context.Context, a pageArgs) (string, error) {
		got = a
		return "done", nil
	})

	tests := []struct {
		name    string
		raw     map[string]any
		want    pageArgs
		wantErr string
	}{
		{"json numbers", map[string]any{"query": "go", "per_page": 50.0}, pageArgs{Query: "go", PerPage: 50}, ""},
		{"string number", map[string]any{"query": "go", "per_page": "20"}, pageArgs{Query: "go", PerPage: 20}, ""},
		{"default filled", map[string]any{"query": "go"}, pageArgs{Query: "go", PerPage: 30}, ""},
		{"lone string to slice", map[string]any{"query": "go", "tags": "cli"}, pageArgs{Query: "go", PerPage: 30, Tags: []string{"cli"}}, ""},
		{"validation", map[string]any{}, pageArgs{}, "invalid arguments for search: query is required"},
		{"wrong type", map[string]any{"query": "go", "per_page": "many"}, pageArgs{}, "invalid arguments for search"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = pageArgs{}
			out, err := h(context.Background(), tt.raw)
			if tt.wantErr != "" {
				var argErr *ArgumentError
				if !errors.As(err, &argErr) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want ArgumentError containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if out != "done" {
				t.Errorf("out = %v", out)
			}
			if got.Query != tt.want.Query || got.PerPage != tt.want.PerPage || strings.Join(got.Tags, ",") != strings.Join(tt.want.Tags, ",") {
				t.Errorf("args = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTyped_HandlerErrorPassesThrough(t *testing.T) {
	boom := errors.New("upstream down")
	h := Typed("x", func(context.Context, struct{}) (*int, error) { return nil, boom })
	out, err := h(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want untyped nil", out)
	}
}
