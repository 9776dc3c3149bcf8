package tools

import (
	"context"
	"errors"

	"github.com/folio-agent/folio/internal/bio"
)

type bioGetArgs struct {
	Keys []string `json:"keys"`
}

type bioSetArgs struct {
	Update map[string]any `json:"update"`
}

// Validate rejects a missing or null update. An empty object is a
// valid no-op.
func (a *bioSetArgs) Validate() error {
	if a.Update == nil {
		return errors.New("update is required")
	}
	return nil
}

// BioTools returns bio_get, bio_set and get_professional_profile.
// subject names the person the bio describes in tool descriptions.
func BioTools(store *bio.Store, profile *bio.Profile, subject string) []*Tool {
	if subject == "" {
		subject = "the portfolio owner"
	}
	return []*Tool{
		{
			Name:        "bio_get",
			Description: "Read persistent bio facts about " + subject + ". Optionally filter by keys; missing keys come back as null.",
			Parameters: object(map[string]any{
				"keys": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}),
			Handler: Typed("bio_get", func(_ context.Context, args bioGetArgs) (map[string]any, error) {
				return store.Get(args.Keys)
			}),
		},
		{
			Name:        "bio_set",
			Description: "Merge key/value pairs into the bio. Existing keys are overwritten, others kept. Use sparingly for long-lived facts.",
			Parameters: object(map[string]any{
				"update": map[string]any{"type": "object", "additionalProperties": true},
			}, "update"),
			Handler: Typed("bio_set", func(_ context.Context, args bioSetArgs) (*bio.MergeResult, error) {
				return store.Merge(args.Update)
			}),
		},
		{
			Name: "get_professional_profile",
			Description: "ALWAYS use for questions about " + subject + "'s personal life, family or hobbies. " +
				"Also returns professional information: experience, skills, education and achievements.",
			Parameters: object(map[string]any{}),
			Handler: func(context.Context, map[string]any) (any, error) {
				return profile.Build()
			},
		},
	}
}
