package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/folio-agent/folio/internal/fetch"
)

// WebsiteSource supplies the subject's website address, typically from
// the bio document.
type WebsiteSource interface {
	Website() (string, error)
}

// WebConfig configures fetch_website_content.
type WebConfig struct {
	// DefaultURL is used when neither the call nor the bio names a site.
	DefaultURL string
	// MaxChars limits the extracted text; 0 uses the fetcher default.
	MaxChars int
}

type fetchArgs struct {
	URL string `json:"url"`
}

var errNoWebsite = errors.New("no url given and no website configured")

// WebTools returns fetch_website_content. site may be nil.
func WebTools(f *fetch.Fetcher, site WebsiteSource, cfg WebConfig, subject string) []*Tool {
	if subject == "" {
		subject = "the portfolio owner"
	}
	fetchSite := func(ctx context.Context, args fetchArgs) (*fetch.Result, error) {
		target := strings.TrimSpace(args.URL)
		if target == "" && site != nil {
			u, err := site.Website()
			if err != nil {
				return nil, err
			}
			target = u
		}
		if target == "" {
			target = cfg.DefaultURL
		}
		if target == "" {
			return nil, errNoWebsite
		}
		return f.Fetch(ctx, target, cfg.MaxChars)
	}
	return []*Tool{{
		Name:        "fetch_website_content",
		Description: "Fetch current content from " + subject + "'s website: title, description, sections and links.",
		Parameters: object(map[string]any{
			"url": str("Page URL; defaults to the website in the bio"),
		}),
		Handler: Typed("fetch_website_content", fetchSite),
	}}
}
