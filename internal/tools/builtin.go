package tools

import (
	"github.com/folio-agent/folio/internal/bio"
	"github.com/folio-agent/folio/internal/fetch"
	"github.com/folio-agent/folio/internal/forge"
)

// Deps are the services the built-in tools run against.
type Deps struct {
	Bio     *bio.Store
	Profile *bio.Profile
	Forge   *forge.Tools
	Fetcher *fetch.Fetcher
	Web     WebConfig

	// Subject is the display name used in tool descriptions.
	Subject string
}

// Builtin builds the registry holding every tool the agent offers.
func Builtin(d Deps) (*Registry, error) {
	var all []*Tool
	all = append(all, BioTools(d.Bio, d.Profile, d.Subject)...)
	all = append(all, ForgeTools(d.Forge, d.Subject)...)
	all = append(all, WebTools(d.Fetcher, d.Bio, d.Web, d.Subject)...)
	return NewRegistry(all...)
}
