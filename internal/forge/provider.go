package forge

import (
	"context"
	"time"
)

// Provider is the read-only GitHub surface the tools need. All repo
// parameters use "owner/name" form.
type Provider interface {
	// ListRepos returns the user's public repositories, most recently
	// updated first.
	ListRepos(ctx context.Context, user string) ([]*Repo, error)

	// SearchCode runs a code search query and returns up to limit hits.
	SearchCode(ctx context.Context, query string, limit int) ([]*CodeResult, error)

	// GetFile returns a file's decoded content at ref (default branch
	// when empty).
	GetFile(ctx context.Context, repo, path, ref string) (*FileContent, error)

	// GetReadme returns the repository README at ref.
	GetReadme(ctx context.Context, repo, ref string) (*FileContent, error)

	// ListCommits returns commits matching opts, newest first.
	ListCommits(ctx context.Context, repo string, opts CommitListOptions) ([]*Commit, error)

	// GetCommit returns a commit with its changed files.
	GetCommit(ctx context.Context, repo, sha string) (*Commit, error)

	// ListPRs returns pull requests in the given state.
	ListPRs(ctx context.Context, repo, state string, perPage int) ([]*PullRequestSummary, error)

	// GetPR returns a single pull request.
	GetPR(ctx context.Context, repo string, number int) (*PullRequest, error)

	// Blame returns per-range authorship of path at ref.
	Blame(ctx context.Context, repo, path, ref string) (*Blame, error)
}

// CommitListOptions filters ListCommits. Zero values are omitted.
type CommitListOptions struct {
	Author  string
	Path    string
	Since   time.Time
	Until   time.Time
	PerPage int
}
