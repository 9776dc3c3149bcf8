package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	gogithub "github.com/google/go-github/v69/github"
)

// maxFileBytes caps decoded file and README content handed to the model.
const maxFileBytes = 64 << 10

// GitHub implements Provider with the go-github SDK.
type GitHub struct {
	client     *gogithub.Client
	graphqlURL string
	logger     *slog.Logger
}

// NewGitHub creates a provider. An empty token makes unauthenticated
// requests, which GitHub allows at a lower rate limit. baseURL selects
// a GitHub Enterprise server; empty means github.com.
func NewGitHub(httpClient *http.Client, token, baseURL string, logger *slog.Logger) (*GitHub, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := gogithub.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" && !isPublicAPI(baseURL) {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("forge: github base url: %w", err)
		}
	}
	return &GitHub{
		client:     client,
		graphqlURL: graphqlEndpoint(client),
		logger:     logger.With("provider", "github"),
	}, nil
}

func isPublicAPI(u string) bool {
	u = strings.TrimRight(u, "/")
	return u == "https://api.github.com" || u == "https://github.com"
}

// graphqlEndpoint derives the GraphQL URL from the REST base:
// https://api.github.com/ → /graphql, https://ghe/api/v3/ → /api/graphql.
func graphqlEndpoint(client *gogithub.Client) string {
	base := *client.BaseURL
	if strings.HasSuffix(base.Path, "/api/v3/") {
		base.Path = strings.TrimSuffix(base.Path, "v3/") + "graphql"
	} else {
		base.Path = "/graphql"
	}
	return base.String()
}

// splitRepo splits an "owner/repo" string into its two parts.
func splitRepo(repo string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(repo), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("invalid repo %q: expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

// checkRateLimit logs a warning when remaining API calls run low.
func (g *GitHub) checkRateLimit(resp *gogithub.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < 100 {
		g.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"limit", resp.Rate.Limit,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

// Ping reads the rate-limit status, which does not itself count
// against the limit. It fails once the core quota is exhausted.
func (g *GitHub) Ping(ctx context.Context) error {
	limits, _, err := g.client.RateLimit.Get(ctx)
	if err != nil {
		return fmt.Errorf("forge: rate limit: %w", err)
	}
	if core := limits.GetCore(); core != nil && core.Limit > 0 && core.Remaining == 0 {
		return fmt.Errorf("forge: github rate limit exhausted until %s", core.Reset.Time.Format(time.RFC3339))
	}
	return nil
}

// ListRepos returns up to 100 of the user's repositories by last update.
func (g *GitHub) ListRepos(ctx context.Context, user string) ([]*Repo, error) {
	opts := &gogithub.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	results, resp, err := g.client.Repositories.ListByUser(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("forge: list repos for %s: %w", user, err)
	}
	g.checkRateLimit(resp)

	repos := make([]*Repo, 0, len(results))
	for _, r := range results {
		repos = append(repos, convertRepo(r))
	}
	return repos, nil
}

// SearchCode runs a code search.
func (g *GitHub) SearchCode(ctx context.Context, query string, limit int) ([]*CodeResult, error) {
	opts := &gogithub.SearchOptions{ListOptions: gogithub.ListOptions{PerPage: limit}}
	result, resp, err := g.client.Search.Code(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("forge: search code: %w", err)
	}
	g.checkRateLimit(resp)

	hits := make([]*CodeResult, 0, len(result.CodeResults))
	for _, c := range result.CodeResults {
		hits = append(hits, &CodeResult{
			Name:       c.GetName(),
			Path:       c.GetPath(),
			Repository: c.GetRepository().GetFullName(),
			HTMLURL:    c.GetHTMLURL(),
		})
	}
	return hits, nil
}

// GetFile fetches and decodes a file. A directory path returns its
// entry names instead of content.
func (g *GitHub) GetFile(ctx context.Context, repo, path, ref string) (*FileContent, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	path = strings.TrimPrefix(path, "/")

	file, dir, resp, err := g.client.Repositories.GetContents(ctx, owner, name, path, &gogithub.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("forge: get %s in %s: %w", path, repo, err)
	}
	g.checkRateLimit(resp)

	if file == nil {
		out := &FileContent{Repository: repo, Path: path, Ref: ref, Type: "dir"}
		for _, entry := range dir {
			n := entry.GetName()
			if entry.GetType() == "dir" {
				n += "/"
			}
			out.Entries = append(out.Entries, n)
		}
		return out, nil
	}
	return convertContent(repo, ref, file)
}

// GetReadme fetches and decodes the repository README.
func (g *GitHub) GetReadme(ctx context.Context, repo, ref string) (*FileContent, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	file, resp, err := g.client.Repositories.GetReadme(ctx, owner, name, &gogithub.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, fmt.Errorf("forge: get readme for %s: %w", repo, err)
	}
	g.checkRateLimit(resp)

	out, err := convertContent(repo, ref, file)
	if err != nil {
		return nil, err
	}
	if out.Path == "" {
		out.Path = "README.md"
	}
	return out, nil
}

// ListCommits lists commits on the default branch.
func (g *GitHub) ListCommits(ctx context.Context, repo string, opts CommitListOptions) ([]*Commit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	ghOpts := &gogithub.CommitsListOptions{
		Author:      opts.Author,
		Path:        opts.Path,
		Since:       opts.Since,
		Until:       opts.Until,
		ListOptions: gogithub.ListOptions{PerPage: opts.PerPage},
	}
	results, resp, err := g.client.Repositories.ListCommits(ctx, owner, name, ghOpts)
	if err != nil {
		return nil, fmt.Errorf("forge: list commits for %s: %w", repo, err)
	}
	g.checkRateLimit(resp)

	commits := make([]*Commit, 0, len(results))
	for _, c := range results {
		commits = append(commits, convertCommit(c, false))
	}
	return commits, nil
}

// GetCommit fetches one commit with its file changes.
func (g *GitHub) GetCommit(ctx context.Context, repo, sha string) (*Commit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	result, resp, err := g.client.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("forge: get commit %s in %s: %w", sha, repo, err)
	}
	g.checkRateLimit(resp)
	return convertCommit(result, true), nil
}

// ListPRs lists pull requests in state (open, closed or all).
func (g *GitHub) ListPRs(ctx context.Context, repo, state string, perPage int) ([]*PullRequestSummary, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	opts := &gogithub.PullRequestListOptions{
		State:       state,
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}
	results, resp, err := g.client.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		return nil, fmt.Errorf("forge: list pull requests for %s: %w", repo, err)
	}
	g.checkRateLimit(resp)

	prs := make([]*PullRequestSummary, 0, len(results))
	for _, pr := range results {
		s := convertPRSummary(pr)
		prs = append(prs, &s)
	}
	return prs, nil
}

// GetPR fetches a single pull request.
func (g *GitHub) GetPR(ctx context.Context, repo string, number int) (*PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	pr, resp, err := g.client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("forge: get pull request #%d in %s: %w", number, repo, err)
	}
	g.checkRateLimit(resp)

	return &PullRequest{
		PullRequestSummary: convertPRSummary(pr),
		Body:               pr.GetBody(),
		Additions:          pr.GetAdditions(),
		Deletions:          pr.GetDeletions(),
		ChangedFiles:       pr.GetChangedFiles(),
	}, nil
}

func convertRepo(r *gogithub.Repository) *Repo {
	return &Repo{
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Private:     r.GetPrivate(),
		HTMLURL:     r.GetHTMLURL(),
		Description: r.GetDescription(),
		Language:    r.GetLanguage(),
		Stars:       r.GetStargazersCount(),
		UpdatedAt:   formatTime(r.GetUpdatedAt().Time),
	}
}

func convertContent(repo, ref string, file *gogithub.RepositoryContent) (*FileContent, error) {
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("forge: decode %s: %w", file.GetPath(), err)
	}
	out := &FileContent{
		Repository: repo,
		Path:       file.GetPath(),
		Ref:        ref,
		SHA:        file.GetSHA(),
		Size:       file.GetSize(),
	}
	out.Content, out.Truncated = truncateUTF8(content, maxFileBytes)
	return out, nil
}

func convertCommit(c *gogithub.RepositoryCommit, withFiles bool) *Commit {
	author := c.GetCommit().GetAuthor()
	out := &Commit{
		SHA:         c.GetSHA(),
		AuthorLogin: c.GetAuthor().GetLogin(),
		CommitAuthor: CommitAuthor{
			Name:  author.GetName(),
			Email: author.GetEmail(),
			Date:  formatTime(author.GetDate().Time),
		},
		CommitMessage: c.GetCommit().GetMessage(),
		HTMLURL:       c.GetHTMLURL(),
	}
	if withFiles {
		out.Files = make([]CommitFile, 0, len(c.Files))
		for _, f := range c.Files {
			out.Files = append(out.Files, CommitFile{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Changes:   f.GetChanges(),
				Patch:     f.GetPatch(),
			})
		}
	}
	return out
}

func convertPRSummary(pr *gogithub.PullRequest) PullRequestSummary {
	return PullRequestSummary{
		Number:   pr.GetNumber(),
		Title:    pr.GetTitle(),
		State:    pr.GetState(),
		User:     pr.GetUser().GetLogin(),
		HTMLURL:  pr.GetHTMLURL(),
		MergedAt: formatTime(pr.GetMergedAt().Time),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// truncateUTF8 cuts s to at most max bytes on a rune boundary.
func truncateUTF8(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
