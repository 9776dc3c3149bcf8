package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Subject resolves who "my" refers to in portfolio questions.
type Subject interface {
	// SubjectLogin returns the subject's GitHub login, or fallback.
	SubjectLogin(fallback string) (string, error)
	// SubjectName returns the subject's display name, or "".
	SubjectName() string
}

// ToolsConfig holds defaults for the GitHub tools.
type ToolsConfig struct {
	// DefaultUser is used when neither the call nor the bio names a login.
	DefaultUser string
	// LoginCaseSensitive makes author filters compare logins exactly.
	// GitHub logins are case-insensitive, so the default folds case.
	LoginCaseSensitive bool
}

// Tools implements the GitHub tool operations on top of a Provider.
type Tools struct {
	provider Provider
	subject  Subject
	cfg      ToolsConfig
	logger   *slog.Logger
}

// NewTools creates the GitHub tool operations. subject may be nil.
func NewTools(p Provider, subject Subject, cfg ToolsConfig, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{provider: p, subject: subject, cfg: cfg, logger: logger}
}

// --- Arguments ---

const (
	defaultPerPage = 30
	maxPerPage     = 100
	searchLimit    = 10
)

func checkRepo(ownerRepo string) error {
	if strings.TrimSpace(ownerRepo) == "" {
		return errors.New("owner_repo is required")
	}
	_, _, err := splitRepo(ownerRepo)
	return err
}

func clampPerPage(n int) int {
	switch {
	case n <= 0:
		return defaultPerPage
	case n > maxPerPage:
		return maxPerPage
	}
	return n
}

// parseTime accepts RFC 3339 timestamps or YYYY-MM-DD dates.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
}

// ListReposArgs are the github_list_repos arguments.
type ListReposArgs struct {
	User string `json:"user"`
}

// SearchCodeArgs are the github_search_code arguments.
type SearchCodeArgs struct {
	Q    string `json:"q"`
	Repo string `json:"repo"`
}

func (a *SearchCodeArgs) Validate() error {
	if strings.TrimSpace(a.Q) == "" {
		return errors.New("q is required")
	}
	if a.Repo != "" {
		return checkRepo(a.Repo)
	}
	return nil
}

// GetFileArgs are the github_get_file arguments.
type GetFileArgs struct {
	OwnerRepo string `json:"owner_repo"`
	Path      string `json:"path"`
	Ref       string `json:"ref"`
}

func (a *GetFileArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	if strings.TrimSpace(a.Path) == "" {
		return errors.New("path is required")
	}
	return nil
}

// GetReadmeArgs are the github_get_readme arguments.
type GetReadmeArgs struct {
	OwnerRepo string `json:"owner_repo"`
	Ref       string `json:"ref"`
}

func (a *GetReadmeArgs) Validate() error { return checkRepo(a.OwnerRepo) }

// ListCommitsArgs are the github_list_commits arguments.
type ListCommitsArgs struct {
	OwnerRepo string `json:"owner_repo"`
	Author    string `json:"author"`
	Path      string `json:"path"`
	Since     string `json:"since"`
	Until     string `json:"until"`
	PerPage   int    `json:"per_page"`
}

func (a *ListCommitsArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	if _, err := parseTime(a.Since); err != nil {
		return fmt.Errorf("since: %w", err)
	}
	if _, err := parseTime(a.Until); err != nil {
		return fmt.Errorf("until: %w", err)
	}
	a.PerPage = clampPerPage(a.PerPage)
	return nil
}

// GetCommitArgs are the github_get_commit arguments.
type GetCommitArgs struct {
	OwnerRepo string `json:"owner_repo"`
	SHA       string `json:"sha"`
}

func (a *GetCommitArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	if strings.TrimSpace(a.SHA) == "" {
		return errors.New("sha is required")
	}
	return nil
}

// ListPullRequestsArgs are the github_list_pull_requests arguments.
type ListPullRequestsArgs struct {
	OwnerRepo string `json:"owner_repo"`
	State     string `json:"state"`
	Author    string `json:"author"`
	PerPage   int    `json:"per_page"`
}

func (a *ListPullRequestsArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	switch a.State {
	case "":
		a.State = "all"
	case "open", "closed", "all":
	default:
		return fmt.Errorf("state %q: want open, closed or all", a.State)
	}
	a.PerPage = clampPerPage(a.PerPage)
	return nil
}

// GetPullRequestArgs are the github_get_pull_request arguments.
type GetPullRequestArgs struct {
	OwnerRepo string `json:"owner_repo"`
	Number    int    `json:"number"`
}

func (a *GetPullRequestArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	if a.Number <= 0 {
		return errors.New("number is required")
	}
	return nil
}

// BlameFileArgs are the github_blame_file arguments.
type BlameFileArgs struct {
	OwnerRepo string `json:"owner_repo"`
	Path      string `json:"path"`
	Ref       string `json:"ref"`
}

func (a *BlameFileArgs) Validate() error {
	if err := checkRepo(a.OwnerRepo); err != nil {
		return err
	}
	if strings.TrimSpace(a.Path) == "" {
		return errors.New("path is required")
	}
	return nil
}

// AnalyzeArgs are the analyze_my_contributions arguments.
type AnalyzeArgs struct {
	OwnerRepo string `json:"owner_repo"`
}

func (a *AnalyzeArgs) Validate() error { return checkRepo(a.OwnerRepo) }

// --- Operations ---

// subjectLogin resolves the default login: bio first, then config.
func (t *Tools) subjectLogin() string {
	if t.subject == nil {
		return t.cfg.DefaultUser
	}
	login, err := t.subject.SubjectLogin(t.cfg.DefaultUser)
	if err != nil {
		t.logger.Warn("resolve subject login from bio", "error", err)
		return t.cfg.DefaultUser
	}
	return login
}

func (t *Tools) sameLogin(a, b string) bool {
	if t.cfg.LoginCaseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// ListRepos lists the user's repositories. With no user and no
// configured subject it returns an empty list.
func (t *Tools) ListRepos(ctx context.Context, args ListReposArgs) ([]*Repo, error) {
	user := strings.TrimSpace(args.User)
	if user == "" {
		user = t.subjectLogin()
	}
	if user == "" {
		return []*Repo{}, nil
	}
	return t.provider.ListRepos(ctx, user)
}

// SearchCode searches code, scoped to a repository when one is given.
func (t *Tools) SearchCode(ctx context.Context, args SearchCodeArgs) ([]*CodeResult, error) {
	query := strings.TrimSpace(args.Q)
	if args.Repo != "" {
		query += " repo:" + args.Repo
	}
	return t.provider.SearchCode(ctx, query, searchLimit)
}

// GetFile reads a file.
func (t *Tools) GetFile(ctx context.Context, args GetFileArgs) (*FileContent, error) {
	return t.provider.GetFile(ctx, args.OwnerRepo, args.Path, args.Ref)
}

// GetReadme reads the README.
func (t *Tools) GetReadme(ctx context.Context, args GetReadmeArgs) (*FileContent, error) {
	return t.provider.GetReadme(ctx, args.OwnerRepo, args.Ref)
}

// ListCommits lists commits with optional filters.
func (t *Tools) ListCommits(ctx context.Context, args ListCommitsArgs) ([]*Commit, error) {
	since, _ := parseTime(args.Since)
	until, _ := parseTime(args.Until)
	return t.provider.ListCommits(ctx, args.OwnerRepo, CommitListOptions{
		Author:  args.Author,
		Path:    args.Path,
		Since:   since,
		Until:   until,
		PerPage: clampPerPage(args.PerPage),
	})
}

// GetCommit reads one commit with its files.
func (t *Tools) GetCommit(ctx context.Context, args GetCommitArgs) (*Commit, error) {
	return t.provider.GetCommit(ctx, args.OwnerRepo, strings.TrimSpace(args.SHA))
}

// ListPullRequests lists pull requests, keeping only those opened by
// author when one is given.
func (t *Tools) ListPullRequests(ctx context.Context, args ListPullRequestsArgs) ([]*PullRequestSummary, error) {
	state := args.State
	if state == "" {
		state = "all"
	}
	prs, err := t.provider.ListPRs(ctx, args.OwnerRepo, state, clampPerPage(args.PerPage))
	if err != nil {
		return nil, err
	}
	if args.Author == "" {
		return prs, nil
	}
	return t.filterByAuthor(prs, args.Author), nil
}

func (t *Tools) filterByAuthor(prs []*PullRequestSummary, author string) []*PullRequestSummary {
	out := make([]*PullRequestSummary, 0, len(prs))
	for _, pr := range prs {
		if t.sameLogin(pr.User, author) {
			out = append(out, pr)
		}
	}
	return out
}

// GetPullRequest reads one pull request.
func (t *Tools) GetPullRequest(ctx context.Context, args GetPullRequestArgs) (*PullRequest, error) {
	return t.provider.GetPR(ctx, args.OwnerRepo, args.Number)
}

// BlameFile returns line-range authorship.
func (t *Tools) BlameFile(ctx context.Context, args BlameFileArgs) (*Blame, error) {
	return t.provider.Blame(ctx, args.OwnerRepo, args.Path, args.Ref)
}
