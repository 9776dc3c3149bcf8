package tools

import (
	"github.com/folio-agent/folio/internal/forge"
)

// ForgeTools returns the GitHub read tools and analyze_my_contributions.
func ForgeTools(ft *forge.Tools, subject string) []*Tool {
	if subject == "" {
		subject = "the portfolio owner"
	}
	repo := str(ownerRepoDesc)
	return []*Tool{
		{
			Name: "github_list_repos",
			Description: "ALWAYS use first when asked about repositories, projects or code. " +
				"Lists GitHub repositories to discover project names when a question is vague or names a project only partially.",
			Parameters: object(map[string]any{
				"user": str("GitHub username; defaults to " + subject + "'s account"),
			}),
			Handler: Typed("github_list_repos", ft.ListRepos),
		},
		{
			Name:        "github_search_code",
			Description: "Search code on GitHub, optionally restricted to one repository. Returns up to 10 hits.",
			Parameters: object(map[string]any{
				"q":    str("Search query"),
				"repo": repo,
			}, "q"),
			Handler: Typed("github_search_code", ft.SearchCode),
		},
		{
			Name:        "github_get_file",
			Description: "Get the content of a file from a GitHub repository. A directory path lists its entries.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"path":       str("File path within the repository"),
				"ref":        str("Branch, tag or commit SHA (optional)"),
			}, "owner_repo", "path"),
			Handler: Typed("github_get_file", ft.GetFile),
		},
		{
			Name:        "github_get_readme",
			Description: "Fetch the README of a repository.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"ref":        str("Branch, tag or commit SHA (optional)"),
			}, "owner_repo"),
			Handler: Typed("github_get_readme", ft.GetReadme),
		},
		{
			Name:        "github_list_commits",
			Description: "List commits in a repository, filterable by author, path and date range.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"author":     str("GitHub login or email"),
				"path":       str("Only commits touching this path"),
				"since":      str("RFC 3339 timestamp or YYYY-MM-DD"),
				"until":      str("RFC 3339 timestamp or YYYY-MM-DD"),
				"per_page":   integer("Results per page, default 30, max 100"),
			}, "owner_repo"),
			Handler: Typed("github_list_commits", ft.ListCommits),
		},
		{
			Name:        "github_get_commit",
			Description: "Get a single commit with its changed files and patches.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"sha":        str("Commit SHA"),
			}, "owner_repo", "sha"),
			Handler: Typed("github_get_commit", ft.GetCommit),
		},
		{
			Name:        "github_list_pull_requests",
			Description: "List pull requests in a repository, optionally only those opened by one author.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"state":      map[string]any{"type": "string", "enum": []string{"open", "closed", "all"}},
				"author":     str("GitHub login of the pull request author"),
				"per_page":   integer("Results per page, default 30, max 100"),
			}, "owner_repo"),
			Handler: Typed("github_list_pull_requests", ft.ListPullRequests),
		},
		{
			Name:        "github_get_pull_request",
			Description: "Get a pull request's details: body, lines changed and files changed.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"number":     integer("Pull request number"),
			}, "owner_repo", "number"),
			Handler: Typed("github_get_pull_request", ft.GetPullRequest),
		},
		{
			Name:        "github_blame_file",
			Description: "Get blame ranges for a file to attribute lines to authors.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
				"path":       str("File path within the repository"),
				"ref":        str("Branch, tag or commit SHA; default HEAD"),
			}, "owner_repo", "path"),
			Handler: Typed("github_blame_file", ft.BlameFile),
		},
		{
			Name:        "analyze_my_contributions",
			Description: "Summarize " + subject + "'s contributions to a repository: commits, pull requests and README mentions.",
			Parameters: object(map[string]any{
				"owner_repo": repo,
			}, "owner_repo"),
			Handler: Typed("analyze_my_contributions", ft.AnalyzeContributions),
		},
	}
}
