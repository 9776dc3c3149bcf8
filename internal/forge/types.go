// Package forge reads repositories, commits, pull requests and blame
// data from GitHub for the portfolio tools, and derives contribution
// summaries from them.
package forge

// Repo is a repository owned by a user.
type Repo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name,omitempty"`
	Private     bool   `json:"private"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Language    string `json:"language,omitempty"`
	Stars       int    `json:"stargazers_count,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// CodeResult is one code search hit.
type CodeResult struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Repository string `json:"repository"`
	HTMLURL    string `json:"html_url"`
}

// FileContent is a decoded file, or a directory listing when Type is
// "dir".
type FileContent struct {
	Repository string   `json:"repository"`
	Path       string   `json:"path"`
	Ref        string   `json:"ref,omitempty"`
	Type       string   `json:"type,omitempty"`
	Content    string   `json:"content"`
	SHA        string   `json:"sha,omitempty"`
	Size       int      `json:"size,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
	Entries    []string `json:"entries,omitempty"`
}

// CommitAuthor is the git author recorded in a commit.
type CommitAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// CommitFile is one file changed by a commit.
type CommitFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Patch     string `json:"patch,omitempty"`
}

// Commit is a repository commit. AuthorLogin is empty when the git
// author email is not linked to a GitHub account. Files is only
// populated by GetCommit.
type Commit struct {
	SHA           string       `json:"sha"`
	AuthorLogin   string       `json:"author_login"`
	CommitAuthor  CommitAuthor `json:"commit_author"`
	CommitMessage string       `json:"commit_message"`
	HTMLURL       string       `json:"html_url"`
	Files         []CommitFile `json:"files,omitempty"`
}

// PullRequestSummary is a pull request as returned by list calls.
type PullRequestSummary struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	State    string `json:"state"`
	User     string `json:"user"`
	HTMLURL  string `json:"html_url"`
	MergedAt string `json:"merged_at,omitempty"`
}

// PullRequest is a single pull request with its body and diff stats.
type PullRequest struct {
	PullRequestSummary
	Body         string `json:"body"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ChangedFiles int    `json:"changed_files"`
}

// Blame attributes line ranges of a file to the commits that last
// touched them.
type Blame struct {
	Repository string       `json:"repository"`
	Path       string       `json:"path"`
	Ref        string       `json:"ref"`
	Ranges     []BlameRange `json:"ranges"`
}

// BlameRange is an inclusive line range.
type BlameRange struct {
	Start  int         `json:"start"`
	End    int         `json:"end"`
	Commit BlameCommit `json:"commit"`
}

// BlameCommit identifies the commit behind a blame range.
type BlameCommit struct {
	SHA         string `json:"sha"`
	Message     string `json:"message"`
	AuthorLogin string `json:"author_login"`
	AuthorEmail string `json:"author_email"`
	AuthorName  string `json:"author_name"`
	Date        string `json:"date"`
	URL         string `json:"url"`
}

// Contributions summarizes one user's work in a repository.
type Contributions struct {
	Repository     string                `json:"repository"`
	Login          string                `json:"login"`
	Commits        []*Commit             `json:"commits"`
	PullRequests   []*PullRequestSummary `json:"pull_requests"`
	ReadmeMentions []string              `json:"readme_mentions"`
	Summary        ContributionSummary   `json:"summary"`
}

// ContributionSummary holds the headline numbers.
type ContributionSummary struct {
	CommitCount   int    `json:"commit_count"`
	PRCount       int    `json:"pr_count"`
	MergedPRCount int    `json:"merged_pr_count"`
	FirstCommit   string `json:"first_commit,omitempty"`
	LastCommit    string `json:"last_commit,omitempty"`
}
