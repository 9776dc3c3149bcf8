package forge

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrNoSubject is returned when no GitHub login is known for the
// portfolio subject.
var ErrNoSubject = errors.New("no GitHub login configured for the portfolio subject")

const maxMentions = 20

// AnalyzeContributions gathers the subject's commits, pull requests and
// README mentions in a repository and summarizes them. The three reads
// run concurrently. A README that cannot be read yields no mentions
// rather than an error.
func (t *Tools) AnalyzeContributions(ctx context.Context, args AnalyzeArgs) (*Contributions, error) {
	login := t.subjectLogin()
	if login == "" {
		return nil, ErrNoSubject
	}
	name := ""
	if t.subject != nil {
		name = t.subject.SubjectName()
	}

	var (
		commits []*Commit
		prs     []*PullRequestSummary
		readme  *FileContent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commits, err = t.provider.ListCommits(gctx, args.OwnerRepo, CommitListOptions{
			Author:  login,
			PerPage: maxPerPage,
		})
		return err
	})
	g.Go(func() error {
		all, err := t.provider.ListPRs(gctx, args.OwnerRepo, "all", maxPerPage)
		if err != nil {
			return err
		}
		prs = t.filterByAuthor(all, login)
		return nil
	})
	g.Go(func() error {
		var err error
		readme, err = t.provider.GetReadme(gctx, args.OwnerRepo, "")
		if err != nil {
			t.logger.Debug("readme unavailable for contribution analysis",
				"repo", args.OwnerRepo, "error", err)
			readme = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Contributions{
		Repository:     args.OwnerRepo,
		Login:          login,
		Commits:        commits,
		PullRequests:   prs,
		ReadmeMentions: []string{},
	}
	if out.Commits == nil {
		out.Commits = []*Commit{}
	}
	if readme != nil {
		out.ReadmeMentions = findMentions(readme.Content, login, name)
	}
	out.Summary = summarize(out.Commits, out.PullRequests)
	return out, nil
}

// findMentions returns README lines naming the login or the subject's
// name, case-insensitively.
func findMentions(content, login, name string) []string {
	var needles []string
	for _, n := range []string{login, name} {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			needles = append(needles, n)
		}
	}
	mentions := []string{}
	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, n := range needles {
			if strings.Contains(lower, n) {
				mentions = append(mentions, line)
				break
			}
		}
		if len(mentions) == maxMentions {
			break
		}
	}
	return mentions
}

func summarize(commits []*Commit, prs []*PullRequestSummary) ContributionSummary {
	s := ContributionSummary{CommitCount: len(commits), PRCount: len(prs)}
	for _, pr := range prs {
		if pr.MergedAt != "" {
			s.MergedPRCount++
		}
	}
	dates := make([]string, 0, len(commits))
	for _, c := range commits {
		if c.CommitAuthor.Date != "" {
			dates = append(dates, c.CommitAuthor.Date)
		}
	}
	if len(dates) > 0 {
		// RFC 3339 UTC strings sort chronologically.
		sort.Strings(dates)
		s.FirstCommit = dates[0]
		s.LastCommit = dates[len(dates)-1]
	}
	return s
}
