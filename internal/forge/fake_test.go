package forge

import (
	"context"
	"errors"
	"sync"
)

// fakeProvider is an in-memory Provider that records calls.
type fakeProvider struct {
	mu sync.Mutex

	repos     []*Repo
	search    []*CodeResult
	file      *FileContent
	readme    *FileContent
	readmeErr error
	commits   []*Commit
	commitErr error
	commit    *Commit
	prs       []*PullRequestSummary
	pr        *PullRequest
	blame     *Blame

	calls       []string
	lastQuery   string
	lastLimit   int
	lastUser    string
	lastCommits CommitListOptions
	lastState   string
	lastPerPage int
}

var errFakeNotFound = errors.New("not found")

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeProvider) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeProvider) ListRepos(_ context.Context, user string) ([]*Repo, error) {
	f.record("ListRepos")
	f.mu.Lock()
	f.lastUser = user
	f.mu.Unlock()
	return f.repos, nil
}

func (f *fakeProvider) SearchCode(_ context.Context, query string, limit int) ([]*CodeResult, error) {
	f.record("SearchCode")
	f.mu.Lock()
	f.lastQuery, f.lastLimit = query, limit
	f.mu.Unlock()
	return f.search, nil
}

func (f *fakeProvider) GetFile(_ context.Context, _, _, _ string) (*FileContent, error) {
	f.record("GetFile")
	if f.file == nil {
		return nil, errFakeNotFound
	}
	return f.file, nil
}

func (f *fakeProvider) GetReadme(_ context.Context, _, _ string) (*FileContent, error) {
	f.record("GetReadme")
	if f.readmeErr != nil {
		return nil, f.readmeErr
	}
	if f.readme == nil {
		return nil, errFakeNotFound
	}
	return f.readme, nil
}

func (f *fakeProvider) ListCommits(_ context.Context, _ string, opts CommitListOptions) ([]*Commit, error) {
	f.record("ListCommits")
	f.mu.Lock()
	f.lastCommits = opts
	f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return f.commits, nil
}

func (f *fakeProvider) GetCommit(_ context.Context, _, _ string) (*Commit, error) {
	f.record("GetCommit")
	if f.commit == nil {
		return nil, errFakeNotFound
	}
	return f.commit, nil
}

func (f *fakeProvider) ListPRs(_ context.Context, _, state string, perPage int) ([]*PullRequestSummary, error) {
	f.record("ListPRs")
	f.mu.Lock()
	f.lastState, f.lastPerPage = state, perPage
	f.mu.Unlock()
	return f.prs, nil
}

func (f *fakeProvider) GetPR(_ context.Context, _ string, _ int) (*PullRequest, error) {
	f.record("GetPR")
	if f.pr == nil {
		return nil, errFakeNotFound
	}
	return f.pr, nil
}

func (f *fakeProvider) Blame(_ context.Context, _, _, _ string) (*Blame, error) {
	f.record("Blame")
	if f.blame == nil {
		return nil, errFakeNotFound
	}
	return f.blame, nil
}

// fakeSubject is a fixed Subject.
type fakeSubject struct {
	login string
	name  string
	err   error
}

func (s fakeSubject) SubjectLogin(fallback string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.login == "" {
		return fallback, nil
	}
	return s.login, nil
}

func (s fakeSubject) SubjectName() string { return s.name }
