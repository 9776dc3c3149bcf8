package forge

import (
	"context"
	"testing"
	"time"
)

func TestWithCache_Disabled(t *testing.T) {
	fake := &fakeProvider{}
	if got := WithCache(fake, 0, time.Minute); got != Provider(fake) {
		t.Error("size 0 should return the provider unchanged")
	}
	if got := WithCache(fake, 10, 0); got != Provider(fake) {
		t.Error("ttl 0 should return the provider unchanged")
	}
}

func TestWithCache_MemoizesByArguments(t *testing.T) {
	fake := &fakeProvider{repos: []*Repo{{Name: "hello"}}}
	p := WithCache(fake, 16, time.Minute)
	ctx := context.Background()

	for range 3 {
		repos, err := p.ListRepos(ctx, "octo")
		if err != nil || len(repos) != 1 {
			t.Fatalf("ListRepos = %v, %v", repos, err)
		}
	}
	if n := fake.callCount("ListRepos"); n != 1 {
		t.Errorf("ListRepos upstream calls = %d, want 1", n)
	}

	if _, err := p.ListRepos(ctx, "hubot"); err != nil {
		t.Fatal(err)
	}
	if n := fake.callCount("ListRepos"); n != 2 {
		t.Errorf("different user should miss the cache, calls = %d", n)
	}
}

func TestWithCache_DoesNotCacheErrors(t *testing.T) {
	fake := &fakeProvider{}
	p := WithCache(fake, 16, time.Minute)
	ctx := context.Background()

	if _, err := p.GetFile(ctx, "octo/hello", "main.go", ""); err == nil {
		t.Fatal("expected error")
	}
	fake.file = &FileContent{Path: "main.go", Content: "package main"}
	f, err := p.GetFile(ctx, "octo/hello", "main.go", "")
	if err != nil || f.Content != "package main" {
		t.Fatalf("GetFile after recovery = %v, %v", f, err)
	}
	if n := fake.callCount("GetFile"); n != 2 {
		t.Errorf("GetFile upstream calls = %d, want 2", n)
	}
}

func TestWithCache_CommitOptionsInKey(t *testing.T) {
	fake := &fakeProvider{commits: []*Commit{{SHA: "c1"}}}
	p := WithCache(fake, 16, time.Minute)
	ctx := context.Background()

	p.ListCommits(ctx, "octo/hello", CommitListOptions{Author: "octo", PerPage: 30})
	p.ListCommits(ctx, "octo/hello", CommitListOptions{Author: "octo", PerPage: 30})
	p.ListCommits(ctx, "octo/hello", CommitListOptions{Author: "octo", PerPage: 50})
	if n := fake.callCount("ListCommits"); n != 2 {
		t.Errorf("ListCommits upstream calls = %d, want 2", n)
	}
}

func TestWithCache_Expires(t *testing.T) {
	fake := &fakeProvider{pr: &PullRequest{PullRequestSummary: PullRequestSummary{Number: 1}}}
	p := WithCache(fake, 16, 20*time.Millisecond)
	ctx := context.Background()

	p.GetPR(ctx, "octo/hello", 1)
	time.Sleep(60 * time.Millisecond)
	p.GetPR(ctx, "octo/hello", 1)
	if n := fake.callCount("GetPR"); n != 2 {
		t.Errorf("GetPR upstream calls = %d, want 2 after expiry", n)
	}
}
