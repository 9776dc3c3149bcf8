package forge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cachedProvider memoizes successful Provider reads for a short TTL.
// Cached values are shared between callers and must not be mutated.
type cachedProvider struct {
	next  Provider
	cache *expirable.LRU[string, any]
}

// WithCache wraps p with an expiring LRU of at most size entries. A
// non-positive ttl or size returns p unchanged.
func WithCache(p Provider, size int, ttl time.Duration) Provider {
	if ttl <= 0 || size <= 0 {
		return p
	}
	return &cachedProvider{next: p, cache: expirable.NewLRU[string, any](size, nil, ttl)}
}

func cacheKey(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}

func cached[T any](c *cachedProvider, key string, fetch func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *cachedProvider) ListRepos(ctx context.Context, user string) ([]*Repo, error) {
	return cached(c, cacheKey("repos", user), func() ([]*Repo, error) {
		return c.next.ListRepos(ctx, user)
	})
}

func (c *cachedProvider) SearchCode(ctx context.Context, query string, limit int) ([]*CodeResult, error) {
	return cached(c, cacheKey("search", query, limit), func() ([]*CodeResult, error) {
		return c.next.SearchCode(ctx, query, limit)
	})
}

func (c *cachedProvider) GetFile(ctx context.Context, repo, path, ref string) (*FileContent, error) {
	return cached(c, cacheKey("file", repo, path, ref), func() (*FileContent, error) {
		return c.next.GetFile(ctx, repo, path, ref)
	})
}

func (c *cachedProvider) GetReadme(ctx context.Context, repo, ref string) (*FileContent, error) {
	return cached(c, cacheKey("readme", repo, ref), func() (*FileContent, error) {
		return c.next.GetReadme(ctx, repo, ref)
	})
}

func (c *cachedProvider) ListCommits(ctx context.Context, repo string, opts CommitListOptions) ([]*Commit, error) {
	key := cacheKey("commits", repo, opts.Author, opts.Path, opts.Since.Unix(), opts.Until.Unix(), opts.PerPage)
	return cached(c, key, func() ([]*Commit, error) {
		return c.next.ListCommits(ctx, repo, opts)
	})
}

func (c *cachedProvider) GetCommit(ctx context.Context, repo, sha string) (*Commit, error) {
	return cached(c, cacheKey("commit", repo, sha), func() (*Commit, error) {
		return c.next.GetCommit(ctx, repo, sha)
	})
}

func (c *cachedProvider) ListPRs(ctx context.Context, repo, state string, perPage int) ([]*PullRequestSummary, error) {
	return cached(c, cacheKey("prs", repo, state, perPage), func() ([]*PullRequestSummary, error) {
		return c.next.ListPRs(ctx, repo, state, perPage)
	})
}

func (c *cachedProvider) GetPR(ctx context.Context, repo string, number int) (*PullRequest, error) {
	return cached(c, cacheKey("pr", repo, number), func() (*PullRequest, error) {
		return c.next.GetPR(ctx, repo, number)
	})
}

func (c *cachedProvider) Blame(ctx context.Context, repo, path, ref string) (*Blame, error) {
	return cached(c, cacheKey("blame", repo, path, ref), func() (*Blame, error) {
		return c.next.Blame(ctx, repo, path, ref)
	})
}
