package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const blameQuery = `query Blame($owner: String!, $repo: String!, $path: String!, $ref: String!) {
  repository(owner: $owner, name: $repo) {
    object(expression: $ref) {
      ... on Commit {
        blame(path: $path) {
          ranges {
            startingLine
            endingLine
            commit {
              oid
              messageHeadline
              url
              author { name email date user { login } }
            }
          }
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type blameResponse struct {
	Data struct {
		Repository *struct {
			Object *struct {
				Blame *struct {
					Ranges []struct {
						StartingLine int `json:"startingLine"`
						EndingLine   int `json:"endingLine"`
						Commit       struct {
							OID             string `json:"oid"`
							MessageHeadline string `json:"messageHeadline"`
							URL             string `json:"url"`
							Author          struct {
								Name  string `json:"name"`
								Email string `json:"email"`
								Date  string `json:"date"`
								User  *struct {
									Login string `json:"login"`
								} `json:"user"`
							} `json:"author"`
						} `json:"commit"`
					} `json:"ranges"`
				} `json:"blame"`
			} `json:"object"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Blame runs the GraphQL blame query through the REST client so it
// shares authentication, rate-limit handling and the transport. An
// empty ref means HEAD.
func (g *GitHub) Blame(ctx context.Context, repo, path, ref string) (*Blame, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = "HEAD"
	}
	path = strings.TrimPrefix(path, "/")

	req, err := g.client.NewRequest(http.MethodPost, g.graphqlURL, &graphqlRequest{
		Query: blameQuery,
		Variables: map[string]any{
			"owner": owner,
			"repo":  name,
			"path":  path,
			"ref":   ref,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("forge: build blame request: %w", err)
	}

	var out blameResponse
	resp, err := g.client.Do(ctx, req, &out)
	if err != nil {
		return nil, fmt.Errorf("forge: blame %s in %s: %w", path, repo, err)
	}
	g.checkRateLimit(resp)

	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("forge: blame %s in %s: %s", path, repo, strings.Join(msgs, "; "))
	}
	r := out.Data.Repository
	if r == nil {
		return nil, fmt.Errorf("forge: repository %s not found", repo)
	}
	if r.Object == nil || r.Object.Blame == nil {
		return nil, errors.New("forge: ref " + ref + " does not resolve to a commit")
	}

	blame := &Blame{Repository: repo, Path: path, Ref: ref, Ranges: make([]BlameRange, 0, len(r.Object.Blame.Ranges))}
	for _, rg := range r.Object.Blame.Ranges {
		c := rg.Commit
		br := BlameRange{
			Start: rg.StartingLine,
			End:   rg.EndingLine,
			Commit: BlameCommit{
				SHA:         c.OID,
				Message:     c.MessageHeadline,
				AuthorEmail: c.Author.Email,
				AuthorName:  c.Author.Name,
				Date:        c.Author.Date,
				URL:         c.URL,
			},
		}
		if c.Author.User != nil {
			br.Commit.AuthorLogin = c.Author.User.Login
		}
		blame.Ranges = append(blame.Ranges, br)
	}
	return blame, nil
}
