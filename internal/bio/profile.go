package bio

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile assembles the professional profile from the bio document and
// optional section files. Section files are YAML or JSON objects; keys
// the bio document sets under "professional" or "personal" override
// the file's.
type Profile struct {
	store            *Store
	professionalFile string
	personalFile     string
}

// NewProfile returns a profile over store. Either file may be empty.
func NewProfile(store *Store, professionalFile, personalFile string) *Profile {
	return &Profile{store: store, professionalFile: professionalFile, personalFile: personalFile}
}

// Build returns {"bio": ..., "professional": ..., "personal": ...}.
// The bio entry excludes the two section keys.
func (p *Profile) Build() (map[string]any, error) {
	doc, err := p.store.Get(nil)
	if err != nil {
		return nil, err
	}

	professional, err := section(p.professionalFile, doc["professional"])
	if err != nil {
		return nil, err
	}
	personal, err := section(p.personalFile, doc["personal"])
	if err != nil {
		return nil, err
	}

	rest := maps.Clone(doc)
	delete(rest, "professional")
	delete(rest, "personal")

	return map[string]any{
		"bio":          rest,
		"professional": professional,
		"personal":     personal,
	}, nil
}

func section(path string, overlay any) (map[string]any, error) {
	out := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read profile section: %w", err)
		default:
			if err := yaml.Unmarshal(data, &out); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			if out == nil {
				out = map[string]any{}
			}
		}
	}
	if m, ok := overlay.(map[string]any); ok {
		maps.Copy(out, m)
	}
	return out, nil
}

// SubjectLogin returns the subject's GitHub login: the bio's
// "github_username", then "github" when it is a bare login or a
// github.com URL, then fallback.
func (s *Store) SubjectLogin(fallback string) (string, error) {
	doc, err := s.Get([]string{"github_username", "github"})
	if err != nil {
		return "", err
	}
	if v, _ := doc["github_username"].(string); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	if v, _ := doc["github"].(string); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		for _, prefix := range []string{"https://github.com/", "http://github.com/", "github.com/"} {
			v = strings.TrimPrefix(v, prefix)
		}
		if login := strings.Trim(v, "/@"); login != "" && !strings.Contains(login, "/") {
			return login, nil
		}
	}
	return fallback, nil
}

// SubjectName returns the bio's "name" value, or "".
func (s *Store) SubjectName() string {
	doc, err := s.Get([]string{"name"})
	if err != nil {
		return ""
	}
	name, _ := doc["name"].(string)
	return strings.TrimSpace(name)
}

// Website returns the first of "website", "site" or "url" that holds a
// non-empty string.
func (s *Store) Website() (string, error) {
	keys := []string{"website", "site", "url"}
	doc, err := s.Get(keys)
	if err != nil {
		return "", err
	}
	for _, k := range keys {
		if v, _ := doc[k].(string); strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}
