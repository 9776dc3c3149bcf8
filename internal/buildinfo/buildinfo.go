// Package buildinfo reports folio's version. Release builds stamp the
// variables below with -ldflags; a plain "go install" leaves them at
// their defaults and the commit is read from the embedded VCS info.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

var startTime = time.Now()

// vcs is the revision recorded by the go command, if any.
type vcs struct {
	revision string
	time     string
	modified bool
}

var readVCS = sync.OnceValue(func() vcs {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return vcs{}
	}
	return vcsFromSettings(bi.Settings)
})

func vcsFromSettings(settings []debug.BuildSetting) vcs {
	var v vcs
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time = s.Value
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

// Commit returns the stamped commit, else the short VCS revision with a
// "-dirty" suffix for modified trees, else "unknown".
func Commit() string {
	return commitFrom(GitCommit, readVCS())
}

func commitFrom(stamped string, v vcs) string {
	if stamped != "" {
		return stamped
	}
	if v.revision == "" {
		return "unknown"
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if v.modified {
		rev += "-dirty"
	}
	return rev
}

func builtAt() string {
	if BuildTime != "" {
		return BuildTime
	}
	if t := readVCS().time; t != "" {
		return t
	}
	return "unknown"
}

// Info is served on /v1/version and printed by "folio version".
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": Commit(),
		"build_time": builtAt(),
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(startTime).Truncate(time.Second).String(),
	}
}

// UserAgent is sent on every outbound request made through httpkit.
func UserAgent() string {
	return fmt.Sprintf("folio/%s (+https://github.com/folio-agent/folio)", Version)
}

func String() string {
	return fmt.Sprintf("folio %s (%s) built %s", Version, Commit(), builtAt())
}
