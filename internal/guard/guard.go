// Package guard enforces request-level limits before the agent loop
// runs: message and history size, an estimated token budget, prompt
// injection scanning and an hourly request ceiling. A rejected request
// never reaches the model.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind names a guard failure. Kinds are stable and appear in API
// error responses.
type Kind string

const (
	KindEmptyMessage          Kind = "empty_message"
	KindMessageTooLong        Kind = "message_too_long"
	KindHistoryTooLong        Kind = "history_too_long"
	KindHistoryMessageTooLong Kind = "history_message_too_long"
	KindInvalidRole           Kind = "invalid_role"
	KindTokenBudgetExceeded   Kind = "token_budget_exceeded"
	KindRateLimited           Kind = "rate_limited"
	KindPromptInjection       Kind = "prompt_injection"
)

// Violation is returned by Check when a request breaks a limit.
type Violation struct {
	Kind   Kind
	Limit  int
	Actual int
	// Detail carries extra context such as the offending history index
	// or the matched injection patterns.
	Detail string
}

func (v *Violation) Error() string {
	msg := string(v.Kind)
	switch v.Kind {
	case KindEmptyMessage:
		return "message must not be empty"
	case KindInvalidRole:
		return "invalid history role: " + v.Detail
	case KindRateLimited:
		return fmt.Sprintf("request volume limit of %d per hour reached", v.Limit)
	case KindPromptInjection:
		return "message rejected: " + v.Detail
	}
	if v.Limit > 0 {
		msg = fmt.Sprintf("%s: %d exceeds limit %d", msg, v.Actual, v.Limit)
	}
	if v.Detail != "" {
		msg += " (" + v.Detail + ")"
	}
	return msg
}

// Turn is one prior conversation message supplied by the client.
type Turn struct {
	Role    string
	Content string
}

// Policy holds the limits. A zero limit disables that check.
type Policy struct {
	MaxMessageChars        int
	MaxHistoryMessages     int
	MaxHistoryMessageChars int
	MaxEstimatedTokens     int
	HourlyRequestLimit     int
	// InjectionAction is one of off, log, warn or block. Empty means warn.
	InjectionAction string
}

// Guard checks requests against a Policy. It is safe for concurrent use.
type Guard struct {
	policy    Policy
	estimator TokenEstimator
	counter   Counter
	scanner   *InjectionScanner
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithEstimator replaces the default character-based token estimator.
func WithEstimator(e TokenEstimator) Option { return func(g *Guard) { g.estimator = e } }

// WithCounter replaces the in-memory hourly counter.
func WithCounter(c Counter) Option { return func(g *Guard) { g.counter = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Guard) { g.logger = l } }

// WithClock overrides time.Now for bucket selection.
func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

// New creates a Guard.
func New(p Policy, opts ...Option) *Guard {
	g := &Guard{
		policy:    p,
		estimator: CharEstimator{CharsPerToken: DefaultCharsPerToken},
		scanner:   NewInjectionScanner(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.counter == nil {
		g.counter = NewMemoryCounter(g.now)
	}
	if g.policy.InjectionAction == "" {
		g.policy.InjectionAction = ActionWarn
	}
	return g
}

// Policy returns the limits in force.
func (g *Guard) Policy() Policy { return g.policy }

// Check validates a request. The returned error is a *Violation for
// policy failures. The hourly counter is only incremented once every
// other check has passed.
func (g *Guard) Check(ctx context.Context, message string, history []Turn) error {
	p := g.policy

	if strings.TrimSpace(message) == "" {
		return &Violation{Kind: KindEmptyMessage}
	}
	if n := utf8.RuneCountInString(message); p.MaxMessageChars > 0 && n > p.MaxMessageChars {
		return &Violation{Kind: KindMessageTooLong, Limit: p.MaxMessageChars, Actual: n}
	}
	if p.MaxHistoryMessages > 0 && len(history) > p.MaxHistoryMessages {
		return &Violation{Kind: KindHistoryTooLong, Limit: p.MaxHistoryMessages, Actual: len(history)}
	}
	for i, t := range history {
		if n := utf8.RuneCountInString(t.Content); p.MaxHistoryMessageChars > 0 && n > p.MaxHistoryMessageChars {
			return &Violation{
				Kind:   KindHistoryMessageTooLong,
				Limit:  p.MaxHistoryMessageChars,
				Actual: n,
				Detail: fmt.Sprintf("history[%d]", i),
			}
		}
		if t.Role != "user" && t.Role != "assistant" {
			return &Violation{Kind: KindInvalidRole, Detail: fmt.Sprintf("history[%d] has role %q", i, t.Role)}
		}
	}

	if p.MaxEstimatedTokens > 0 {
		total := g.estimator.Estimate(message)
		for _, t := range history {
			total += g.estimator.Estimate(t.Content)
		}
		if total > p.MaxEstimatedTokens {
			return &Violation{Kind: KindTokenBudgetExceeded, Limit: p.MaxEstimatedTokens, Actual: total}
		}
	}

	if err := g.scan(message, history); err != nil {
		return err
	}

	if p.HourlyRequestLimit > 0 {
		now := g.now().UTC()
		count, err := g.counter.Incr(ctx, HourBucket(now), untilRollover(now))
		if err != nil {
			// Fail open when the counter backend is down.
			g.logger.Warn("request counter unavailable, allowing request", "error", err)
			return nil
		}
		if count > int64(p.HourlyRequestLimit) {
			return &Violation{Kind: KindRateLimited, Limit: p.HourlyRequestLimit, Actual: int(count)}
		}
	}
	return nil
}

func (g *Guard) scan(message string, history []Turn) error {
	action := g.policy.InjectionAction
	if action == ActionOff {
		return nil
	}
	matches := g.scanner.Scan(message)
	for _, t := range history {
		if t.Role == "user" {
			matches = appendUnique(matches, g.scanner.Scan(t.Content)...)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	switch action {
	case ActionLog:
		g.logger.Info("possible prompt injection", "patterns", matches)
	case ActionBlock:
		g.logger.Warn("prompt injection blocked", "patterns", matches)
		return &Violation{Kind: KindPromptInjection, Detail: "suspected prompt injection"}
	default:
		g.logger.Warn("possible prompt injection", "patterns", matches)
	}
	return nil
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}

// HourBucket returns the UTC hour key for t, e.g. "2025-03-14T09".
func HourBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

// untilRollover is how long the bucket containing now stays relevant.
func untilRollover(now time.Time) time.Duration {
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now) + time.Minute
}
