package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/folio-agent/folio/internal/agent"
	"github.com/folio-agent/folio/internal/bio"
	"github.com/folio-agent/folio/internal/config"
	"github.com/folio-agent/folio/internal/connwatch"
	"github.com/folio-agent/folio/internal/fetch"
	"github.com/folio-agent/folio/internal/forge"
	"github.com/folio-agent/folio/internal/guard"
	"github.com/folio-agent/folio/internal/httpkit"
	"github.com/folio-agent/folio/internal/llm"
	"github.com/folio-agent/folio/internal/prompts"
	"github.com/folio-agent/folio/internal/tools"
	"github.com/folio-agent/folio/internal/tracing"
	"github.com/folio-agent/folio/internal/usage"
)

// app holds every long-lived component built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tools.Registry
	loop     *agent.Loop
	guard    *guard.Guard
	usage    *usage.Store
	llm      llm.Router
	github   *forge.GitHub

	closers []func(context.Context) error
}

// newApp wires the components described by cfg. Callers must call
// close when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sample_ratio", cfg.Tracing.SampleRatio)
	}

	store := bio.NewStore(cfg.Bio.Path)
	profile := bio.NewProfile(store, cfg.Bio.ProfessionalFile, cfg.Bio.PersonalFile)

	subject := cfg.Agent.SubjectName
	if subject == "" {
		subject = store.SubjectName()
	}

	a.github, err = forge.NewGitHub(httpkit.NewClient(httpkit.WithTimeout(30*time.Second)), cfg.GitHub.Token, cfg.GitHub.URL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("github.token not set, GitHub requests are unauthenticated and heavily rate limited")
	}
	provider := forge.WithCache(a.github, cfg.GitHub.CacheSize, cfg.GitHub.CacheTTL)
	forgeTools := forge.NewTools(provider, store, forge.ToolsConfig{
		DefaultUser:        cfg.GitHub.User,
		LoginCaseSensitive: cfg.GitHub.LoginCaseSensitive,
	}, logger)

	a.registry, err = tools.Builtin(tools.Deps{
		Bio:     store,
		Profile: profile,
		Forge:   forgeTools,
		Fetcher: fetch.New(),
		Web: tools.WebConfig{
			DefaultURL: cfg.Website.DefaultURL,
			MaxChars:   cfg.Website.MaxChars,
		},
		Subject: subject,
	})
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}

	systemPrompt, err := prompts.LoadSystemPrompt(cfg.Agent.SystemPromptFile, subject)
	if err != nil {
		return nil, err
	}

	a.guard, err = a.newGuard()
	if err != nil {
		return nil, err
	}

	opts := []agent.Option{agent.WithLogger(logger)}
	if cfg.Usage.Enabled {
		dbPath := filepath.Join(cfg.DataDir, "usage.db")
		a.usage, err = usage.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("usage store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.usage.Close() })
		opts = append(opts, agent.WithUsageRecorder(&usageRecorder{
			store:  a.usage,
			cfg:    cfg,
			logger: logger,
		}))
		logger.Info("usage tracking enabled", "path", dbPath)
	}

	a.llm = createLLMClient(cfg, logger)
	a.loop = agent.NewLoop(agent.Config{
		Model:                cfg.Models.Default,
		MaxHops:              cfg.Agent.MaxHops,
		Timeout:              cfg.Agent.RequestTimeout,
		MaxToolCalls:         cfg.Agent.MaxToolCalls,
		MaxToolArgumentBytes: cfg.Agent.MaxToolArgumentBytes,
		SystemPrompt:         systemPrompt,
	}, a.llm, tools.NewDispatcher(a.registry, logger), opts...)

	logger.Info("agent ready",
		"model", cfg.Models.Default,
		"provider", a.llm.ProviderFor(cfg.Models.Default),
		"tools", len(a.registry.Names()),
		"subject", subject,
		"demo", cfg.DemoMode,
	)
	return a, nil
}

func (a *app) newGuard() (*guard.Guard, error) {
	g := a.cfg.Guard
	opts := []guard.Option{guard.WithLogger(a.logger)}

	switch g.TokenEstimator {
	case "tiktoken":
		opts = append(opts, guard.WithEstimator(guard.NewTiktokenEstimator("", a.logger)))
	default:
		opts = append(opts, guard.WithEstimator(guard.CharEstimator{CharsPerToken: g.CharsPerToken}))
	}

	if g.Counter == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
		opts = append(opts, guard.WithCounter(guard.NewRedisCounter(rdb, a.cfg.Redis.KeyPrefix)))
		a.logger.Info("hourly request counter uses redis", "addr", a.cfg.Redis.Addr)
	}

	return guard.New(guard.Policy{
		MaxMessageChars:        g.MaxMessageChars,
		MaxHistoryMessages:     g.MaxHistoryMessages,
		MaxHistoryMessageChars: g.MaxHistoryMessageChars,
		MaxEstimatedTokens:     g.MaxEstimatedTokens,
		HourlyRequestLimit:     g.HourlyRequestLimit,
		InjectionAction:        g.InjectionAction,
	}, opts...), nil
}

// watchServices starts background reachability probes for the model
// provider and GitHub. Demo mode calls no provider, so only GitHub is
// watched.
func (a *app) watchServices(ctx context.Context) *connwatch.Manager {
	m := connwatch.NewManager(a.logger)
	if !a.cfg.DemoMode {
		m.Watch(ctx, "llm", a.llm.Ping, connwatch.DefaultBackoff())
	}
	m.Watch(ctx, "github", a.github.Ping, connwatch.DefaultBackoff())
	return m
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// createLLMClient builds a multi-provider client. Models listed under
// models.available route to their provider; everything else goes to
// models.provider. Providers without credentials are still registered
// and fail with llm.ErrNotConfigured when used.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Router {
	if cfg.DemoMode {
		logger.Warn("demo mode: replies are echoes and no model provider is called")
		return llm.DemoClient{}
	}

	gen := llm.GenerationOptions{
		Temperature: cfg.Models.Temperature,
		MaxTokens:   cfg.Models.MaxOutputTokens,
	}
	clients := map[string]llm.Client{
		"openai":    llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, gen, nil, logger),
		"anthropic": llm.NewAnthropicClient(cfg.Anthropic.APIKey, gen, logger),
		"ollama":    llm.NewOllamaClient(cfg.Ollama.URL, gen, logger),
	}

	multi := llm.NewMultiClient(cfg.Models.Provider)
	for name, c := range clients {
		multi.AddProvider(name, c)
	}
	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}

	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", cfg.Models.Provider)
	return multi
}

// usageRecorder persists per-hop usage with its computed cost.
type usageRecorder struct {
	store  *usage.Store
	cfg    *config.Config
	logger *slog.Logger
}

func (r *usageRecorder) Record(ctx context.Context, u agent.Usage) error {
	cost := usage.ComputeCost(u.Model, u.InputTokens, u.OutputTokens, r.cfg.Usage.Pricing)
	r.logger.Debug("usage recorded",
		"request_id", u.RequestID,
		"hop", u.Hop,
		"model", u.Model,
		"provider", u.Provider,
		"input_tokens", u.InputTokens,
		"output_tokens", u.OutputTokens,
		"cost_usd", cost,
	)
	return r.store.Record(ctx, usage.Record{
		Timestamp:    u.Timestamp,
		RequestID:    u.RequestID,
		Hop:          u.Hop,
		Model:        u.Model,
		Provider:     u.Provider,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostUSD:      cost,
	})
}
