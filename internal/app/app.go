// Package app wires all portalvoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the catalog, voices,
// router and HTTP handler; Run serves until the context ends; Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithCatalogStore,
// WithListener, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/portalvoice/internal/catalog"
	"github.com/MrWong99/portalvoice/internal/config"
	"github.com/MrWong99/portalvoice/internal/health"
	"github.com/MrWong99/portalvoice/internal/intent"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/internal/server"
	"github.com/MrWong99/portalvoice/internal/synth"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	level    *slog.LevelVar
	metrics  *observe.Metrics
	promHTTP http.Handler
	listener net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	store    catalog.Store
	voices   *synth.Synthesizer
	router   *intent.Router
	pipeline *synth.Pipeline
	handler  *server.Handler
	server   *server.Server

	// reloadMu serialises hot reloads.
	reloadMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalogStore injects a catalog store instead of creating one from config.
func WithCatalogStore(s catalog.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLevelVar lets hot reloads change the log level through v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics records to m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go via [BuildProviders].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Catalog ───────────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Voices ────────────────────────────────────────────────────────
	if err := a.initVoices(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init voices: %w", err)
	}

	// ── 3. Router + pipeline ─────────────────────────────────────────────
	router, err := intent.New(providers.LLM, a.store, intentConfig(cfg), intent.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init router: %w", err)
	}
	a.router = router
	a.pipeline = synth.NewPipeline(a.voices,
		synth.WithLanguage(cfg.Voice.Language),
		synth.WithPipelineMetrics(a.metrics),
	)

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	probe := health.New(
		health.WithCheck("catalog", health.Catalog(a.store)),
		health.WithCheck("voices", health.Voices(a.voices.Voices)),
	)
	handler, err := server.New(server.Config{
		STT:            providers.STT,
		Router:         a.router,
		Pipeline:       a.pipeline,
		Voices:         a.voices,
		Language:       cfg.Voice.Language,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		STTTimeout:     cfg.Timeouts.STT,
		Metrics:        a.metrics,
		Health:         probe,
		MetricsHandler: a.promHTTP,
	})
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init handler: %w", err)
	}
	a.handler = handler

	var srvOpts []server.ServerOption
	if tls := cfg.Server.TLS; tls != nil {
		srvOpts = append(srvOpts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	a.server = server.NewServer(cfg.Server.ListenAddr, handler.Routes(), srvOpts...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCatalog opens the configured store and loads the seed into it.
func (a *App) initCatalog(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Catalog.PostgresDSN; dsn != "" {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
			pg := catalog.NewPostgresStore(pool)
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			a.store = pg
		} else {
			mem, err := catalog.NewMemStore(nil)
			if err != nil {
				return err
			}
			a.store = mem
		}
	}

	entries, err := seedEntries(a.cfg)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := a.store.Replace(ctx, entries); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	slog.Info("catalog seeded", "entries", len(entries), "seed_file", a.cfg.Catalog.SeedFile)
	return nil
}

// seedEntries returns the seed file entries followed by the inline ones.
func seedEntries(cfg *config.Config) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if path := cfg.Catalog.SeedFile; path != "" {
		seed, err := catalog.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, seed.Entries...)
	}
	entries = append(entries, cfg.Catalog.Entries...)
	if err := catalog.ValidateEntries(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// initVoices registers one synthesis voice per configured TTS provider.
func (a *App) initVoices() error {
	a.voices = synth.New(
		synth.WithTimeout(a.cfg.Timeouts.Synthesis),
		synth.WithMetrics(a.metrics),
	)

	names := make([]string, 0, len(a.providers.TTS))
	for name := range a.providers.TTS {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return errors.New("no tts voices configured")
	}

	for _, name := range names {
		entry := a.cfg.Providers.TTS[name]
		err := a.voices.Register(synth.Voice{
			Name:     name,
			Provider: a.providers.TTS[name],
			Profile: types.VoiceProfile{
				ID:       optString(entry.Options, "voice"),
				Name:     name,
				Provider: entry.Name,
			},
			Language: a.cfg.Voice.Language,
		})
		if err != nil {
			return err
		}
	}
	if def := a.cfg.Voice.Default; def != "" {
		if err := a.voices.SetDefault(def); err != nil {
			return err
		}
	}
	return nil
}

// intentConfig maps the intent section onto router settings. Unset
// temperatures keep the router defaults.
func intentConfig(cfg *config.Config) intent.Config {
	ic := intent.DefaultConfig()
	if p := cfg.Intent.Persona; p != "" {
		ic.Persona = p
	}
	ic.TopicMaxTokens = cfg.Intent.TopicMaxTokens
	ic.AnswerMaxTokens = cfg.Intent.AnswerMaxTokens
	ic.Candidates = cfg.Intent.Candidates
	if t := cfg.Intent.TopicTemperature; t != nil {
		ic.TopicTemperature = *t
	}
	if t := cfg.Intent.AnswerTemperature; t != nil {
		ic.AnswerTemperature = *t
	}
	ic.Timeout = cfg.Timeouts.Chat
	return ic
}

// optString reads a string option, returning "" when absent or mistyped.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP routes. Useful for tests that drive the app with
// httptest.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Voices returns the registered voice names.
func (a *App) Voices() []string {
	return a.voices.Voices()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// Cancellation returns ctx.Err(); call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Serve(ln)
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "voices", a.voices.Voices(), "default_voice", a.voices.Default())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level and the catalog contents. Settings that need a restart are
// logged. It is the [config.Watcher] callback.
func (a *App) ApplyConfig(ctx context.Context, old, new *config.Config) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	for _, key := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "key", key)
	}
	if !d.CatalogChanged {
		return nil
	}

	entries, err := seedEntries(new)
	if err != nil {
		return fmt.Errorf("app: reload catalog: %w", err)
	}
	if err := a.store.Replace(ctx, entries); err != nil {
		return fmt.Errorf("app: reload catalog: %w", err)
	}
	slog.Info("catalog reloaded", "entries", len(entries), "changes", len(d.CatalogChanges))
	return nil
}

// SlogLevel maps a config level onto slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains the HTTP server, then runs the closers in order. If ctx
// expires first, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before failing.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
