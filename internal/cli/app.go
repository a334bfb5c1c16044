package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/cloud/gcp"
	"github.com/andywolf/oracle/internal/config"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/llm"
	"github.com/andywolf/oracle/internal/observability"
	"github.com/andywolf/oracle/internal/persona"
	"github.com/andywolf/oracle/internal/security"
	"github.com/andywolf/oracle/internal/social"
	"github.com/andywolf/oracle/internal/state"
	"github.com/andywolf/oracle/internal/trends"
	"github.com/andywolf/oracle/internal/version"
)

const shutdownTimeout = 10 * time.Second

// app holds the collaborators shared by the commands. Parts are built on
// demand so that, for example, `oracle status` never needs an API key.
type app struct {
	cfg       *config.Config
	persona   *persona.Persona
	sessionID string

	sanitizer   *security.LogSanitizer
	secrets     gcp.SecretFetcher
	output      io.Writer
	cloudLogger gcp.LoggerInterface
	routed      bool // output writes through cloudLogger
	logger      *log.Logger

	client   *social.Client
	activity *activity.Log
	tracer   observability.Tracer

	closers []func(context.Context) error
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp loads the persona and sets up logging.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		sessionID: fmt.Sprintf("oracle-%s", uuid.NewString()[:8]),
		sanitizer: security.NewLogSanitizer(),
		output:    os.Stdout,
	}
	a.secrets = &lazySecrets{}
	a.addCloser(func(context.Context) error { return a.secrets.Close() })

	if err := a.initLogging(ctx); err != nil {
		return nil, err
	}

	p, err := loadPersona(cfg)
	if err != nil {
		return nil, err
	}
	a.persona = p
	return a, nil
}

func loadPersona(cfg *config.Config) (*persona.Persona, error) {
	var (
		p   *persona.Persona
		err error
	)
	if cfg.Persona.Dir != "" {
		p, err = persona.LoadDir(cfg.Persona.Dir)
	} else {
		p, err = persona.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}
	p = p.WithHandle(cfg.Persona.Handle)
	if err := p.Require(cfg.PersonaTemplatesUsed()...); err != nil {
		return nil, err
	}
	return p, nil
}

// initLogging sets up the structured logger. In json format the component
// loggers write through it; in text format they write to stdout and the
// structured logger exists only when a GCP project is configured.
func (a *app) initLogging(ctx context.Context) error {
	opts := gcp.LoggerOptions{
		ProjectID: a.cfg.Logging.GCPProject,
		LogID:     a.cfg.Logging.LogID,
		SessionID: a.sessionID,
		Labels:    map[string]string{"persona": a.personaLabel()},
		Sanitizer: a.sanitizer,
	}

	switch {
	case a.cfg.Logging.Format == "json":
		if opts.ProjectID == "" {
			opts.Writer = os.Stderr
		}
		l, err := gcp.NewLogger(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		a.cloudLogger = l
		if w, ok := l.(io.Writer); ok {
			a.output = w
			a.routed = true
		}
	case opts.ProjectID != "":
		l, err := gcp.NewLogger(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		a.cloudLogger = l
	}

	if a.cloudLogger != nil {
		cl := a.cloudLogger
		a.addCloser(func(context.Context) error { return cl.Close() })
	}
	a.logger = a.componentLogger("oracle")
	return nil
}

// passLogger is the structured logger the monitor writes to alongside its
// component logger. It is nil when component output already goes through
// the structured logger, so entries are not written twice.
func (a *app) passLogger() gcp.LoggerInterface {
	if a.routed {
		return nil
	}
	return a.cloudLogger
}

func (a *app) componentLogger(name string) *log.Logger {
	return log.New(a.output, "["+name+"] ", log.LstdFlags)
}

func (a *app) personaLabel() string {
	if a.cfg.Persona.Name != "" {
		return a.cfg.Persona.Name
	}
	if a.persona != nil {
		return a.persona.Name
	}
	return ""
}

// resolve returns value, or the secret at secretPath when value is empty.
// Resolved secrets are registered with the sanitizer.
func (a *app) resolve(ctx context.Context, value, secretPath string) (string, error) {
	v, err := gcp.ResolveSecret(ctx, a.secrets, value, secretPath)
	if err != nil {
		return "", err
	}
	a.sanitizer.AddLiteral(v)
	return v, nil
}

// platform returns the social client, resolving the bearer token once.
func (a *app) platform(ctx context.Context) (*social.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	token, err := a.resolve(ctx, a.cfg.Platform.BearerToken, a.cfg.Platform.BearerTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("platform token: %w", err)
	}
	if token == "" && !a.cfg.Platform.DryRun {
		return nil, fmt.Errorf("platform bearer token is not configured (set ORACLE_PLATFORM_BEARER_TOKEN or platform.bearer_token_secret)")
	}
	a.client = social.NewClient(token,
		social.WithBaseURL(a.cfg.Platform.BaseURL),
		social.WithMaxPages(a.cfg.Platform.MaxPages),
		social.WithUserAgent(version.UserAgent()),
	)
	return a.client, nil
}

// publisher returns the sink for generated content. Dry runs log instead of
// posting.
func (a *app) publisher(ctx context.Context) (social.Publisher, error) {
	if a.cfg.Platform.DryRun {
		return newDryRunPublisher(a.componentLogger("dry-run")), nil
	}
	return a.platform(ctx)
}

// activityLog opens the activity log once.
func (a *app) activityLog() (*activity.Log, error) {
	if a.activity != nil {
		return a.activity, nil
	}
	l, err := activity.Open(a.cfg.Activity.Path)
	if err != nil {
		return nil, err
	}
	a.activity = l
	a.addCloser(func(context.Context) error { return l.Close() })
	return l, nil
}

// stateStore returns Postgres when a database URL is configured, otherwise
// the JSON file store.
func (a *app) stateStore(ctx context.Context) (state.Store, error) {
	if a.cfg.State.DatabaseURL == "" {
		return state.NewFileStore(a.cfg.State.Path), nil
	}
	a.sanitizer.AddLiteral(a.cfg.State.DatabaseURL)
	pg, err := state.NewPostgresStore(ctx, a.cfg.State.DatabaseURL, a.cfg.Monitor.Key)
	if err != nil {
		return nil, err
	}
	a.addCloser(func(context.Context) error {
		pg.Close()
		return nil
	})
	return pg, nil
}

// langfuse resolves the Langfuse keys: environment first, then Secret
// Manager. It returns nil when tracing is not configured.
func (a *app) langfuse(ctx context.Context) *observability.LangfuseTracer {
	lf := a.cfg.Langfuse
	publicKey, err := a.resolve(ctx, lf.PublicKey, lf.PublicKeySecret)
	if err != nil {
		a.logger.Printf("Warning: Langfuse public key unavailable, tracing disabled: %v", err)
		return nil
	}
	secretKey, err := a.resolve(ctx, lf.SecretKey, lf.SecretKeySecret)
	if err != nil {
		a.logger.Printf("Warning: Langfuse secret key unavailable, tracing disabled: %v", err)
		return nil
	}
	if publicKey == "" || secretKey == "" {
		return nil
	}

	return observability.NewLangfuseTracer(observability.LangfuseConfig{
		PublicKey: publicKey,
		SecretKey: secretKey,
		BaseURL:   lf.BaseURL,
	}, a.componentLogger("langfuse"))
}

// tracerFor returns the configured tracer, or a no-op tracer.
func (a *app) tracerFor(ctx context.Context) observability.Tracer {
	if a.tracer != nil {
		return a.tracer
	}
	if lt := a.langfuse(ctx); lt != nil {
		a.logger.Printf("Langfuse: tracing to %s", lt.BaseURL())
		a.tracer = lt
		a.addCloser(lt.Stop)
	} else {
		a.tracer = observability.NoOpTracer{}
	}
	return a.tracer
}

// contextProvider builds the trends and recent-posts context. Recent posts
// come from the activity log unless trends.recent_from is "platform".
func (a *app) contextProvider(ctx context.Context, live bool) (*trends.ContextProvider, error) {
	p := trends.NewContextProvider(a.persona.Handle)
	p.Fallback = a.cfg.Trends.Static
	p.RecentLimit = a.cfg.Trends.RecentLimit
	p.Logger = a.componentLogger("trends")

	if !live {
		return p, nil
	}

	if a.cfg.Trends.RecentFrom == "platform" || a.cfg.Trends.WOEID != 0 {
		client, err := a.platform(ctx)
		if err != nil {
			return nil, err
		}
		if a.cfg.Trends.WOEID != 0 {
			p.Trends = client
			p.WOEID = a.cfg.Trends.WOEID
		}
		if a.cfg.Trends.RecentFrom == "platform" {
			p.Posts = client
		}
	}
	if p.Posts == nil {
		l, err := a.activityLog()
		if err != nil {
			return nil, err
		}
		p.Posts = l
	}
	return p, nil
}

// dispatcher builds the generation backend and the dispatcher over it.
func (a *app) dispatcher(ctx context.Context, provider trends.Provider) (*generate.Dispatcher, error) {
	apiKey, err := a.resolve(ctx, a.cfg.LLM.APIKey, a.cfg.LLM.APIKeySecret)
	if err != nil {
		return nil, fmt.Errorf("llm api key: %w", err)
	}
	backend, err := llm.New(ctx, apiKey, a.persona, llm.Config{
		Models:          a.cfg.LLM.Models,
		Temperature:     a.cfg.LLM.Temperature,
		MaxOutputTokens: a.cfg.LLM.MaxOutputTokens,
		Timeout:         a.cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation backend: %w", err)
	}
	backend.SetLogger(a.componentLogger("llm"))
	backend.SetTracer(a.tracerFor(ctx))

	return generate.NewDispatcher(backend, provider, generate.Config{
		PersonaName:        a.persona.Name,
		ReplyTemplate:      a.cfg.Templates.Reply,
		AutonomousTemplate: a.cfg.Templates.Autonomous,
		ChatTemplate:       a.cfg.Templates.Chat,
		Commands:           a.cfg.Templates.Commands,
	}), nil
}

func (a *app) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// lazySecrets opens the Secret Manager client on first use, so runs that
// take every secret from the environment never need GCP credentials.
type lazySecrets struct {
	once   sync.Once
	client *gcp.SecretManagerClient
	err    error

	// newClient is replaced in tests.
	newClient func(ctx context.Context) (*gcp.SecretManagerClient, error)
}

func (s *lazySecrets) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	s.once.Do(func() {
		newClient := s.newClient
		if newClient == nil {
			newClient = func(ctx context.Context) (*gcp.SecretManagerClient, error) {
				return gcp.NewSecretManagerClient(ctx, "")
			}
		}
		s.client, s.err = newClient(ctx)
	})
	if s.err != nil {
		return "", fmt.Errorf("secret manager unavailable: %w", s.err)
	}
	return s.client.FetchSecret(ctx, secretPath)
}

func (s *lazySecrets) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
