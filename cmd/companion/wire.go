package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/example/conference-companion/internal/agenda"
	"github.com/example/conference-companion/internal/application"
	"github.com/example/conference-companion/internal/cache"
	"github.com/example/conference-companion/internal/client"
	"github.com/example/conference-companion/internal/config"
	httptransport "github.com/example/conference-companion/internal/http"
	"github.com/example/conference-companion/internal/logging"
	"github.com/example/conference-companion/internal/persistence/sqlite"
	"github.com/example/conference-companion/internal/realtime"
)

const tokenIssuer = "conference-companion"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	envFile    string
	apiURL     string
	token      string
	eventID    string
}

func (o *rootOptions) load(server bool) (config.Config, error) {
	cfg, err := config.Load(config.Options{EnvFile: o.envFile, ConfigFile: o.configFile, Server: server})
	if err != nil {
		return config.Config{}, err
	}
	if o.apiURL != "" {
		cfg.APIURL = strings.TrimRight(o.apiURL, "/")
	}
	if o.token != "" {
		cfg.APIToken = o.token
	}
	if o.eventID != "" {
		cfg.EventID = o.eventID
	}
	return cfg, nil
}

// commandLogger writes diagnostics to stderr so stdout stays parseable.
func commandLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
}

func newIDGenerator() func() string {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// eventCalendar expands the configured event days. Without an explicit
// start date the event starts on the current day.
func eventCalendar(cfg config.Config, now func() time.Time) (*agenda.DayCalendar, error) {
	start := cfg.EventStart
	if start.IsZero() {
		start = now().In(agenda.EventZone)
	}
	return agenda.NewDayCalendar(start, cfg.EventDays)
}

// store is an open database with its repository adapters.
type store struct {
	pool  *sqlite.ConnectionPool
	repos repositories
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*store, error) {
	dbConfig := sqlite.DefaultConfig(cfg.SQLitePath)
	dbConfig.SkipMigrations = !migrate
	pool, err := sqlite.Open(ctx, dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &store{pool: pool, repos: newRepositories(pool)}, nil
}

func (s *store) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}

func newBroker(cfg config.Config, logger *slog.Logger) (realtime.Broker, error) {
	switch cfg.Broker {
	case config.BrokerAMQP:
		return realtime.NewAMQPBroker(realtime.AMQPConfig{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange}, logger), nil
	case config.BrokerNATS:
		broker, err := realtime.DialNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return broker, nil
	default:
		return realtime.NewLocalBroker(), nil
	}
}

// newLimitsCache prefers Redis and falls back to the in-process cache when
// Redis is not configured or unreachable.
func newLimitsCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (application.LimitsCache, *redis.Client) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryLimits(cfg.LimitsTTL), nil
	}
	rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.LimitsTTL,
	})
	if err != nil {
		logger.WarnContext(ctx, "redis unavailable, using in-process limits cache", "error", err)
		return cache.NewMemoryLimits(cfg.LimitsTTL), nil
	}
	return cache.NewRedisLimits(rdb, "", cfg.LimitsTTL, logger), rdb
}

func loadStaticSpeakers(path string) ([]application.Speaker, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open speakers file: %w", err)
	}
	defer f.Close()
	speakers, err := application.LoadStaticSpeakers(f)
	if err != nil {
		return nil, fmt.Errorf("load speakers file %s: %w", path, err)
	}
	return speakers, nil
}

// serviceDeps are the collaborators shared by the application services.
type serviceDeps struct {
	cfg       config.Config
	cache     application.LimitsCache
	publisher application.ChangePublisher
	static    []application.Speaker
	days      *agenda.DayCalendar
	// signer may be nil for commands that never authenticate.
	signer *application.TokenSigner
	now    func() time.Time
	idGen  func() string
	logger *slog.Logger
}

type services struct {
	auth       *application.AuthService
	users      *application.UserService
	passes     *application.PassService
	quota      *application.QuotaService
	directory  *application.SpeakerDirectory
	requests   *application.MeetingRequestService
	blocks     *application.BlockService
	networking *application.NetworkingService
	agenda     *application.AgendaService
}

func newServices(repos repositories, deps serviceDeps) services {
	if deps.now == nil {
		deps.now = time.Now
	}
	if deps.idGen == nil {
		deps.idGen = newIDGenerator()
	}
	if deps.cache == nil {
		deps.cache = cache.NewMemoryLimits(deps.cfg.LimitsTTL)
	}
	logger := deps.logger

	passes := application.NewPassService(repos.passes, repos.users, logger)
	quota := application.NewQuotaService(repos.requests, passes, deps.cache, deps.cfg.RequestCooldown, deps.now, logger)
	directory := application.NewSpeakerDirectory(repos.speakers, deps.static, deps.cfg.SpeakerLookupTimeout, deps.now, logger)

	svc := services{
		users:     application.NewUserService(repos.users, repos.passes, repos.speakers, application.HashPassword, deps.idGen, deps.now, logger),
		passes:    passes,
		quota:     quota,
		directory: directory,
		requests: application.NewMeetingRequestService(application.MeetingRequestDeps{
			Requests:    repos.requests,
			Speakers:    directory,
			Quota:       quota,
			Passes:      passes,
			Blocks:      repos.blocks,
			Chat:        repos.meetings,
			Publisher:   deps.publisher,
			IDGenerator: deps.idGen,
			Now:         deps.now,
			Logger:      logger,
		}),
		blocks:     application.NewBlockService(repos.blocks, repos.users, deps.publisher, deps.now, logger),
		networking: application.NewNetworkingService(repos.requests, repos.blocks, repos.meetings, logger),
		agenda:     application.NewAgendaService(repos.agenda, deps.days, deps.publisher, deps.now, logger),
	}
	if deps.signer != nil {
		svc.auth = application.NewAuthService(repos.users, deps.signer, application.VerifyPassword, deps.now, logger)
	}
	return svc
}

// server is the fully wired API process.
type server struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store
	broker   realtime.Broker
	relay    *realtime.Relay
	hub      *realtime.Hub
	redis    *redis.Client
	services services
	handler  http.Handler
}

func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (_ *server, err error) {
	if now == nil {
		now = time.Now
	}
	srv := &server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = srv.Close()
		}
	}()

	if srv.store, err = openStore(ctx, cfg, logger, true); err != nil {
		return nil, err
	}
	if srv.broker, err = newBroker(cfg, logger); err != nil {
		return nil, err
	}
	srv.hub = realtime.NewHub(logger)
	srv.relay = realtime.NewRelay(srv.broker, srv.hub, logger)

	static, err := loadStaticSpeakers(cfg.SpeakersFile)
	if err != nil {
		return nil, err
	}
	days, err := eventCalendar(cfg, now)
	if err != nil {
		return nil, err
	}
	signer, err := application.NewTokenSigner([]byte(cfg.JWTSecret), tokenIssuer, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	var limits application.LimitsCache
	limits, srv.redis = newLimitsCache(ctx, cfg, logger)
	srv.services = newServices(srv.store.repos, serviceDeps{
		cfg:       cfg,
		cache:     limits,
		publisher: srv.relay,
		static:    static,
		days:      days,
		signer:    signer,
		now:       now,
		logger:    logger,
	})
	srv.handler = newHandler(srv.services, srv.hub, cfg, logger)
	return srv, nil
}

func newHandler(svc services, hub *realtime.Hub, cfg config.Config, logger *slog.Logger) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:            httptransport.NewAuthHandler(svc.auth, logger),
		Users:           httptransport.NewUserHandler(svc.users, logger),
		Agenda:          httptransport.NewAgendaHandler(svc.agenda, logger),
		MeetingRequests: httptransport.NewMeetingRequestHandler(svc.requests, logger),
		Account:         httptransport.NewAccountHandler(svc.quota, svc.passes, svc.networking, svc.blocks, logger),
		Speakers:        httptransport.NewSpeakerHandler(svc.directory, svc.requests, logger),
		Realtime:        httptransport.NewRealtimeHandler(hub, svc.directory, cfg.AllowedOrigins, logger),
		Authenticate:    httptransport.RequireAuth(svc.auth, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recoverer(logger),
			httptransport.RequestLogger(logger),
		},
	})
}

// Close releases the broker, the cache and the database.
func (s *server) Close() error {
	var errs []error
	if s.hub != nil {
		s.hub.Close()
	}
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// Run serves HTTP, relays broker changes and expires stale requests until
// ctx is cancelled, then shuts the HTTP server down gracefully.
func (s *server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	background, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.relay.Run(background); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("realtime relay stopped", "error", err)
		}
	}()
	go s.expireLoop(background)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	s.logger.Info("companion API listening", "addr", httpServer.Addr, "broker", s.cfg.Broker)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *server) expireLoop(ctx context.Context) {
	if s.cfg.ExpireInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.ExpireInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.services.requests.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("expire stale requests failed", "error", err)
			}
		}
	}
}

// newAPIClient builds the HTTP client used by the attendee and speaker
// commands.
func newAPIClient(cfg config.Config, logger *slog.Logger) (*client.Client, error) {
	return client.New(cfg.APIURL,
		client.WithToken(cfg.APIToken),
		client.WithLogger(logger),
		client.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
}
