package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/blogportal/internal/authclient"
	"github.com/2beens/blogportal/internal/backend"
	"github.com/2beens/blogportal/internal/cache"
	"github.com/2beens/blogportal/internal/config"
	"github.com/2beens/blogportal/internal/middleware"
	"github.com/2beens/blogportal/internal/session"
	"github.com/2beens/blogportal/internal/telemetry/metrics"
	"github.com/2beens/blogportal/internal/telemetry/tracing"
	"github.com/2beens/blogportal/internal/web"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"
)

const (
	memoryStoreSizeMB    = 16
	sessionsScanInterval = time.Hour
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config      *config.Config
	redisClient *redis.Client
	provider    *session.Provider
	portal      *web.Portal

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("portal", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "blogportal")
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	// redis backs the session store in production and the login rate limiter
	var rdb *redis.Client
	if cfg.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})
		rdb.AddHook(redisotel.NewTracingHook())

		rdbStatus := rdb.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	var store session.Store
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		redisStore := session.NewRedisStore(rdb, cfg.SessionTTL())
		go scanSessions(ctx, redisStore)
		store = redisStore
	default:
		log.Warnln("using in-memory session store, sessions are lost on restart")
		store = session.NewMemoryStore(memoryStoreSizeMB, cfg.SessionTTL())
	}

	api := backend.NewClient(cfg.ApiBaseURL, cfg.ApiTimeout(), metricsManager)

	provider := session.NewProvider(session.ProviderParams{
		Store:         store,
		Authenticator: authclient.New(api, store, metricsManager),
		CookieName:    cfg.SessionCookieName,
		CookieSecure:  cfg.SessionCookieSecure,
		CookieMaxAge:  cfg.SessionTTL(),
		HydrationWait: cfg.HydrationWait(),
		MachineOptions: []session.MachineOption{
			session.WithTransitionHook(func(_, to session.State) {
				metricsManager.CounterSessionTransitions.WithLabelValues(to.String()).Inc()
			}),
		},
		OnClientsChanged: func(count int) {
			metricsManager.GaugeClients.Set(float64(count))
		},
	})

	var rateLimiter middleware.RequestRateLimiter
	if rdb != nil {
		rateLimiter = redis_rate.NewLimiter(rdb)
	} else {
		log.Warnln("redis not configured, login endpoints are not rate limited")
	}

	portal, err := web.NewPortal(web.PortalParams{
		Api:                  api,
		Posts:                cache.NewPostsCache(api, cache.NewFreeCache(cfg.PostsCacheSizeMB), cfg.PostsCacheTTL()),
		MetricsManager:       metricsManager,
		RateLimiter:          rateLimiter,
		LoginRateLimitPerMin: cfg.LoginRateLimitAllowedPerMin,
		RssFeedURL:           cfg.RssFeedURL,
	})
	if err != nil {
		return nil, fmt.Errorf("new portal: %w", err)
	}

	return &Server{
		config:      cfg,
		redisClient: rdb,
		provider:    provider,
		portal:      portal,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

// scanSessions periodically purges stored sessions whose token expired.
func scanSessions(ctx context.Context, store *session.RedisStore) {
	ticker := time.NewTicker(sessionsScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.ScanAndClean(ctx); removed > 0 {
				log.Debugf("sessions scan: %d stale sessions removed", removed)
			}
		}
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("portal-router"))

	r.Use(middleware.RequestID())
	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.DrainAndCloseRequest())
	r.Use(s.provider.Middleware())

	s.portal.SetupRoutes(r)

	return r
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("portal service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// GracefulShutdown stops the http servers and releases all clients. It
// returns every error met on the way.
func (s *Server) GracefulShutdown() error {
	log.Debug("graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown http server: %w", shutdownErr))
		}
		log.Warnln("server shut down")
	}
	if s.metricsHttpServer != nil {
		if shutdownErr := s.metricsHttpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("shutdown metrics http server: %w", shutdownErr))
		}
		log.Warnln("metrics server shut down")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if closeErr := s.redisClient.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close redis client: %w", closeErr))
		}
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	return err
}
