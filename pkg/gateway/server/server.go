// Package server wires the gateway: routes, the middleware chain, and the
// long-lived collaborators every voice session shares.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablevox/tablevox/pkg/core/menu"
	"github.com/tablevox/tablevox/pkg/gateway/config"
	"github.com/tablevox/tablevox/pkg/gateway/geocode"
	"github.com/tablevox/tablevox/pkg/gateway/handlers"
	"github.com/tablevox/tablevox/pkg/gateway/lifecycle"
	"github.com/tablevox/tablevox/pkg/gateway/live/sessions"
	"github.com/tablevox/tablevox/pkg/gateway/metrics"
	"github.com/tablevox/tablevox/pkg/gateway/mw"
	"github.com/tablevox/tablevox/pkg/gateway/payments"
	"github.com/tablevox/tablevox/pkg/gateway/tools"
	"github.com/tablevox/tablevox/pkg/store"
)

const menuCacheTTL = 5 * time.Minute

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Manager
	metrics   *metrics.Metrics

	store       *store.Store
	menuCache   *store.MenuCache
	queue       *store.Queue
	fileCatalog *menu.Catalog
}

// New connects the configured collaborators and builds the routes. A
// collaborator that is configured but unreachable is a startup error; one
// that is simply absent degrades its capability and nothing else.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewManager(cfg.MaxSessionsPerPrincipal),
		metrics:   metrics.New("tablevox"),
	}

	if cfg.DatabaseURL != "" {
		st, err := store.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
		s.queue = store.NewQueue(st, logger, s.metrics, store.QueueConfig{
			Size: cfg.PersistQueueSize,
		})

		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			s.menuCache = store.NewMenuCache(rdb, st, menuCacheTTL, logger)
			if err := s.menuCache.Ping(ctx); err != nil {
				logger.Warn("redis unreachable, menu cache will degrade to postgres reads", "error", err)
			}
		}
	} else if cfg.RedisAddr != "" {
		logger.Warn("redis configured without a database, menu cache disabled")
	}

	if cfg.MenuPath != "" {
		catalog, err := menu.LoadFile(cfg.MenuPath)
		if err != nil {
			return nil, fmt.Errorf("load menu file: %w", err)
		}
		s.fileCatalog = catalog
		logger.Info("menu file loaded", "path", cfg.MenuPath, "dishes", catalog.Len())
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/metrics", s.metrics.Handler())

	var menuSource store.MenuSource
	switch {
	case s.menuCache != nil:
		menuSource = s.menuCache
	case s.store != nil:
		menuSource = s.store
	}

	var geocoder tools.Geocoder
	if s.cfg.GeocoderBaseURL != "" {
		geocoder = geocode.New(s.cfg.GeocoderBaseURL)
	}

	var orders tools.OrderStore
	if s.queue != nil {
		orders = s.queue
	}

	s.mux.Handle("/v1/voice", handlers.VoiceHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Metrics:     s.metrics,
		Lifecycle:   s.lifecycle,
		Sessions:    s.sessions,
		Menu:        menuSource,
		FileCatalog: s.fileCatalog,
		Geocoder:    geocoder,
		Payments:    payments.New(s.cfg.StripeAPIKey),
		Orders:      orders,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness to 503 and makes the voice endpoint refuse
// new sessions.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveSessionsDraining tells every live session the gateway is going
// away and reports how many were told.
func (s *Server) WarnLiveSessionsDraining() int {
	return s.sessions.WarnAll("draining", "server is draining; this session will close shortly")
}

// WaitLiveSessions blocks until every live session ends or ctx expires.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelLiveSessions force-cancels the sessions that outlived the grace
// period.
func (s *Server) CancelLiveSessions() int {
	return s.sessions.CancelAll()
}

// Close releases the collaborators: it drains the write-behind queue until
// ctx expires, then closes the cache and the database pool.
func (s *Server) Close(ctx context.Context) error {
	var firstErr error
	if s.queue != nil {
		if err := s.queue.Close(ctx); err != nil {
			s.logger.Warn("persist queue did not drain fully", "error", err, "remaining", s.queue.Depth())
			firstErr = err
		}
	}
	if s.menuCache != nil {
		if err := s.menuCache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
