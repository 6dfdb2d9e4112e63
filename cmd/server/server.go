package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/config"
	"github.com/thereayou/roomchat/internal/database"
	"github.com/thereayou/roomchat/internal/handlers"
	"github.com/thereayou/roomchat/internal/media"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
	"github.com/thereayou/roomchat/pkg/auth"
)

// store is everything the server needs from a storage backend.
type store interface {
	services.MessageStore
	services.RoomStore
	services.UserStore
}

type Server struct {
	cfg    config.Config
	log    *logrus.Logger
	http   *http.Server
	hub    *websocket.Hub
	redis  *redis.Client
	closer func() error
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func openStore(cfg config.Config) (store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return database.NewMemoryStore(), func() error { return nil }, nil
	default:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		return db, db.Close, nil
	}
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return rdb, nil
}

func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	log := newLogger(cfg)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	rdb, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		closeStore()
		return nil, err
	}

	var (
		blacklist services.TokenBlacklist
		presence  websocket.Presence
		online    handlers.OnlineLister
	)
	if rdb != nil {
		redisPresence := services.NewRedisPresence(rdb, cfg.PresenceTTL)
		blacklist = services.NewRedisBlacklist(rdb)
		presence = redisPresence
		online = redisPresence
	} else {
		log.Warn("REDIS_URL not set: token revocation and presence are local to this instance")
		blacklist = services.NewMemoryBlacklist()
	}

	hub := websocket.NewHub(presence, log)
	if online == nil {
		online = hub
	}

	resolver, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL, int(cfg.MaxFrameBytes))
	if err != nil {
		closeStore()
		return nil, err
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := services.NewAuthService(st, jwtMgr, blacklist)
	bounded := services.NewBoundedStore(st, cfg.StoreConcurrency, cfg.StoreTimeout)

	messageH := handlers.NewMessageHandler(bounded, hub, resolver)
	wsH := handlers.NewWebSocketHandler(bounded, hub, messageH, websocket.SessionConfig{
		RegistrationTimeout:   cfg.RegistrationTimeout,
		DeregistrationTimeout: cfg.DeregistrationTimeout,
		SendBuffer:            cfg.SendBufferSize,
		MaxFrameBytes:         cfg.MaxFrameBytes,
	}, cfg.AllowedOrigins)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	APIEndpoints(router, log, Endpoints{
		Auth:      handlers.NewAuthHandler(authSvc),
		Rooms:     handlers.NewRoomHandler(st, bounded, online),
		Users:     handlers.NewUserHandler(st),
		WebSocket: wsH,
		Authn:     authSvc,
		MediaDir:  cfg.MediaDir,
	})

	return &Server{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:    hub,
		redis:  rdb,
		closer: closeStore,
	}, nil
}

// Run serves until ctx is cancelled, then drains: the HTTP server stops
// accepting, live sessions are closed and the backends are released.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("server starting")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.release()
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server. Redis
	// must stay open until every session has left its room.
	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("sessions still registered at shutdown")
	}
	err := s.http.Shutdown(shutdownCtx)
	s.release()
	return err
}

func (s *Server) release() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Warn("redis close")
		}
	}
	if err := s.closer(); err != nil {
		s.log.WithError(err).Warn("store close")
	}
}
