// Package app assembles the server: storage, the room registry, the real-time
// channel, the game proxy and the background loops.
package app

import (
	"Gamebuddies/config"
	"Gamebuddies/controllers"
	"Gamebuddies/middleware"
	"Gamebuddies/routes"
	"Gamebuddies/services/notify"
	"Gamebuddies/services/persistence"
	"Gamebuddies/services/presence"
	"Gamebuddies/services/proxy"
	"Gamebuddies/services/reconcile"
	"Gamebuddies/services/redis"
	"Gamebuddies/services/rooms"
	"Gamebuddies/services/socket_io"
	"Gamebuddies/services/sweeper"
	"Gamebuddies/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Log    *logrus.Entry

	DB          *gorm.DB
	RedisClient *redis.RedisClient
	Notifier    *notify.Dispatcher
	Tracker     *presence.Tracker
	Registry    *rooms.Registry
	Sockets     *socket_io.MySocketServer
	Games       *proxy.Router
	Sweeper     *sweeper.Sweeper
	HttpServer  *http.Server

	cancel context.CancelFunc
	loops  chan struct{}
}

// New connects every dependency and builds the router. Nothing runs until
// Start is called.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	config.SetUpLogger(cfg)
	log := logrus.WithField("component", "app")
	log.Info("Setting up server...")

	if cfg.Prod {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.ConnectGORM(cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	// Only migrate in development or during deployment
	if cfg.Postgres.Migrate {
		log.Info("Migrating PostgreSQL database...")
		if err := config.MigrateDatabase(db); err != nil {
			log.WithError(err).Warn("database migration failed")
		}
	}

	redisClient, err := config.Connect_redis(cfg.RedisURL)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	backend, err := notifyBackend(cfg)
	if err != nil {
		redisClient.Close()
		closeDB(db)
		return nil, err
	}
	dispatcher := notify.NewDispatcher(backend, 0)

	targets, err := config.LoadProxyTargets(cfg.ProxyConfig)
	if err != nil {
		dispatcher.Close(context.Background())
		redisClient.Close()
		closeDB(db)
		return nil, err
	}

	tracker := presence.NewTracker(cfg.HeartbeatTimeout, cfg.PresenceSweepInterval)
	sio := socket_io.New(tracker)
	registry := rooms.New(rooms.Config{
		DisconnectGrace:  cfg.DisconnectGrace,
		MemberEvictAfter: cfg.MemberEvictAfter,
		IdleTimeout:      cfg.RoomIdleTimeout,
		Reconcile: reconcile.Config{
			SettleWindow:  cfg.SettleWindow,
			StartWindow:   cfg.StartWindow,
			LobbyMajority: cfg.LobbyMajority,
		},
	}, sio.SocketServer, dispatcher, tracker)

	games := proxy.New(proxy.Config{
		HealthInterval:  cfg.HealthInterval,
		HealthTimeout:   cfg.HealthTimeout,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, targets)

	store := persistence.NewStore(db)
	sweep := sweeper.New(sweeper.Config{
		Interval:    cfg.SweepInterval,
		StaleRowAge: cfg.StaleRowAge,
	}, registry, tracker, store, redisClient)

	identity := middleware.NewJWTIdentity(cfg.JWTSecret)

	router := gin.New()
	router.Use(gin.Recovery())
	middleware.SetUpMiddleware(router, cfg.SessionKey, cfg.CORSOrigins, cfg.Prod)
	router.Use(utils.Logger())
	routes.SetupRoutes(router, &controllers.RoomController{
		Registry: registry,
		Store:    store,
		Proxy:    games,
	}, identity, games)
	sio.Start(router, registry, identity, socket_io.Options{
		Origins: cfg.CORSOrigins,
		Debug:   strings.EqualFold(cfg.LogLevel, "debug"),
	})

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		Notifier:    dispatcher,
		Tracker:     tracker,
		Registry:    registry,
		Sockets:     sio,
		Games:       games,
		Sweeper:     sweep,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func notifyBackend(cfg *config.Config) (notify.Backend, error) {
	switch cfg.NotifyBackend {
	case "asynq":
		return notify.NewAsynqBackend(asynqOpt(cfg.RedisURL)), nil
	case "nats":
		b, err := notify.NewNATSBackend(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		return b, nil
	default:
		return notify.NewLogBackend(), nil
	}
}

// asynqOpt accepts the same redis:// URL or host:port the mirror does
func asynqOpt(url string) asynq.RedisConnOpt {
	if strings.Contains(url, "://") {
		if opt, err := asynq.ParseRedisURI(url); err == nil {
			return opt
		}
	}
	return asynq.RedisClientOpt{Addr: url}
}

// Start launches the background loops and the HTTP server
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.loops = make(chan struct{})

	go func() {
		defer close(a.loops)
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.Games.Run(ctx)
		}()
		a.Tracker.Run(ctx)
		<-done
	}()
	a.Sweeper.Start()

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.WithError(err).Fatal("HTTP server failed")
		}
	}()
}

// Shutdown stops accepting connections, flushes pending state and releases
// every dependency. If that takes longer than FORCE_EXIT_AFTER the process
// exits anyway.
func (a *App) Shutdown() {
	force := time.AfterFunc(a.Config.ForceExitAfter, func() {
		a.Log.Error("shutdown did not finish in time, forcing exit")
		os.Exit(1)
	})
	defer force.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	a.Log.Info("Shutting down server...")
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.WithError(err).Warn("HTTP server shutdown")
	}
	a.Sockets.Close()

	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.loops:
		case <-ctx.Done():
		}
	}

	a.Registry.Close()
	if err := a.Sweeper.Stop(ctx); err != nil {
		a.Log.WithError(err).Error("final flush failed, recent room changes were not saved")
	}
	if err := a.Notifier.Close(ctx); err != nil {
		a.Log.WithError(err).Warn("closing notification backend")
	}
	if err := redis.CloseRedis(a.RedisClient); err != nil {
		a.Log.WithError(err).Warn("closing Redis")
	}
	closeDB(a.DB)
	a.Log.Info("Server stopped")
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logrus.WithField("component", "postgres").WithError(err).Warn("closing PostgreSQL")
	}
}
