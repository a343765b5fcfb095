// Package main provides the room server binary: room websockets, account
// routes and the admin health service on one lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomsync/internal/admin"
	"github.com/cory-johannsen/roomsync/internal/config"
	"github.com/cory-johannsen/roomsync/internal/frontend/handlers"
	"github.com/cory-johannsen/roomsync/internal/frontend/ws"
	"github.com/cory-johannsen/roomsync/internal/game/rng"
	"github.com/cory-johannsen/roomsync/internal/game/session"
	"github.com/cory-johannsen/roomsync/internal/game/world"
	"github.com/cory-johannsen/roomsync/internal/gameserver"
	"github.com/cory-johannsen/roomsync/internal/observability"
	"github.com/cory-johannsen/roomsync/internal/scripting"
	"github.com/cory-johannsen/roomsync/internal/server"
	"github.com/cory-johannsen/roomsync/internal/storage"
	"github.com/cory-johannsen/roomsync/internal/storage/postgres"
	"github.com/cory-johannsen/roomsync/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting room server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
		zap.Int("tick_rate", cfg.Game.TickRate),
	)

	// The account store must be reachable before any socket is accepted.
	dbStart := time.Now()
	accounts, err := openAccounts(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("opening account store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	logger.Info("account store connected",
		zap.String("driver", cfg.Database.Driver),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	var presets []*world.Preset
	if cfg.Game.PresetsDir != "" {
		presets, err = world.LoadPresetsFromDir(cfg.Game.PresetsDir)
		if err != nil {
			logger.Fatal("loading room presets", zap.Error(err))
		}
	}
	catalog, err := world.NewCatalog(presets, world.Defaults{
		Bounds:       session.Bounds{Width: cfg.Game.Bounds.Width, Height: cfg.Game.Bounds.Height},
		WorldObjects: cfg.Game.WorldObjects,
		Source:       rng.NewCryptoSource(),
	})
	if err != nil {
		logger.Fatal("building room catalog", zap.Error(err))
	}
	logger.Info("room presets loaded", zap.Strings("rooms", catalog.PresetIDs()))

	delivery, err := gameserver.DeliveryFromConfig(cfg.Game.Delivery)
	if err != nil {
		logger.Fatal("configuring delivery", zap.Error(err))
	}

	var offloader *gameserver.Offloader
	if cfg.Game.Offload.Enabled {
		stepper, closeStepper, err := newStepper(cfg.Game.Offload, logger)
		if err != nil {
			logger.Fatal("creating offload stepper", zap.Error(err))
		}
		defer closeStepper()
		offloader = gameserver.NewOffloader(stepper, cfg.Game.Offload.Workers, cfg.Game.Offload.Timeout, logger.Named("offload"))
		logger.Info("tick offload enabled",
			zap.String("stepper", cfg.Game.Offload.Stepper),
			zap.Int("workers", cfg.Game.Offload.Workers),
			zap.Duration("timeout", offloader.Timeout()),
		)
	}

	registry := gameserver.NewRegistry(catalog, gameserver.RoomConfig{
		TickRate: cfg.Game.TickRate,
		Delivery: delivery,
	}, offloader, logger)

	gin.SetMode(gin.ReleaseMode)
	auth := handlers.NewAuthHandler(accounts, logger.Named("auth"))
	acceptor := ws.NewAcceptor(cfg.Server, registry, auth, logger.Named("ws"))
	health := admin.NewServer(cfg.Admin, map[string]admin.Pinger{"accounts": accounts}, 0, logger.Named("admin"))

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("accounts", idle(func() {
		if err := accounts.Close(); err != nil {
			logger.Warn("closing account store", zap.Error(err))
		}
	}))
	if offloader != nil {
		offloader.Start()
		lifecycle.Add("offload", idle(offloader.Stop))
	}
	lifecycle.Add("rooms", idle(registry.Close))
	lifecycle.Add("admin", &server.FuncService{
		StartFn: health.Start,
		StopFn:  health.Stop,
		ReadyFn: func() bool { return health.Addr() != "" },
	})
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
		ReadyFn: acceptor.Ready,
	})

	logger.Info("room server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openAccounts connects the configured account store.
func openAccounts(ctx context.Context, cfg config.DatabaseConfig) (storage.AccountStore, error) {
	if cfg.Driver == config.DriverSQLite {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return postgres.NewAccountRepository(pool), nil
}

// newStepper builds the configured offload stepper and its cleanup.
func newStepper(cfg config.OffloadConfig, logger *zap.Logger) (gameserver.Stepper, func(), error) {
	if cfg.Stepper == config.StepperLua {
		s, err := scripting.NewLuaStepperFromFile(cfg.Script, cfg.InstructionLimit, logger.Named("lua"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return gameserver.DriftStepper{DX: cfg.DriftX, DY: cfg.DriftY}, func() {}, nil
}

// idle returns a service that blocks until stopped and then runs stop.
func idle(stop func()) *server.FuncService {
	quit := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			<-quit
			return nil
		},
		StopFn: func() {
			close(quit)
			stop()
		},
	}
}
