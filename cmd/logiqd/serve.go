package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/bredsky212/Logiq212/internal/audit"
	"github.com/bredsky212/Logiq212/internal/config"
	"github.com/bredsky212/Logiq212/internal/httpapi"
	"github.com/bredsky212/Logiq212/internal/migrate"
	"github.com/bredsky212/Logiq212/internal/obs"
	"github.com/bredsky212/Logiq212/internal/perms"
	"github.com/bredsky212/Logiq212/internal/platform"
	"github.com/bredsky212/Logiq212/internal/servicetoken"
	"github.com/bredsky212/Logiq212/internal/store/memory"
	"github.com/bredsky212/Logiq212/internal/store/mongo"
	"github.com/bredsky212/Logiq212/internal/store/pg"
	"github.com/bredsky212/Logiq212/internal/stream"
	"github.com/bredsky212/Logiq212/internal/suspension"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP and gRPC servers and the overdue sweeper",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "auto-migrate",
			Usage:   "apply pending Postgres migrations before serving",
			EnvVars: []string{"LOGIQ_AUTO_MIGRATE"},
		},
	},
	Action: runServe,
}

func runServe(cctx *cli.Context) error {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	app := fx.New(append(serveOptions(cfg),
		fx.Supply(autoMigrate(cctx.Bool("auto-migrate"))),
		fx.Invoke(runMigrations),
	)...)
	app.Run()
	return app.Err()
}

type autoMigrate bool

// backend is a store serving every domain interface.
type backend interface {
	perms.Store
	audit.Store
	suspension.Store
	Ping(ctx context.Context) error
}

func serveOptions(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: obs.Logger().Named("fx")}
		}),
		fx.Supply(cfg),
		fx.Provide(
			newBackend,
			newThrottle,
			stream.New,
			newRecorder,
			newSigner,
			newRestrictor,
			newGate,
			newOverrideService,
			newSecurityService,
			newSuspensionService,
			newAPI,
			newReadyProbe,
			newGRPCHealth,
		),
		fx.Invoke(startHTTP, startGRPC, startSweeper),
	}
}

func newBackend(lc fx.Lifecycle, cfg *config.Config) (backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return s.Close() }})
		return s, nil
	case config.StoreMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: s.Close})
		return s, nil
	default:
		obs.Logger().Warn("using in-memory store; state is lost on restart")
		return memory.New(), nil
	}
}

func runMigrations(cfg *config.Config, b backend, auto autoMigrate) error {
	if !auto {
		return nil
	}
	s, ok := b.(*pg.Store)
	if !ok {
		obs.Logger().Info("auto-migrate skipped", zap.String("store", cfg.Store))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return migrate.NewManager(s.DB(), pg.Migrations, pg.MigrationsDir).Up(ctx)
}

func newThrottle(lc fx.Lifecycle, cfg *config.Config) (audit.Throttle, error) {
	if cfg.RedisURL == "" {
		return audit.NewMemThrottle(0, cfg.DenialCooldown), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t, err := audit.NewRedisThrottle(ctx, cfg.RedisURL, cfg.DenialCooldown)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return t.Close() }})
	return t, nil
}

func newRecorder(b backend, t audit.Throttle, hub *stream.Hub) (*audit.Recorder, error) {
	return audit.NewRecorder(b, audit.WithThrottle(t), audit.WithPublisher(hub.Publish))
}

func newSigner(cfg *config.Config) (*servicetoken.Signer, error) {
	if cfg.APISecret == "" {
		obs.Logger().Warn("LOGIQ_API_SECRET unset; /v1 routes are unauthenticated")
		return nil, nil
	}
	return servicetoken.NewSigner(cfg.APISecret)
}

func newRestrictor(cfg *config.Config, signer *servicetoken.Signer) (suspension.Restrictor, error) {
	if cfg.RestrictorURL == "" {
		return platform.LogOnly{}, nil
	}
	return platform.NewWebhook(cfg.RestrictorURL, signer, nil)
}

func newGate(b backend, rec *audit.Recorder) (*perms.Gate, error) {
	return perms.NewGate(b, rec)
}

func newOverrideService(b backend, rec *audit.Recorder) (*perms.OverrideService, error) {
	return perms.NewOverrideService(b, rec)
}

func newSecurityService(b backend, rec *audit.Recorder) (*perms.SecurityService, error) {
	return perms.NewSecurityService(b, rec)
}

func newSuspensionService(cfg *config.Config, b backend, gate *perms.Gate, r suspension.Restrictor, rec *audit.Recorder) (*suspension.Service, error) {
	return suspension.NewService(b, gate, r, rec, suspension.Config{Durations: cfg.SuspendDurations})
}

func newReadyProbe(b backend) httpapi.ReadyProbe {
	return httpapi.ReadyProbe{Ping: b.Ping}
}

type apiParams struct {
	fx.In

	Config      *config.Config
	Probe       httpapi.ReadyProbe
	Signer      *servicetoken.Signer
	Hub         *stream.Hub
	Gate        *perms.Gate
	Overrides   *perms.OverrideService
	Security    *perms.SecurityService
	Suspensions *suspension.Service
	Audit       *audit.Recorder
}

func newAPI(p apiParams) *httpapi.API {
	opts := []httpapi.Option{
		httpapi.WithRateLimit(p.Config.RateBurst, p.Config.RatePerSec),
		httpapi.WithStream(p.Hub),
	}
	if p.Signer != nil {
		opts = append(opts, httpapi.WithTokens(p.Signer))
	}
	return httpapi.New(httpapi.Services{
		Gate:        p.Gate,
		Overrides:   p.Overrides,
		Security:    p.Security,
		Suspensions: p.Suspensions,
		Audit:       p.Audit,
	}, p.Probe, version, opts...)
}

func newGRPCHealth(probe httpapi.ReadyProbe) *httpapi.GRPCServer {
	return httpapi.NewGRPCServer(probe)
}

func startHTTP(lc fx.Lifecycle, cfg *config.Config, api *httpapi.API) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen http: %w", err)
			}
			obs.Logger().Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					obs.Logger().Error("http serve", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func startGRPC(lc fx.Lifecycle, cfg *config.Config, health *httpapi.GRPCServer) {
	srv := grpc.NewServer()
	health.Register(srv)
	watchCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				cancel()
				return fmt.Errorf("listen grpc: %w", err)
			}
			obs.Logger().Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			go health.Watch(watchCtx, 15*time.Second)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					obs.Logger().Error("grpc serve", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			health.Shutdown()
			srv.GracefulStop()
			return nil
		},
	})
}

// startSweeper reconciles suspensions whose expiry notice never arrived.
func startSweeper(lc fx.Lifecycle, cfg *config.Config, svc *suspension.Service) error {
	c := cron.New()
	_, err := c.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := svc.SweepOverdue(ctx, time.Now())
		if err != nil {
			obs.Logger().Error("suspension sweep failed", zap.Int("expired", n), zap.Error(err))
			return
		}
		if n > 0 {
			obs.Logger().Info("suspension sweep", zap.Int("expired", n))
		}
	})
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
