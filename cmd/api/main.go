package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskflow.dev/internal/access"
	"taskflow.dev/internal/audit"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/config"
	"taskflow.dev/internal/grpcapi"
	"taskflow.dev/internal/httpapi"
	"taskflow.dev/internal/migrate"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/store/memory"
	"taskflow.dev/internal/store/sqlstore"
	"taskflow.dev/internal/task"
	"taskflow.dev/internal/team"
	"taskflow.dev/migrations"
)

var (
	version = "dev"
	commit  = "none"
)

// backend is what both store implementations provide.
type backend interface {
	auth.PrincipalDirectory
	auth.RefreshStore
	task.Repository
	task.TeamChecker
	team.Repository
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	configPath := flag.String("config", os.Getenv("TASKFLOW_CONFIG"), "path to a YAML config file")
	autoMigrate := flag.Bool("migrate", false, "apply pending migrations before serving")
	flag.Parse()

	log := obs.Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if err := obs.ConfigureLogger(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		log.WithError(err).Fatal("configure logger")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	access.SetObserver(func(kind access.Kind, op access.Operation, allowed bool) {
		obs.ObserveAccess(string(kind), string(op), allowed)
	})

	store, err := openStore(cfg.Database, *autoMigrate)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer store.Close()

	signer, err := auth.NewSigner(cfg.Auth.Secret,
		auth.WithSignerIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
	)
	if err != nil {
		log.WithError(err).Fatal("signer")
	}
	teams := team.NewService(store, store)
	authSvc, err := auth.NewService(store, signer,
		auth.NewRefreshManager(store, auth.WithRefreshTTL(cfg.Auth.RefreshTTL)),
		auth.WithHasher(auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}),
		auth.OnPrincipalDeleted(teams.RemovePrincipal),
	)
	if err != nil {
		log.WithError(err).Fatal("auth service")
	}
	tasks := task.NewService(store, store, task.WithTeams(store))

	if cfg.Bootstrap.AdminEmail != "" {
		created, err := authSvc.BootstrapAdmin(context.Background(),
			auth.Credentials{Email: cfg.Bootstrap.AdminEmail, Password: cfg.Bootstrap.AdminPassword},
			auth.Profile{Nickname: "admin"},
		)
		if err != nil {
			log.WithError(err).Fatal("bootstrap admin")
		}
		if created {
			log.WithField("email", cfg.Bootstrap.AdminEmail).Info("bootstrap admin created")
		}
	}

	recorder, err := newRecorder(cfg.Audit)
	if err != nil {
		log.WithError(err).Fatal("audit")
	}
	defer recorder.Close()

	probe := httpapi.ReadyProbe{Store: store}
	api := httpapi.New(probe, version, httpapi.Services{Auth: authSvc, Tasks: tasks, Teams: teams},
		httpapi.WithRecorder(recorder),
		httpapi.WithRateLimit(cfg.RateLimit.Burst, cfg.RateLimit.PerSecond),
		httpapi.WithTrustForwarded(cfg.RateLimit.TrustForwarded),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(map[string]any{"addr": srv.Addr, "version": version}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()

	grpcSrv := grpcapi.NewServer(probe)
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		go func() {
			log.WithField("addr", cfg.GRPC.Addr).Info("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				log.WithError(err).Error("grpc serve")
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
}

// openStore uses SQL when a DSN is configured and the in-memory store otherwise.
func openStore(cfg *config.Database, autoMigrate bool) (backend, error) {
	if cfg.DSN == "" {
		obs.Logger().Warn("database.dsn is empty; using in-memory store")
		return memory.New(), nil
	}
	store, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if autoMigrate {
		applied, err := migrate.NewManager(store.DB(), migrations.FS).Up(ctx)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		for _, name := range applied {
			obs.Logger().WithField("migration", name).Info("migration applied")
		}
	}
	return store, nil
}

func newRecorder(cfg *config.Audit) (*audit.Recorder, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return audit.NewRecorder(), nil
	}
	pub, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, err
	}
	return audit.NewRecorder(audit.WithPublisher(pub)), nil
}
