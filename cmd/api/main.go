package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"idurar.org/internal/alert"
	"idurar.org/internal/auth"
	"idurar.org/internal/branch"
	"idurar.org/internal/config"
	"idurar.org/internal/httpapi"
	"idurar.org/internal/obs"
	"idurar.org/internal/payments"
	"idurar.org/internal/store/pg"
	"idurar.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type stores struct {
	auth     auth.Store
	branches branch.Store
	payments payments.Store
	ready    httpapi.ReadyProbe
	close    func() error
}

func openStores(cfg config.Postgres) (stores, error) {
	if cfg.DSN == "" {
		obs.Logger().Warn("no postgres DSN configured, using in-memory stores")
		return stores{
			auth:     auth.NewInMemory(),
			branches: branch.NewInMemory(),
			payments: payments.NewInMemory(),
			close:    func() error { return nil },
		}, nil
	}
	db, err := pg.Open(cfg.DSN, pg.Pool{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return stores{}, err
	}
	return stores{
		auth:     db.Auth(),
		branches: db.Branches(),
		payments: db.Payments(),
		ready:    httpapi.ReadyProbe{DB: db.DB()},
		close:    db.Close,
	}, nil
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := obs.InitLogger(cfg.Logging.Level)
	defer obs.Sync()
	obs.Init()
	build := obs.InitBuildInfo(version, commit)

	st, err := openStores(cfg.Postgres)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}

	tokens, err := auth.NewTokenIssuer(cfg.Session.Secret, auth.WithTokenTTL(cfg.Session.TTL))
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}
	resolver, err := auth.NewResolver(st.auth, tokens)
	if err != nil {
		logger.Fatal("resolver", zap.Error(err))
	}
	sessions, err := auth.NewSessions(st.auth, tokens)
	if err != nil {
		logger.Fatal("sessions", zap.Error(err))
	}
	keys, err := auth.NewKeyManager(st.auth)
	if err != nil {
		logger.Fatal("key manager", zap.Error(err))
	}
	roles, err := auth.NewRoleManager(st.auth)
	if err != nil {
		logger.Fatal("role manager", zap.Error(err))
	}
	branches, err := branch.NewManager(st.branches)
	if err != nil {
		logger.Fatal("branch manager", zap.Error(err))
	}

	if cfg.Bootstrap.OwnerEmail != "" {
		owner, created, err := sessions.EnsureOwner(context.Background(),
			cfg.Bootstrap.OwnerEmail, cfg.Bootstrap.OwnerPassword, cfg.Bootstrap.OwnerName)
		if err != nil {
			logger.Fatal("bootstrap owner", zap.Error(err))
		}
		if created {
			logger.Info("owner account created", zap.String("admin_id", owner.ID), zap.String("email", owner.Email))
		}
	}

	feed := stream.New()
	engineOpts := []payments.Option{
		payments.WithNotifier(alert.New(cfg.Alerts.SlackWebhookURL)),
		payments.WithPublisher(feed),
	}
	if cfg.Stripe.WebhookSecret != "" {
		provider, err := payments.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret,
			payments.WithTolerance(cfg.Stripe.Tolerance))
		if err != nil {
			logger.Fatal("stripe provider", zap.Error(err))
		}
		engineOpts = append(engineOpts, payments.WithParser(provider))
		if cfg.Stripe.SecretKey != "" {
			engineOpts = append(engineOpts, payments.WithIntents(provider))
		}
	} else {
		logger.Warn("stripe webhook secret not configured, payment provider endpoints disabled")
	}
	engine, err := payments.NewEngine(st.payments, engineOpts...)
	if err != nil {
		logger.Fatal("payment engine", zap.Error(err))
	}

	api, err := httpapi.New(httpapi.Deps{
		Resolver: resolver,
		Sessions: sessions,
		Keys:     keys,
		Roles:    roles,
		Branches: branches,
		Payments: engine,
		Stream:   feed,
		Ready:    st.ready,
	}, version,
		httpapi.WithRateLimit(cfg.Server.RateBurst, cfg.Server.RatePerSecond),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
	if err != nil {
		logger.Fatal("http api", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("starting idurar-erp",
		zap.String("version", build.Version),
		zap.String("commit", build.Commit),
		zap.String("go", build.GoVersion),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	resolver.Wait()
	if err := st.close(); err != nil {
		logger.Warn("close stores", zap.Error(err))
	}
	logger.Info("stopped")
}
