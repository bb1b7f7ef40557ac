package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	appadapters "aidledger/internal/application/adapters"
	appservice "aidledger/internal/application/service"
	appstore "aidledger/internal/application/store"
	identityservice "aidledger/internal/identity/service"
	"aidledger/internal/identity/store/revocation"
	userstore "aidledger/internal/identity/store/user"
	"aidledger/internal/identity/token"
	"aidledger/internal/payment"
	"aidledger/internal/platform/config"
	"aidledger/internal/platform/httpserver"
	"aidledger/internal/platform/kafka"
	"aidledger/internal/platform/logger"
	"aidledger/internal/platform/metrics"
	"aidledger/internal/platform/postgres"
	platformredis "aidledger/internal/platform/redis"
	schemeseed "aidledger/internal/scheme/seed"
	schemeservice "aidledger/internal/scheme/service"
	schemestore "aidledger/internal/scheme/store"
	"aidledger/internal/scoring"
	verifyadapters "aidledger/internal/verification/adapters"
	"aidledger/internal/verification/notifier"
	verifyservice "aidledger/internal/verification/service"
	verifystore "aidledger/internal/verification/store"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publishers/compliance"
	"aidledger/pkg/platform/audit/publishers/stream"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
	auditpostgres "aidledger/pkg/platform/audit/store/postgres"
	"aidledger/pkg/platform/audit/worker"
	authmw "aidledger/pkg/platform/middleware/auth"
	"aidledger/pkg/platform/middleware/ratelimit"
)

const auditFanoutBuffer = 1024

// revocationList is satisfied by both TRL backends.
type revocationList interface {
	identityservice.RevocationList
	authmw.TokenRevocationChecker
}

// backends holds the storage selected by configuration. db, redis and kafka
// stay nil when their URL is empty.
type backends struct {
	db     *sql.DB
	redis  *platformredis.Client
	kafka  *kgo.Client
	users  identityservice.UserStore
	trl    revocationList
	otp    verifyservice.Store
	scheme schemeservice.Store
	apps   appservice.Store
	ledger audit.Store
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	b, err := initBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	app, err := assemble(ctx, cfg, log, b)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Server.Addr, app.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return app.limiter.Run(gctx)
	})
	if app.fanout != nil {
		publisher := stream.NewKafkaPublisher(b.kafka, cfg.Kafka.AuditTopic)
		breaker := stream.NewCircuitBreaker(5, 30*time.Second)
		g.Go(func() error {
			return worker.NewWorker(publisher, breaker, app.fanout, log).Run(gctx)
		})
	}

	log.Info("aidledger started",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"postgres", b.db != nil,
		"redis", b.redis != nil,
		"kafka", b.kafka != nil,
	)
	return g.Wait()
}

// application is the assembled service graph.
type application struct {
	router  http.Handler
	limiter *ratelimit.Limiter
	fanout  chan audit.Event
}

func assemble(ctx context.Context, cfg config.Config, log *slog.Logger, b *backends) (*application, error) {
	m := metrics.New()

	var fanout chan audit.Event
	auditOpts := []compliance.Option{
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics(m.Registry)),
	}
	if b.kafka != nil {
		fanout = make(chan audit.Event, auditFanoutBuffer)
		auditOpts = append(auditOpts, compliance.WithFanout(fanout))
	}
	auditor := compliance.New(b.ledger, auditOpts...)

	verification := verifyservice.New(b.otp,
		verifyadapters.NewIdentityContacts(b.users),
		notifier.NewLogNotifier(log),
		verifyservice.WithLogger(log),
		verifyservice.WithTTL(cfg.OTP.TTL),
		verifyservice.WithResendCooldown(cfg.OTP.ResendCooldown),
	)

	jwtService := token.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
	identity := identityservice.New(b.users, jwtService,
		identityservice.WithLogger(log),
		identityservice.WithAuditLogger(auditor),
		identityservice.WithContactReset(verifyadapters.NewProfileChanges(verification)),
		identityservice.WithMetrics(identityservice.NewMetrics(m.Registry)),
		identityservice.WithRevocationList(b.trl),
		identityservice.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if _, err := identity.SeedAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	schemes := schemeservice.New(b.scheme, auditor, schemeservice.WithLogger(log))
	if err := seedCatalog(ctx, schemes, cfg.Catalog.SeedFile, log); err != nil {
		return nil, err
	}

	applications := appservice.New(b.apps, schemes, verification, payment.NewProcessor(), auditor,
		appservice.WithLogger(log),
		appservice.WithMetrics(appservice.NewMetrics(m.Registry)),
		appservice.WithScorer(scoring.NewRandom(time.Now().UnixNano())),
		appservice.WithApplicants(appadapters.NewIdentityApplicants(identity)),
	)

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	router := newRouter(routerDeps{
		cfg:          cfg,
		logger:       log,
		metrics:      m,
		limiter:      limiter,
		validator:    token.NewJWTServiceAdapter(jwtService),
		revocations:  b.trl,
		identity:     identity,
		verification: verification,
		schemes:      schemes,
		applications: applications,
		ledger:       auditor,
		health:       b.health,
	})
	return &application{router: router, limiter: limiter, fanout: fanout}, nil
}

func initBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.db = db
		b.users = userstore.NewPostgres(db)
		b.scheme = schemestore.NewPostgresStore(db)
		b.apps = appstore.NewPostgresStore(db)
		b.ledger = auditpostgres.New(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		b.users = userstore.New()
		b.scheme = schemestore.NewInMemoryStore()
		b.apps = appstore.NewInMemoryStore()
		b.ledger = auditmemory.NewInMemoryStore()
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		b.close(log)
		return nil, err
	}
	if rc != nil {
		b.redis = rc
		b.trl = revocation.NewRedisTRL(rc.Client)
		b.otp = verifystore.NewRedisStore(rc.Client)
	} else {
		b.trl = revocation.NewInMemoryTRL()
		b.otp = verifystore.NewInMemoryStore()
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		b.close(log)
		return nil, err
	}
	if kc != nil {
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions); err != nil {
			// The ledger store is authoritative; the stream can catch up later.
			log.Warn("audit topic bootstrap failed", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		b.kafka = kc
	}
	return b, nil
}

// health pings every configured backend.
func (b *backends) health(ctx context.Context) error {
	var errs []error
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (b *backends) close(log *slog.Logger) {
	if b.kafka != nil {
		b.kafka.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn("close redis", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			log.Warn("close postgres", "error", err)
		}
	}
}

func seedCatalog(ctx context.Context, schemes *schemeservice.Service, path string, log *slog.Logger) error {
	if path == "" {
		return nil
	}
	reqs, err := schemeseed.LoadFile(path)
	if err != nil {
		return err
	}
	n, err := schemes.Seed(ctx, reqs)
	if err != nil {
		return fmt.Errorf("seed schemes: %w", err)
	}
	log.Info("scheme catalog seeded", "inserted", n, "path", path)
	return nil
}
