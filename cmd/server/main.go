package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/sha3"

	"zkconsent/internal/audit"
	"zkconsent/internal/challenge"
	"zkconsent/internal/credential"
	credentialhandler "zkconsent/internal/credential/handler"
	"zkconsent/internal/dispatcher"
	"zkconsent/internal/platform/config"
	"zkconsent/internal/platform/database"
	"zkconsent/internal/platform/health"
	"zkconsent/internal/platform/httpserver"
	kafkaproducer "zkconsent/internal/platform/kafka/producer"
	"zkconsent/internal/platform/logger"
	platformredis "zkconsent/internal/platform/redis"
	"zkconsent/internal/resign"
	sessionhandler "zkconsent/internal/session/handler"
	sessionmetrics "zkconsent/internal/session/metrics"
	sessionservice "zkconsent/internal/session/service"
	sessionstore "zkconsent/internal/session/store"
	"zkconsent/internal/tracer"
	httptransport "zkconsent/internal/transport/http"
	userhandler "zkconsent/internal/user/handler"
	userstore "zkconsent/internal/user/store"
	"zkconsent/internal/verifier"
	"zkconsent/internal/vkey"
	"zkconsent/internal/zkp/native"
	"zkconsent/internal/zkp/snark"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing consent gateway", "addr", cfg.Addr)

	healthHandler := health.New()

	// stores: Postgres when configured, in-memory otherwise
	var (
		sessions sessionstore.Store
		users    userstore.Store
		vkeys    vkey.Store
	)
	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(dbCfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		healthHandler.RegisterCheck("postgres", func() error { return pool.Ping(context.Background()) })
		sessions = sessionstore.NewPostgres(pool.DB())
		users = userstore.NewPostgres(pool.DB())
		vkeys = vkey.NewPostgres(pool.DB())
		log.Info("using postgres stores")
	} else {
		sessions = sessionstore.NewMemory()
		users = userstore.NewMemory()
		vkeys = vkey.NewMemory()
		log.Warn("no DATABASE_URL set, using in-memory stores")
	}

	// credential documents: gateway-backed when configured, cached via redis
	var content credential.ContentStore
	if cfg.ContentGatewayURL != "" {
		content = credential.NewGateway(cfg.ContentGatewayURL, cfg.FetchTimeout)
	} else {
		content = credential.NewMemory()
		log.Warn("no CONTENT_GATEWAY_URL set, using in-memory content store")
	}
	if cfg.RedisAddr != "" {
		rdb, err := platformredis.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		healthHandler.RegisterCheck("redis", func() error {
			return rdb.Ping(context.Background()).Err()
		})
		content = credential.NewCached(content, rdb, time.Hour)
		log.Info("credential cache enabled")
	}

	// audit trail
	var publisher *audit.Publisher
	if cfg.KafkaBrokers != "" {
		prod, err := kafkaproducer.New(kafkaproducer.Config{
			Brokers:         cfg.KafkaBrokers,
			DeliveryTimeout: 10 * time.Second,
		}, log)
		if err != nil {
			return err
		}
		defer prod.Close()
		healthHandler.RegisterCheck("kafka", func() error {
			if !prod.Healthy(context.Background()) {
				return errors.New("kafka brokers unreachable")
			}
			return nil
		})
		publisher = audit.NewPublisher(prod, "zkconsent.audit.events", log)
		log.Info("audit publishing enabled", "brokers", cfg.KafkaBrokers)
	} else {
		log.Warn("no KAFKA_BROKERS set, audit events are discarded")
	}

	m := sessionmetrics.New()
	tr := tracer.NewOTel()
	challenges := challenge.NewService(cfg.ChallengeSigningKey, cfg.ChallengeTTL)

	// compile the built-in circuit; provision its verification key when the
	// store has none yet so a fresh deployment can verify immediately
	prover, err := native.NewAgeProver()
	if err != nil {
		return err
	}
	if _, err := vkeys.Get(ctx, native.CircuitAgeVerification); errors.Is(err, vkey.ErrNotFound) {
		vk, err := prover.VerifyingKey()
		if err != nil {
			return err
		}
		if err := putVerifyingKey(ctx, vkeys, vk); err != nil {
			return err
		}
		log.Info("provisioned verification key", "circuit", native.CircuitAgeVerification)
	}

	signingKey, err := resignSigningKey(cfg.ResignSigningSeed)
	if err != nil {
		return err
	}

	sessionSvc := sessionservice.New(sessions, users, challenges, log,
		sessionservice.WithMetrics(m),
		sessionservice.WithAudit(publisher),
		sessionservice.WithSessionDuration(cfg.SessionDuration),
		sessionservice.WithMaxVerifyAttempts(cfg.MaxVerifyAttempts),
	)
	verifySvc := verifier.New(sessions, vkeys, content, log,
		verifier.WithMetrics(m),
		verifier.WithAudit(publisher),
		verifier.WithTracer(tr),
	)
	resignSvc := resign.New(sessions, users, content, challenges, prover, signingKey, log,
		resign.WithMetrics(m),
		resign.WithAudit(publisher),
		resign.WithTracer(tr),
	)

	disp := dispatcher.New(sessions, verifySvc, log,
		dispatcher.WithInterval(cfg.DispatchInterval),
		dispatcher.WithMetrics(m),
		dispatcher.WithAudit(publisher),
		dispatcher.WithTracer(tr),
	)
	disp.Start()

	router := httptransport.NewRouter(
		sessionhandler.New(sessionSvc, verifySvc, resignSvc, log),
		credentialhandler.New(content, log),
		userhandler.New(users, log),
		healthHandler,
		log,
	)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := disp.Stop(shutdownCtx); err != nil {
		log.Error("dispatcher shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}

func putVerifyingKey(ctx context.Context, vkeys vkey.Store, vk *snark.VerifyingKey) error {
	raw, err := json.Marshal(vk)
	if err != nil {
		return err
	}
	return vkeys.Put(ctx, &vkey.Record{
		CircuitName: native.CircuitAgeVerification,
		Key:         raw,
		UpdatedAt:   time.Now().UTC(),
	})
}

// resignSigningKey derives the issuer key from the configured seed, or
// generates an ephemeral one when unset.
func resignSigningKey(seed string) (ed25519.PrivateKey, error) {
	if seed == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	sum := sha3.Sum256([]byte(seed))
	return ed25519.NewKeyFromSeed(sum[:]), nil
}
