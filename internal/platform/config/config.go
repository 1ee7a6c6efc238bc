package config

import (
	"os"
	"time"
)

// Server captures process level configuration for the consent gateway.
type Server struct {
	Addr string

	// Challenge tokens
	ChallengeSigningKey string
	ChallengeTTL        time.Duration

	// Consent sessions
	SessionDuration   time.Duration
	MaxVerifyAttempts int

	// Verification dispatcher
	DispatchInterval time.Duration
	FetchTimeout     time.Duration

	// External stores; empty values select in-memory implementations.
	DatabaseURL       string
	RedisAddr         string
	KafkaBrokers      string
	ContentGatewayURL string

	// Re-signature workflow
	ResignSigningSeed string
}

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultChallengeTTL     = 5 * time.Minute
	DefaultSessionDuration  = 2 * time.Minute
	DefaultDispatchInterval = 3 * time.Second
	DefaultFetchTimeout     = 10 * time.Second
	DefaultMaxVerifyAttempts = 3
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:              getenv("ZKCONSENT_ADDR", ":8080"),
		ChallengeTTL:      DefaultChallengeTTL,
		SessionDuration:   DefaultSessionDuration,
		DispatchInterval:  DefaultDispatchInterval,
		FetchTimeout:      DefaultFetchTimeout,
		MaxVerifyAttempts: DefaultMaxVerifyAttempts,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		ContentGatewayURL: os.Getenv("CONTENT_GATEWAY_URL"),
		ResignSigningSeed: os.Getenv("RESIGN_SIGNING_SEED"),
	}

	cfg.ChallengeSigningKey = os.Getenv("CHALLENGE_SIGNING_KEY")
	if cfg.ChallengeSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.ChallengeSigningKey = "dev-secret-key-change-in-production"
	}

	if d, ok := getenvDuration("CHALLENGE_TTL"); ok {
		cfg.ChallengeTTL = d
	}
	if d, ok := getenvDuration("SESSION_DURATION"); ok {
		cfg.SessionDuration = d
	}
	if d, ok := getenvDuration("DISPATCH_INTERVAL"); ok {
		cfg.DispatchInterval = d
	}
	if d, ok := getenvDuration("FETCH_TIMEOUT"); ok {
		cfg.FetchTimeout = d
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
