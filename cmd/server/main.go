package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-privacy/shielded-core/internal/asp"
	"github.com/noah-privacy/shielded-core/internal/attestation"
	"github.com/noah-privacy/shielded-core/internal/audit"
	"github.com/noah-privacy/shielded-core/internal/config"
	"github.com/noah-privacy/shielded-core/internal/orchestrator"
	"github.com/noah-privacy/shielded-core/internal/store"
	"github.com/noah-privacy/shielded-core/pkg/health"
	"github.com/noah-privacy/shielded-core/pkg/logger"
	"github.com/noah-privacy/shielded-core/pkg/metrics"
	"github.com/noah-privacy/shielded-core/pkg/middleware"
)

func main() {
	err := logger.Initialize(logger.Config{
		Environment: os.Getenv("CORE_ENV"),
		Level:       os.Getenv("CORE_LOG_LEVEL"),
		Service:     "shielded-core",
		Version:     "1.0.0",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Initialize(metrics.Config{ServiceName: "shielded-core"})

	cfg := config.LoadServiceConfig()

	signer, err := loadSigner(cfg)
	if err != nil {
		logger.Fatal("failed to load attestation signer", zap.Error(err))
	}

	backingStore, closeStore := loadStore(cfg)
	if closeStore != nil {
		defer closeStore()
	}

	cipher := loadCipher()

	orch := orchestrator.New(orchestrator.Config{
		Clock:  func() uint64 { return uint64(time.Now().Unix()) },
		Cipher: cipher,
		Signer: signer,
	})

	go runSnapshotLoop(orch, backingStore, 30*time.Second)

	if cfg.ProviderConfigPath != "" {
		providerCfg, err := config.LoadProviderConfig(cfg.ProviderConfigPath)
		if err != nil {
			logger.Fatal("failed to load provider config", zap.Error(err))
		}
		orch.RegisterASP(providerCfg.Name, providerConfigToASPConfig(providerCfg))
	}

	api := NewAPI(orch)

	router := gin.New()
	router.Use(logger.GinLogger())
	router.Use(logger.GinRecovery())
	router.Use(middleware.Security())
	router.Use(middleware.RequestID())
	router.Use(metrics.HTTPMiddleware())

	limiter := middleware.NewRateLimiter(
		float64(config.EnvUint64("CORE_RATE_LIMIT_RPS", 100)),
		int(config.EnvUint64("CORE_RATE_LIMIT_BURST", 20)),
	)
	router.Use(limiter.Middleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	healthConfig := health.Config{
		ServiceName: "shielded-core",
		Version:     "1.0.0",
		Checks: map[string]health.Checker{
			"nullifier_set": func() health.CheckResult {
				metrics.SetNullifierSetSize(orch.NullifierSetSize())
				return health.OK(fmt.Sprintf("%d nullifiers recorded", orch.NullifierSetSize()))
			},
			"audit_journal": func() health.CheckResult {
				return health.OK(fmt.Sprintf("%d entries", orch.Journal().Len()))
			},
		},
	}
	router.GET("/health", health.Handler(healthConfig))
	router.GET("/health/ready", health.ReadinessHandler())
	router.GET("/health/live", health.LivenessHandler())
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/deposit", api.Deposit)
	router.POST("/withdraw", api.Withdraw)
	router.POST("/withdraw/batch", api.WithdrawBatch)
	router.POST("/compliance/check", api.CheckCompliance)
	router.POST("/asp/:name/register", api.RegisterASP)
	router.POST("/asp/:name/add", api.AddToASP)
	router.POST("/asp/:name/remove", api.RemoveFromASP)
	router.POST("/audit/:entry_id/disclose", api.Disclose)

	logger.Info("starting shielded-core service", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// loadSigner builds an attestation.Signer from the configured private
// key, or generates an ephemeral one for local runs when none is set.
func loadSigner(cfg *config.ServiceConfig) (*attestation.Signer, error) {
	if cfg.AttesterPrivateKeyHex != "" {
		return attestation.NewSignerFromHex(cfg.AttesterPrivateKeyHex, 0)
	}
	logger.Warn("no CORE_ATTESTER_PRIVATE_KEY set, generating an ephemeral signer for this process only")
	key, err := attestation.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral attestation key: %w", err)
	}
	return attestation.NewSigner(key, 0), nil
}

// loadStore builds the Store backend the deployer selected via
// CORE_STORE_DSN. An empty DSN keeps the in-memory default; a
// "redis://host:port/db"-shaped DSN switches to the Redis-backed Store.
// The returned closer is nil for the in-memory store.
func loadStore(cfg *config.ServiceConfig) (store.Store, func()) {
	if cfg.StoreDSN == "" {
		return store.NewMemory(), nil
	}
	addr, db := parseRedisDSN(cfg.StoreDSN)
	redisStore := store.NewRedis(addr, db)
	logger.Info("using redis-backed store", zap.String("addr", addr), zap.Int("db", db))
	return redisStore, func() { _ = redisStore.Close() }
}

// parseRedisDSN parses a "redis://host:port/db" DSN into an address and
// database index, tolerating a missing scheme or database segment.
func parseRedisDSN(dsn string) (string, int) {
	s := dsn
	const scheme = "redis://"
	if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
		s = s[len(scheme):]
	}
	addr := s
	db := 0
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			addr = s[:i]
			fmt.Sscanf(s[i+1:], "%d", &db)
			break
		}
	}
	return addr, db
}

// loadCipher selects the audit journal's EntryCipher. The default
// remains the XOR placeholder; CORE_AUDIT_CIPHER=aead switches to
// ChaCha20-Poly1305 for a deployment that wants real confidentiality on
// disclosed details.
func loadCipher() audit.EntryCipher {
	if os.Getenv("CORE_AUDIT_CIPHER") == "aead" {
		return audit.AEADCipher{}
	}
	return audit.XORCipher{}
}

// providerConfigToASPConfig converts the YAML-loaded provider config
// into the asp package's runtime Config, translating the string policy
// kind into an asp.Policy value.
func providerConfigToASPConfig(pc config.ProviderConfig) asp.Config {
	var policy asp.Policy
	switch pc.Policy.Kind {
	case "restrictive":
		policy = asp.PolicyRestrictive
	case "custom":
		policy = asp.CustomPolicy(pc.Policy.Name)
	default:
		policy = asp.PolicyPermissive
	}
	return asp.Config{
		Name:                pc.Name,
		Policy:              policy,
		MaxSetSize:          int(pc.MaxSetSize),
		UpdateFrequencySecs: pc.UpdateFrequencySecs,
	}
}
