package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"castgate/internal/config"
	"castgate/internal/domain"
	"castgate/internal/infra/accountdb"
	"castgate/internal/infra/auth/gotrue"
	"castgate/internal/infra/auth/jwt"
	"castgate/internal/infra/cachemem"
	"castgate/internal/infra/channels"
	"castgate/internal/infra/db"
	"castgate/internal/infra/hub"
	"castgate/internal/infra/ledgermem"
	"castgate/internal/infra/metrics"
	"castgate/internal/infra/policyopa"
	"castgate/internal/infra/ratelimit"
	"castgate/internal/usecase"
	"castgate/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 10 * time.Second
	retentionInterval = time.Hour
)

// ledgerPruner is implemented by durable idempotency stores.
type ledgerPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Server struct {
	cfg     config.Config
	store   *db.Store
	r       *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	validator *validation.Validator
	submit    *usecase.SubmitOperation
	accounts  domain.AccountStore
	pruner    ledgerPruner

	authenticator domain.Authenticator
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool

	redis       *redis.Client
	accountPool *accountdb.Store
}

// NewServer builds every dependency from cfg. store may carry a nil DB, in
// which case the ledgers and account store are in-memory.
func NewServer(ctx context.Context, cfg config.Config, store *db.Store, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, store: store, logger: logger, metrics: metrics.New()}
	s.r = s.newEngine()
	if err := s.initDeps(ctx); err != nil {
		s.closeClients()
		return nil, err
	}
	s.routes()
	return s, nil
}

type ServerDeps struct {
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	Validator     *validation.Validator
	Submit        *usecase.SubmitOperation
	Accounts      domain.AccountStore
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	s := &Server{
		cfg:           cfg,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		validator:     deps.Validator,
		submit:        deps.Submit,
		accounts:      deps.Accounts,
		authenticator: deps.Authenticator,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	s.r = s.newEngine()
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.observe(), s.cors())
	return r
}

func (s *Server) initDeps(ctx context.Context) error {
	s.validator = validation.New()

	if s.cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
	}

	var (
		idemStore  domain.IdempotencyStore
		auditStore domain.AuditLogStore
	)
	if s.store != nil && s.store.DB != nil {
		idemRepo := db.NewIdempotencyRepository(s.store.DB)
		idemStore = idemRepo
		auditStore = db.NewAuditLogRepository(s.store.DB)
		s.pruner = idemRepo

		pool, err := accountdb.NewStore(ctx, s.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("init account store: %w", err)
		}
		s.accountPool = pool
		s.accounts = pool
	} else {
		idemStore = ledgermem.NewIdempotencyStore()
		auditStore = ledgermem.NewAuditLogStore()
		s.accounts = ledgermem.NewAccountStore()
	}

	var cache channels.Cache
	if s.cfg.ChannelCacheBackend == "redis" && s.redis != nil {
		cache = channels.NewRedisCache(s.redis, s.cfg.ChannelCacheTTL())
	} else {
		cache = cachemem.New(s.cfg.ChannelCacheMaxEntries, s.cfg.ChannelCacheTTL())
	}
	resolver := channels.NewResolver(
		channels.NewNeynarDirectory(s.cfg.NeynarAPIURL, s.cfg.NeynarAPIKey),
		cache, s.logger.Named("channels"), s.metrics,
	)

	network, err := hub.ParseNetwork(s.cfg.FarcasterNetwork)
	if err != nil {
		return err
	}
	hubClient, err := hub.NewClient(hub.ClientConfig{
		HubURLs: s.cfg.HubURLs,
		APIKey:  s.cfg.HubAPIKey,
		Timeout: s.cfg.HubTimeout(),
		Logger:  s.logger.Named("hub"),
		Metrics: s.metrics,
	})
	if err != nil {
		return fmt.Errorf("init hub client: %w", err)
	}

	var policy domain.PolicyEngine
	if s.cfg.SigningPolicyPath != "" {
		engine, err := policyopa.NewEngineFromPath(ctx, s.cfg.SigningPolicyPath)
		if err != nil {
			return fmt.Errorf("load signing policy: %w", err)
		}
		policy = engine
	}

	s.submit = &usecase.SubmitOperation{
		Policy:   policy,
		Channels: resolver,
		Ledger: &usecase.IdempotencyLedger{
			Store:   idemStore,
			Wait:    s.cfg.IdempotencyWait(),
			Logger:  s.logger.Named("idempotency"),
			Metrics: s.metrics,
		},
		Submitter: hub.NewSubmitter(hubClient, network),
		Audit:     usecase.NewAuditLogger(auditStore, s.cfg.AuditQueueSize, s.logger.Named("audit"), s.metrics),
		Logger:    s.logger.Named("signing"),
		Metrics:   s.metrics,
	}

	var limiter domain.RateLimiter
	if s.redis != nil && s.cfg.RateLimitRequests > 0 {
		limiter, err = ratelimit.NewRedisLimiter(s.redis, nil)
		if err != nil {
			return err
		}
	}
	s.initRateLimit(limiter)
	s.initAuth()
	return nil
}

func (s *Server) initAuth() {
	if s.authenticator != nil {
		return
	}
	var err error
	switch s.cfg.AuthMode {
	case "":
		s.authInitErr = errors.New("AUTH_MODE is required")
	case "jwt":
		s.authenticator, err = jwt.NewAuthenticator(s.cfg)
	case "gotrue":
		s.authenticator, err = gotrue.NewAuthenticator(s.cfg)
	default:
		s.authInitErr = fmt.Errorf("unsupported auth mode %q", s.cfg.AuthMode)
	}
	if err != nil {
		s.authenticator = nil
		s.authInitErr = err
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
			MaxKeys: s.cfg.RateLimitMaxKeys,
		})
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.mountWriteRoutes(s.r.Group("/"))
	if s.cfg.RoutePrefix != "" {
		s.mountWriteRoutes(s.r.Group(s.cfg.RoutePrefix))
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) mountWriteRoutes(g *gin.RouterGroup) {
	g.Use(s.requireAuth, s.rateLimit)
	g.POST("/cast", s.handleWrite(s.validator.Cast))
	g.DELETE("/cast", s.handleWrite(s.validator.DeleteCast))
	g.POST("/reaction", s.handleWrite(s.reactionParser(false)))
	g.DELETE("/reaction", s.handleWrite(s.reactionParser(true)))
	g.POST("/follow", s.handleWrite(s.followParser(false)))
	g.DELETE("/follow", s.handleWrite(s.followParser(true)))
	g.POST("/user-data", s.handleWrite(s.validator.UserData))
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.r }

// Run serves until ctx is cancelled, then drains in-flight requests and the
// audit queue.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.pruner != nil && s.cfg.IdempotencyTTLHours > 0 {
		go s.pruneLedger(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.cfg.HTTPAddr), zap.String("route_prefix", s.cfg.RoutePrefix))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close(shutdownCtx)
	return err
}

// Close flushes the audit queue and releases clients owned by the server.
func (s *Server) Close(ctx context.Context) {
	if s.submit != nil && s.submit.Audit != nil {
		if err := s.submit.Audit.Close(ctx); err != nil {
			s.logger.Warn("audit queue not drained", zap.Error(err))
		}
	}
	s.closeClients()
}

func (s *Server) closeClients() {
	if s.accountPool != nil {
		s.accountPool.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func (s *Server) pruneLedger(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.IdempotencyRetention())
			n, err := s.pruner.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				s.logger.Warn("idempotency retention sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("idempotency rows pruned", zap.Int64("rows", n))
			}
		}
	}
}
