// Package docqa provides the document question answering server.
package docqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/kart-io/version"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/postgres"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	"github.com/kart-io/docqa/pkg/middleware"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	jwtopts "github.com/kart-io/docqa/pkg/options/jwt"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	pgopts "github.com/kart-io/docqa/pkg/options/postgres"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
	"github.com/kart-io/docqa/pkg/security/auth/jwt"
	"github.com/kart-io/docqa/pkg/utils/validator"
)

// Name is the name of the application.
const Name = "docqa"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	PostgresOptions  *pgopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	JWTOptions       *jwtopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RAGOptions       *ragopts.Options
	TracingOptions   *tracingopts.Options
}

// Server represents the docqa server.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration

	queue       *biz.IngestQueue
	cancelQueue context.CancelFunc
	workers     *pool.Pool
	reaper      *biz.Reaper

	closers []func(ctx context.Context) error
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (srv *Server, err error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", version.Get().GitVersion)
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docqa service...")

	s := &Server{shutdownTimeout: cfg.HTTPOptions.ShutdownTimeout}
	// 初始化失败时释放已创建的资源
	defer func() {
		if err != nil {
			s.close(context.Background())
		}
	}()

	// 2. 初始化链路追踪
	tracer, err := tracing.NewProvider(ctx, cfg.TracingOptions, serviceInfo(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, tracer.Shutdown)
	logger.Infow("Tracing initialized", "enabled", cfg.TracingOptions.Enabled)

	// 3. 初始化数据库与 Store 层
	db, err := postgres.New(ctx, cfg.PostgresOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return db.Close() })

	factory := store.NewFactory(db.DB())
	if cfg.PostgresOptions.AutoMigrate {
		if err := factory.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	logger.Infow("Database initialized", "database", cfg.PostgresOptions.String())

	// 4. 初始化 Milvus 向量索引（可选）
	var index store.VectorIndex
	candidateFactor := 0
	if cfg.MilvusOptions.Enabled {
		milvusClient, err := milvus.New(ctx, cfg.MilvusOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		s.closers = append(s.closers, milvusClient.Close)

		mi, err := store.NewMilvusIndex(ctx, milvusClient, cfg.MilvusOptions.Collection, cfg.RAGOptions.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare milvus collection: %w", err)
		}
		index = mi
		candidateFactor = cfg.MilvusOptions.CandidateFactor
		logger.Infow("Milvus index initialized",
			"address", cfg.MilvusOptions.Address,
			"collection", cfg.MilvusOptions.Collection,
		)
	} else {
		logger.Info("Milvus is disabled, vector search runs in the database")
	}

	// 5. 初始化 Redis 客户端（用于 Embedding 缓存）
	var redisClient *redis.Client
	if cfg.RedisOptions.Enabled {
		redisClient, err = redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return redisClient.Close() })
		logger.Infow("Redis cache initialized", "addr", cfg.RedisOptions.Addr(), "ttl", cfg.RedisOptions.CacheTTL)
	} else {
		logger.Info("Cache is disabled")
	}

	// 6. 初始化 LLM 供应商
	embedProvider, chatProvider, err := newProviders(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	// 7. 初始化 Biz 层
	m := metrics.New()
	files, err := docutil.NewFileStore(cfg.RAGOptions.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload directory: %w", err)
	}
	extractor := docutil.NewExtractor(docutil.WithPDFToText(cfg.RAGOptions.PDFToText))

	embedder := biz.NewEmbedder(embedProvider, biz.EmbedderConfig{
		Dimension:   cfg.RAGOptions.EmbeddingDim,
		BatchSize:   cfg.RAGOptions.EmbedBatchSize,
		Concurrency: cfg.RAGOptions.EmbedConcurrency,
		RPS:         cfg.RAGOptions.EmbedRPS,
	}, m)
	ingester, err := biz.NewIngester(factory, index, extractor, files, embedder, biz.IngesterConfig{
		ChunkSize:    cfg.RAGOptions.ChunkSize,
		ChunkOverlap: cfg.RAGOptions.ChunkOverlap,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingester: %w", err)
	}

	// 8. 启动 ingestion 队列
	s.workers, err = pool.NewPool("ingest", &pool.Config{
		Capacity:       cfg.RAGOptions.Workers,
		ExpiryDuration: time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}

	// 队列使用独立的 ctx，收到退出信号后仍能处理完已入队的任务
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	s.cancelQueue = cancelQueue
	s.queue = biz.NewIngestQueue(ingester, s.workers, cfg.RAGOptions.QueueSize, m)
	s.queue.Start(queueCtx)
	logger.Infow("Ingestion queue started",
		"workers", cfg.RAGOptions.Workers,
		"queue_size", cfg.RAGOptions.QueueSize,
	)

	// 9. 恢复中断的 ingestion
	s.reaper = biz.NewReaper(factory, s.queue, files, cfg.RAGOptions.StaleAfter, cfg.RAGOptions.ReapInterval, m)
	if err := s.reaper.Recover(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover ingestion state: %w", err)
	}

	service := biz.NewService(
		factory,
		index,
		files,
		s.queue,
		embedder,
		biz.NewRetriever(factory, index, candidateFactor, m),
		biz.NewSynthesizer(chatProvider, m),
		biz.ServiceConfig{
			DefaultLimit:  cfg.RAGOptions.TopK,
			MaxLimit:      cfg.RAGOptions.MaxTopK,
			MaxUploadSize: cfg.RAGOptions.MaxUploadSize,
			QueryTimeout:  cfg.RAGOptions.QueryTimeout,
		},
		m,
	)
	logger.Info("Document service initialized")

	// 10. 初始化 HTTP 服务
	authOpts, err := newAuthOptions(cfg.JWTOptions)
	if err != nil {
		return nil, err
	}
	validator.Register()
	gin.SetMode(cfg.HTTPOptions.Mode)

	var cacheCheck router.HealthCheck
	if redisClient != nil {
		cacheCheck = redisClient.Ping
	}
	checks := healthChecks(db.CheckHealth, cacheCheck, index)

	engine := router.New(handler.NewDocumentHandler(service), router.Config{
		Auth:          authOpts,
		MaxUploadSize: cfg.RAGOptions.MaxUploadSize,
		Metrics:       m,
		HealthChecks:  checks,
		Swagger:       cfg.HTTPOptions.EnableSwagger,
	})
	s.httpServer = &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("docqa service is ready")
	return s, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go s.reaper.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down docqa service...")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Errorw("HTTP server failed", "error", serveErr.Error())
		}
	}
	stopReaper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP server shutdown incomplete", "error", err.Error())
	}
	s.close(shutdownCtx)

	logger.Info("docqa service stopped")
	return serveErr
}

// close drains the ingestion queue and releases every dependency.
func (s *Server) close(ctx context.Context) {
	if s.queue != nil {
		if err := s.queue.Stop(ctx); err != nil {
			// 未完成的文档停留在 processing，下次启动时由 Reaper 回收
			logger.Warnw("ingestion queue did not drain", "error", err.Error())
		}
	}
	if s.cancelQueue != nil {
		s.cancelQueue()
	}
	if s.workers != nil {
		if err := s.workers.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warnw("ingestion pool release timed out", "error", err.Error())
		}
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warnw("failed to close dependency", "error", err.Error())
		}
	}
	s.closers = nil
}

// newProviders builds the embedding and chat providers with retry and
// circuit breaking. Embeddings are cached when redis is available.
func newProviders(cfg *Config, redisClient *redis.Client) (llm.EmbeddingProvider, llm.ChatProvider, error) {
	embed, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, providerConfig(cfg.EmbeddingOptions))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	var embedProvider llm.EmbeddingProvider = resilience.NewResilientEmbeddingProvider(
		embed, retryConfig(cfg.EmbeddingOptions), breakerConfig(cfg.EmbeddingOptions))
	if redisClient != nil {
		var cmd goredis.Cmdable = redisClient.Client()
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, cmd, &llm.EmbeddingCacheConfig{
			TTL:       cfg.RedisOptions.CacheTTL,
			KeyPrefix: "docqa:emb:" + cfg.EmbeddingOptions.Model + ":",
		})
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cached", redisClient != nil,
	)

	chat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, providerConfig(cfg.ChatOptions))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatProvider := resilience.NewResilientChatProvider(
		chat, retryConfig(cfg.ChatOptions), breakerConfig(cfg.ChatOptions))
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	return embedProvider, chatProvider, nil
}

// providerConfig disables client level retries; the resilience wrapper retries instead.
func providerConfig(o *llmopts.ProviderOptions) map[string]any {
	cm := o.ToConfigMap()
	cm["max_retries"] = 0
	return cm
}

func retryConfig(o *llmopts.ProviderOptions) *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = o.MaxRetries + 1
	return rc
}

func breakerConfig(o *llmopts.ProviderOptions) *resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig()
	cb.MaxFailures = o.CircuitBreakerFailures
	cb.Timeout = o.CircuitBreakerTimeout
	return cb
}

// newAuthOptions returns the auth middleware configuration.
func newAuthOptions(opts *jwtopts.Options) (middleware.AuthOptions, error) {
	if opts.DisableAuth {
		logger.Warnw("Authentication is disabled, all requests act as the dev owner", "owner", opts.DevOwner)
		return middleware.AuthOptions{DevOwner: opts.DevOwner}, nil
	}

	verifier, err := jwt.New(opts)
	if err != nil {
		return middleware.AuthOptions{}, fmt.Errorf("failed to initialize jwt: %w", err)
	}
	return middleware.AuthOptions{Verifier: verifier}, nil
}

func serviceInfo(cfg *Config) tracing.ServiceInfo {
	info := tracing.ServiceInfo{
		Version:        version.Get().GitVersion,
		EmbeddingModel: cfg.EmbeddingOptions.Model,
		ChatModel:      cfg.ChatOptions.Model,
		VectorIndex:    "sql",
	}
	if cfg.MilvusOptions.Enabled {
		info.VectorIndex = "milvus"
	}
	return info
}

// healthChecks 汇总 /healthz 的依赖检查，未启用的依赖不参与。
func healthChecks(database, cache router.HealthCheck, index store.VectorIndex) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{"database": database}
	if cache != nil {
		checks["redis"] = cache
	}
	if index != nil {
		checks["milvus"] = func(ctx context.Context) error {
			_, err := index.Count(ctx)
			return err
		}
	}
	return checks
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s %s...\n", Name, version.Get().GitVersion)
	fmt.Printf("  HTTP: %s\n", cfg.HTTPOptions.Addr)
	fmt.Printf("  Database: %s\n", cfg.PostgresOptions.String())
	fmt.Printf("  Milvus: %v\n", cfg.MilvusOptions.Enabled)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
}
