package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"tutorat/internal/ai"
	appsvc "tutorat/internal/app"
	"tutorat/internal/cache"
	"tutorat/internal/chunker"
	"tutorat/internal/config"
	"tutorat/internal/model"
	mysqlClient "tutorat/internal/platform/mysql"
	"tutorat/internal/platform/qdrant"
	rabbitmqClient "tutorat/internal/platform/rabbitmq"
	redisClient "tutorat/internal/platform/redis"
	"tutorat/internal/repository"
	"tutorat/internal/worker"
)

type App struct {
	Config           *config.Config
	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	Qdrant           *qdrant.Client
	Embedder         *ai.Client
	Documents        *repository.DocumentRepository
	SearchCache      *cache.SearchCache
	Gate             *appsvc.AvailabilityGate
	Ingest           *appsvc.IngestService
	Retrieval        *appsvc.RetrievalService
	ReindexPublisher *rabbitmqClient.ReindexPublisher
	ReindexWorker    *worker.ReindexWorker

	StartedAt time.Time
}

// New wires the serving process. Registry, cache, and queue are hard
// dependencies; the vector store and embedding provider are not. When they are
// unconfigured or unreachable the server still boots and every search runs
// degraded behind the availability gate.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.Document{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	qdrantCli := qdrant.NewClient(qdrant.Config{
		URL:           cfg.Qdrant.URL,
		APIKey:        cfg.Qdrant.APIKey,
		Collection:    cfg.Qdrant.Collection,
		Timeout:       time.Duration(cfg.Qdrant.TimeoutMs) * time.Millisecond,
		HealthTimeout: time.Duration(cfg.Qdrant.HealthTimeoutMs) * time.Millisecond,
	})
	embedder := ai.NewClient(ai.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})

	configured := cfg.VectorStoreConfigured()
	if configured {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := embedder.ValidateDimension(probeCtx); err != nil {
			log.Printf("embedding dimension probe failed, serving degraded until the provider recovers: %v", err)
		}
		cancel()
	} else {
		log.Printf("vector store not configured, retrieval will serve empty results")
	}

	searchCache := cache.NewSearchCache(redisCli, time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second)
	documents := repository.NewDocumentRepository(mysqlDB)
	gate := appsvc.NewAvailabilityGate(qdrantCli, configured, 0)

	ck := chunker.New(
		chunker.WithBounds(cfg.Ingest.MinChunkLen, cfg.Ingest.MaxChunkLen),
		chunker.WithOverlapFraction(cfg.Ingest.OverlapFraction),
	)
	ingest := appsvc.NewIngestService(documents, ck, embedder, qdrantCli, searchCache, cfg.Ingest)
	retrieval := appsvc.NewRetrievalService(embedder, qdrantCli, searchCache, gate, cfg.Retrieval)

	publisher := rabbitmqClient.NewReindexPublisher(mqConn, cfg.RabbitMQ.ReindexQueue)
	reindexWorker := worker.NewReindexWorker(mqConn, ingest, cfg.RabbitMQ.ReindexQueue)
	if err := reindexWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start reindex worker failed: %w", err)
	}

	return &App{
		Config:           cfg,
		MySQL:            mysqlDB,
		Redis:            redisCli,
		MQConn:           mqConn,
		Qdrant:           qdrantCli,
		Embedder:         embedder,
		Documents:        documents,
		SearchCache:      searchCache,
		Gate:             gate,
		Ingest:           ingest,
		Retrieval:        retrieval,
		ReindexPublisher: publisher,
		ReindexWorker:    reindexWorker,
		StartedAt:        time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.ReindexWorker != nil {
		a.ReindexWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
