// The indexer is the ops CLI for the curriculum index: batch ingestion,
// per-document reindex, and quick checks against the backing services. It
// runs off-line, so unlike the server it refuses to start with an incomplete
// vector store configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"tutorat/internal/ai"
	appsvc "tutorat/internal/app"
	"tutorat/internal/cache"
	"tutorat/internal/chunker"
	"tutorat/internal/config"
	"tutorat/internal/model"
	mysqlClient "tutorat/internal/platform/mysql"
	"tutorat/internal/platform/qdrant"
	redisClient "tutorat/internal/platform/redis"
	"tutorat/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:          "indexer",
	Short:        "Batch ingestion and maintenance for the curriculum index",
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest every registry document into the vector store",
	RunE:  runIngest,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <document-id>",
	Short: "Drop and re-ingest one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindex,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry and collection counts",
	RunE:  runStats,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check each backing service",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(ingestCmd, reindexCmd, statsCmd, healthCmd)
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps is the subset of the server's wiring the CLI commands need. Each
// command builds it fresh and closes it on exit.
type deps struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *redis.Client
	docs     *repository.DocumentRepository
	qdrant   *qdrant.Client
	embedder *ai.Client
	cache    *cache.SearchCache
	ingest   *appsvc.IngestService
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.VectorStoreConfigured() {
		return nil, fmt.Errorf("vector store configuration incomplete: set qdrant url/collection and embedding base_url/model/dimension")
	}

	db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.Document{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
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

	searchCache := cache.NewSearchCache(redisCli, time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second)
	docs := repository.NewDocumentRepository(db)
	ck := chunker.New(
		chunker.WithBounds(cfg.Ingest.MinChunkLen, cfg.Ingest.MaxChunkLen),
		chunker.WithOverlapFraction(cfg.Ingest.OverlapFraction),
	)
	ingest := appsvc.NewIngestService(docs, ck, embedder, qdrantCli, searchCache, cfg.Ingest)

	return &deps{
		cfg:      cfg,
		db:       db,
		redis:    redisCli,
		docs:     docs,
		qdrant:   qdrantCli,
		embedder: embedder,
		cache:    searchCache,
		ingest:   ingest,
	}, nil
}

func (d *deps) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		if sqlDB, err := d.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := d.embedder.ValidateDimension(probeCtx); err != nil {
		return fmt.Errorf("embedding dimension check failed: %w", err)
	}

	report, err := d.ingest.RunFromRegistry(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if report.Inserted+report.Updated > 0 {
		if err := d.cache.InvalidateAll(ctx); err != nil {
			log.Printf("invalidate search cache failed: %v", err)
		}
	}

	printJSON(report)
	if len(report.Errors) > 0 {
		return fmt.Errorf("ingestion finished with %d errors", len(report.Errors))
	}
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	id := args[0]
	if err := d.ingest.ReindexDocument(ctx, id); err != nil {
		return err
	}
	fmt.Printf("reindexed document %s\n", id)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	count, err := d.docs.Count()
	if err != nil {
		return fmt.Errorf("count documents failed: %w", err)
	}
	fmt.Printf("registry documents: %d\n", count)

	stats, err := d.qdrant.CollectionStats(ctx)
	if err != nil {
		return fmt.Errorf("collection stats failed: %w", err)
	}
	fmt.Printf("collection points:  %d (status %s)\n", stats.PointCount, stats.Status)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	failed := false
	report := func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Printf("%-10s FAIL  %v\n", name, err)
			return
		}
		fmt.Printf("%-10s OK\n", name)
	}

	sqlDB, err := d.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	report("mysql", err)
	report("redis", d.redis.Ping(ctx).Err())
	if d.qdrant.Health(ctx) {
		report("qdrant", nil)
	} else {
		report("qdrant", fmt.Errorf("unreachable"))
	}
	report("embedding", d.embedder.ValidateDimension(ctx))

	if failed {
		return fmt.Errorf("one or more dependencies unhealthy")
	}
	return nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encode report failed: %v", err)
		return
	}
	fmt.Println(string(out))
}
