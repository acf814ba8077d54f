package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/ai-helloworld/internal/domain/auth"
	"github.com/yanqian/ai-helloworld/internal/domain/rag"
	"github.com/yanqian/ai-helloworld/internal/infra/config"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/openaicompat"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/router"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/embedder"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/extractors"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/queue"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/repo"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/reranker"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/storage"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/urlfetch"
	"github.com/yanqian/ai-helloworld/internal/infra/rag/vectorstore"
	"github.com/yanqian/ai-helloworld/internal/infra/userrepo"
)

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		Secret:          cfg.Auth.JWTSecret,
		TokenTTL:        cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}
}

func provideAuthRepository(cfg *config.Config, logger *slog.Logger) auth.Repository {
	fallback := userrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.Auth.Postgres.DSN)
	if dsn == "" {
		logger.Info("auth postgres dsn not set, using memory repository")
		return fallback
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid auth postgres dsn, using memory repository", "error", err)
		return fallback
	}
	if cfg.Auth.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Auth.Postgres.MaxConns
	}
	if cfg.Auth.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Auth.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize auth postgres pool, using memory repository", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("auth postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return fallback
	}
	logger.Info("auth postgres repository enabled")
	return userrepo.NewPostgresRepository(pool)
}

func provideRAGConfig(cfg *config.Config) config.RAGConfig {
	return cfg.RAG
}

// provideRAGPostgresPool lazily builds the single pgvector-aware pool shared
// by the vector store and every metadata repository. A blank DSN means the
// deployment runs entirely on the in-memory adapters.
var (
	ragPoolOnce sync.Once
	ragPool     *pgxpool.Pool
)

func provideRAGPostgresPool(cfg config.RAGConfig, logger *slog.Logger) *pgxpool.Pool {
	ragPoolOnce.Do(func() {
		dsn := strings.TrimSpace(cfg.Postgres.DSN)
		if dsn == "" {
			logger.Info("rag postgres dsn not set, using in-memory adapters")
			return
		}
		poolConfig, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			logger.Error("invalid rag postgres dsn, using in-memory adapters", "error", err)
			return
		}
		registerPgVector(poolConfig, logger)
		if cfg.Postgres.MaxConns > 0 {
			poolConfig.MaxConns = cfg.Postgres.MaxConns
		}
		if cfg.Postgres.MinConns > 0 {
			poolConfig.MinConns = cfg.Postgres.MinConns
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			logger.Error("failed to initialize rag postgres pool, using in-memory adapters", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("rag postgres ping failed, using in-memory adapters", "error", err)
			pool.Close()
			return
		}
		logger.Info("rag postgres pool enabled")
		ragPool = pool
	})
	return ragPool
}

func registerPgVector(poolConfig *pgxpool.Config, logger *slog.Logger) {
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var oid uint32
		if err := conn.QueryRow(ctx, "SELECT 'vector'::regtype::oid").Scan(&oid); err != nil {
			logger.Error("failed to lookup pgvector oid", "error", err)
			return err
		}
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "vector",
			OID:   oid,
			Codec: pgtype.TextCodec{},
		})
		return nil
	}
}

func provideVectorStore(cfg config.RAGConfig, logger *slog.Logger) rag.VectorStore {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return vectorstore.NewPostgres(pool)
	}
	return vectorstore.NewMemory()
}

func provideSessionRepository(cfg config.RAGConfig, logger *slog.Logger) rag.SessionRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresSessions(pool)
	}
	return repo.NewMemorySessions()
}

func provideMessageRepository(cfg config.RAGConfig, logger *slog.Logger) rag.MessageRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresMessages(pool)
	}
	return repo.NewMemoryMessages()
}

func provideAgentRepository(cfg config.RAGConfig, logger *slog.Logger) rag.AgentRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresAgents(pool)
	}
	return repo.NewMemoryAgents()
}

func provideFolderRepository(cfg config.RAGConfig, logger *slog.Logger) rag.FolderRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresFolders(pool)
	}
	return repo.NewMemoryFolders()
}

func provideDocumentFolderRepository(cfg config.RAGConfig, logger *slog.Logger) rag.DocumentFolderRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresDocumentFolders(pool)
	}
	return repo.NewMemoryDocumentFolders()
}

func provideFeedbackRepository(cfg config.RAGConfig, logger *slog.Logger) rag.FeedbackRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresFeedback(pool)
	}
	return repo.NewMemoryFeedback()
}

func provideUsageRepository(cfg config.RAGConfig, logger *slog.Logger) rag.UsageRepository {
	pool := provideRAGPostgresPool(cfg, logger)
	if pool != nil {
		return repo.NewPostgresUsage(pool)
	}
	return repo.NewMemoryUsage()
}

func provideObjectStorage(cfg config.RAGConfig, logger *slog.Logger) rag.ObjectStorage {
	endpoint := strings.TrimSpace(cfg.Storage.Endpoint)
	accessKey := strings.TrimSpace(cfg.Storage.AccessKey)
	secretKey := strings.TrimSpace(cfg.Storage.SecretKey)
	bucket := strings.TrimSpace(cfg.Storage.Bucket)
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		logger.Info("rag object storage not fully configured, using memory storage")
		return storage.NewMemory()
	}
	r2, err := storage.NewR2(endpoint, accessKey, secretKey, bucket, cfg.Storage.Region, logger)
	if err != nil {
		logger.Error("failed to initialize r2 storage, using memory storage", "error", err)
		return storage.NewMemory()
	}
	logger.Info("rag r2 storage enabled", "endpoint", endpoint, "bucket", bucket)
	return r2
}

func provideURLFetcher() rag.URLFetcher {
	return urlfetch.New()
}

func provideExtractorRegistry() rag.ExtractorRegistry {
	return extractors.NewRegistry()
}

func provideEmbedder(cfg *config.Config, logger *slog.Logger) rag.Embedder {
	apiKey := strings.TrimSpace(cfg.LLM.APIKey)
	model := strings.TrimSpace(cfg.LLM.EmbeddingModel)
	if apiKey == "" || model == "" {
		logger.Warn("embedding credentials unavailable, using deterministic embedder")
		return embedder.NewDeterministic(cfg.RAG.VectorDim)
	}
	client, err := openaicompat.NewClient("embedding", apiKey, cfg.LLM.BaseURL, model, 20*time.Second)
	if err != nil {
		logger.Error("failed to build embedding client, using deterministic embedder", "error", err)
		return embedder.NewDeterministic(cfg.RAG.VectorDim)
	}
	return embedder.NewChatGPT(client, cfg.RAG.VectorDim, logger)
}

func provideReranker(cfg config.RAGConfig) rag.Reranker {
	if !cfg.Reranker.Enabled || strings.TrimSpace(cfg.Reranker.BaseURL) == "" {
		return reranker.NewHeuristic()
	}
	return reranker.NewHTTPReranker(cfg.Reranker.BaseURL, "")
}

func provideLLMRouter(cfg config.RAGConfig, usage rag.UsageRepository, logger *slog.Logger) rag.LLMRouter {
	clients := make([]*openaicompat.Client, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		apiKey := strings.TrimSpace(p.APIKey)
		if apiKey == "" {
			logger.Warn("llm provider credential missing, skipping", "provider", p.Label)
			clients = append(clients, nil)
			continue
		}
		client, err := openaicompat.NewClient(p.Label, apiKey, p.BaseURL, p.Model, p.Timeout)
		if err != nil {
			logger.Error("failed to build llm provider client, skipping", "provider", p.Label, "error", err)
			clients = append(clients, nil)
			continue
		}
		clients = append(clients, client)
	}
	return router.New(clients, usage, logger)
}

func providePipeline(store rag.VectorStore, emb rag.Embedder, registry rag.ExtractorRegistry, logger *slog.Logger) *rag.Pipeline {
	return rag.NewPipeline(store, emb, registry, logger)
}

func provideRetriever(store rag.VectorStore, emb rag.Embedder, rr rag.Reranker, llm rag.LLMRouter, logger *slog.Logger) *rag.Retriever {
	return rag.NewRetriever(store, emb, rr, llm, logger)
}

func provideOrchestrator(sessions rag.SessionRepository, messages rag.MessageRepository, agents rag.AgentRepository, retriever *rag.Retriever, llm rag.LLMRouter, logger *slog.Logger) *rag.Orchestrator {
	return rag.NewOrchestrator(sessions, messages, agents, retriever, llm, logger)
}

func provideJobStore() rag.JobStore {
	return rag.NewInMemoryJobStore()
}

// provideJobQueue builds the Valkey-or-in-process queue and wires its
// handler to run background ingestion for documents uploaded via
// /documents/upload, recording the outcome on the job store.
func provideJobQueue(cfg config.RAGConfig, pipeline *rag.Pipeline, objStorage rag.ObjectStorage, jobs rag.JobStore, docFolders rag.DocumentFolderRepository, logger *slog.Logger) queue.HandlerQueue {
	var hq queue.HandlerQueue
	if cfg.Redis.Enabled {
		opt, err := buildValkeyOptions(cfg.Redis.Addr)
		if err != nil {
			logger.Error("invalid rag valkey configuration, falling back to in-process queue", "error", err)
			hq = queue.NewImmediate(nil)
		} else {
			client, err := valkey.NewClient(opt)
			if err != nil {
				logger.Error("failed to create rag valkey client, falling back to in-process queue", "error", err)
				hq = queue.NewImmediate(nil)
			} else {
				logger.Info("rag valkey queue enabled", "addr", cfg.Redis.Addr)
				hq = queue.NewValkey(client, "rag:ingest", logger)
			}
		}
	} else {
		hq = queue.NewImmediate(nil)
	}

	hq.SetHandler(func(ctx context.Context, name string, payload map[string]any) {
		if name != "ingest_document" {
			return
		}
		jobID, _ := payload["job_id"].(string)
		storageKey, _ := payload["storage_key"].(string)
		filename, _ := payload["filename"].(string)
		collection, _ := payload["collection"].(string)
		folderIDRaw, _ := payload["folder_id"].(string)

		reader, err := objStorage.Get(ctx, storageKey)
		if err != nil {
			jobs.Fail(jobID, err)
			return
		}
		defer reader.Close()
		data, err := io.ReadAll(reader)
		if err != nil {
			jobs.Fail(jobID, err)
			return
		}
		result := pipeline.IngestFile(ctx, filename, data, collection)
		if result.Error != "" {
			jobs.Fail(jobID, fmt.Errorf("%s", result.Error))
			return
		}
		if folderIDRaw != "" {
			if folderID, err := uuid.Parse(folderIDRaw); err == nil {
				if err := docFolders.Assign(ctx, result.DocumentID, &folderID); err != nil {
					logger.Error("failed to assign ingested document to folder", "document_id", result.DocumentID, "error", err)
				}
			}
		}
		jobs.Complete(jobID, result)
	})
	return hq
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
