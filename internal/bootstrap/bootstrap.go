// Package bootstrap wires configuration, infrastructure and use cases into a
// runnable application graph shared by the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vessellink/veddy/internal/config"
	"github.com/vessellink/veddy/internal/core/domain"
	"github.com/vessellink/veddy/internal/core/ports"
	"github.com/vessellink/veddy/internal/core/usecase"
	"github.com/vessellink/veddy/internal/infrastructure/channel/teams"
	"github.com/vessellink/veddy/internal/infrastructure/chunking"
	"github.com/vessellink/veddy/internal/infrastructure/extractor"
	pdfextractor "github.com/vessellink/veddy/internal/infrastructure/extractor/pdf"
	"github.com/vessellink/veddy/internal/infrastructure/extractor/plaintext"
	"github.com/vessellink/veddy/internal/infrastructure/inference/tei"
	"github.com/vessellink/veddy/internal/infrastructure/llm/openai"
	"github.com/vessellink/veddy/internal/infrastructure/queue/nats"
	"github.com/vessellink/veddy/internal/infrastructure/repository/postgres"
	"github.com/vessellink/veddy/internal/infrastructure/resilience"
	"github.com/vessellink/veddy/internal/infrastructure/storage/localfs"
	"github.com/vessellink/veddy/internal/infrastructure/tokenizer/tiktoken"
	"github.com/vessellink/veddy/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Repo    ports.DocumentRepository
	Ingest  ports.DocumentIngestor
	Process ports.DocumentProcessor
	Chat    ports.ChatService

	// Channel and NewTeamsSender are nil when the Teams channel is not
	// configured.
	Channel        ports.ChannelTransport
	NewTeamsSender func(conv ports.ChannelConversation) *teams.StreamSender

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	messages := postgres.NewMessageStore(db)
	searchStore := postgres.NewSearchStore(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	teiClient := tei.New(cfg.TEIEmbedURL, cfg.TEIRerankURL, executor)
	chatModel := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAITemperature, int64(cfg.OpenAIMaxTokens))

	tokenizer, err := tiktoken.New(cfg.TokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	chunker, err := chunking.NewTokenSplitter(tokenizer, cfg.ChunkTokens, cfg.ChunkOverlap, cfg.ChunkMin)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	extract := extractor.NewRouter(pdfextractor.NewExtractor(storage), plaintext.NewExtractor(storage))

	prompts, err := usecase.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	detector := usecase.NewComparisonDetector()
	reranker := usecase.NewReranker(teiClient)
	retriever := usecase.NewRetriever(teiClient, searchStore, reranker, usecase.RetrieverConfig{
		MatchCount:     cfg.MatchCount,
		MatchThreshold: cfg.MatchThreshold,
		EfSearch:       cfg.HNSWEfSearch,
		RerankEnabled:  cfg.RerankEnabled,
		RerankTopK:     cfg.RerankTopK,
		FullTextWeight: cfg.FullTextWeight,
		SemanticWeight: cfg.SemanticWeight,
		TopicQualifier: cfg.TopicQualifier,
	})
	streamer := usecase.NewStreamer(chatModel, prompts, time.Duration(cfg.GenerationTimeoutSeconds)*time.Second)
	chat := usecase.NewChatUseCase(detector, retriever, streamer, messages, cfg.HistoryMessages)

	ingest := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	process := usecase.NewProcessDocumentUseCase(repo, extract, chunker, teiClient, searchStore)

	var channel ports.ChannelTransport
	var newTeamsSender func(conv ports.ChannelConversation) *teams.StreamSender
	if cfg.TeamsAppID != "" {
		teamsClient := teams.New(cfg.TeamsAppID, cfg.TeamsAppPassword, teams.Options{
			ResilienceExecutor: executor,
		})
		channel = teamsClient
		flush := time.Duration(cfg.TeamsFlushMillis) * time.Millisecond
		newTeamsSender = func(conv ports.ChannelConversation) *teams.StreamSender {
			return teams.NewStreamSender(teamsClient, conv, domain.NewStreamSession(uuid.NewString()), flush, logger)
		}
	}

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:   queue,
		Repo:    repo,
		Ingest:  ingest,
		Process: process,
		Chat:    chat,

		Channel:        channel,
		NewTeamsSender: newTeamsSender,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
