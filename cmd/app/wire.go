//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/ai-helloworld/internal/bootstrap"
	"github.com/yanqian/ai-helloworld/internal/domain/auth"
	"github.com/yanqian/ai-helloworld/internal/infra/config"
	httpiface "github.com/yanqian/ai-helloworld/internal/interface/http"
	"github.com/yanqian/ai-helloworld/pkg/logger"
)

func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		provideRAGConfig,
		provideAuthConfig,
		provideAuthRepository,
		auth.NewService,
		provideVectorStore,
		provideSessionRepository,
		provideMessageRepository,
		provideAgentRepository,
		provideFolderRepository,
		provideDocumentFolderRepository,
		provideFeedbackRepository,
		provideUsageRepository,
		provideObjectStorage,
		provideURLFetcher,
		provideExtractorRegistry,
		provideEmbedder,
		provideReranker,
		provideLLMRouter,
		provideJobStore,
		providePipeline,
		provideJobQueue,
		provideRetriever,
		provideOrchestrator,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
