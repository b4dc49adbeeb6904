package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/counsel-scripture-api/internal/config"
	"github.com/counsel-scripture-api/internal/handlers"
	"github.com/counsel-scripture-api/internal/middleware"
	"github.com/counsel-scripture-api/internal/repository"
	"github.com/counsel-scripture-api/internal/repository/postgres"
	"github.com/counsel-scripture-api/internal/repository/vertex"
	"github.com/counsel-scripture-api/internal/services"
	pkgconfig "github.com/counsel-scripture-api/pkg/schema/config"
	"github.com/counsel-scripture-api/pkg/schema/db"
	pkgservices "github.com/counsel-scripture-api/pkg/schema/services"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := config.GetConfig()
	baseCfg := pkgconfig.GetConfig()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSMiddleware())

	// Initialize PostgreSQL
	ctx := context.Background()
	if err := db.InitPostgres(ctx); err != nil {
		log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	log.Println("Database initialization complete")

	// Create repositories
	pgDB := db.GetPostgres()
	verseRepo := postgres.NewVerseRepository(pgDB)
	lexicalRepo := postgres.NewLexicalSearchRepository(pgDB, cfg.TrgmSimilarityThreshold)
	synonymRepo := postgres.NewSynonymRepository(pgDB)
	conversationRepo := postgres.NewConversationRepository(pgDB)

	// Create vector search repository based on configuration
	var vectorRepo repository.VectorSearchRepository
	var vertexRepo *vertex.VectorSearchRepository // For cleanup

	if cfg.VectorEnabled {
		switch cfg.VectorBackend {
		case "vertex":
			log.Println("Using Vertex AI Vector Search backend")
			vertexCfg := vertex.Config{
				ProjectID:            cfg.VertexProjectID,
				Location:             cfg.VertexLocation,
				IndexEndpointID:      cfg.VertexIndexEndpointID,
				DeployedIndexID:      cfg.VertexDeployedIndexID,
				PublicEndpointDomain: cfg.VertexPublicEndpointDomain,
			}
			var err error
			vertexRepo, err = vertex.NewVectorSearchRepository(ctx, vertexCfg, pgDB)
			if err != nil {
				log.Fatalf("Failed to create Vertex AI vector repository: %v", err)
			}
			vectorRepo = vertexRepo
		default:
			log.Println("Using pgvector backend")
			vectorRepo = postgres.NewVectorSearchRepository(pgDB)
		}
	} else {
		log.Println("Vector search disabled, lexical search only")
	}

	// Create services
	var embeddingsSvc *pkgservices.EmbeddingsService
	if vectorRepo != nil {
		var err error
		embeddingsSvc, err = pkgservices.NewEmbeddingsService(ctx, baseCfg)
		if err != nil {
			log.Fatalf("Failed to initialize embeddings service: %v", err)
		}
	}

	llm := pkgservices.NewCompletionService(baseCfg)
	morph := pkgservices.NewMorphService(baseCfg)
	events := services.NewEventLogger(cfg.EventLogPath, cfg.LogIDSalt)

	var reranker *services.Reranker
	if cfg.RerankMode == "model" {
		if scorer := pkgservices.NewRerankerService(baseCfg); scorer != nil {
			reranker = services.NewReranker(scorer, cfg.RerankCandidates)
		} else {
			log.Println("Reranker URL not configured, reranking off")
		}
	}

	extractor := services.NewKeywordExtractor(morph)
	expander := services.NewSynonymExpander(synonymRepo)
	retrievalSvc := services.NewRetrievalService(lexicalRepo, vectorRepo, embeddingsSvc, extractor, expander, reranker, events, cfg)
	gatingSvc := services.NewGatingService(llm, events, cfg.LLMSlowMs)
	verifier := services.NewCitationVerifier(verseRepo)
	store := services.NewConversationStore(conversationRepo)
	chatSvc := services.NewChatService(store, verseRepo, retrievalSvc, gatingSvc, verifier, events, cfg)

	// Create API group with prefix
	api := e.Group(cfg.APIPrefix)

	// Register handlers
	healthHandler := handlers.NewHealthHandler()
	healthHandler.RegisterRoutes(api)

	searchHandler := handlers.NewSearchHandler(verseRepo, lexicalRepo, events, cfg.SearchSlowMs)
	searchHandler.RegisterRoutes(api)

	chatHandler := handlers.NewChatHandler(chatSvc)
	chatHandler.RegisterRoutes(api)

	// Root health check
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"name":    cfg.APITitle,
			"version": cfg.APIVersion,
			"status":  "running",
		})
	})

	// Start server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Printf("Starting %s v%s on %s", cfg.APITitle, cfg.APIVersion, addr)
		if err := e.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if vertexRepo != nil {
		if err := vertexRepo.Close(); err != nil {
			log.Printf("Vertex repository close error: %v", err)
		}
	}

	if err := db.ClosePostgres(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Server stopped")
}
