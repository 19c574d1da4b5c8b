package main

import (
	_ "backend/api/swagger" // swagger docs
	"backend/internal/audit"
	"backend/internal/database"
	"backend/internal/draft"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"
	"context"
	"log"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Sales Desk API
// @version         1.0
// @description     Backend for sales notes, quotations and supplier purchases with wizard-driven capture, draft recovery and a full audit trail.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		logger.Fatal("Database connection failed", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	partyRepo := repository.NewPartyRepository(db)
	productRepo := repository.NewProductRepository(db)
	noteRepo := repository.NewSalesNoteRepository(db)
	quotationRepo := repository.NewQuotationRepository(db)
	purchaseRepo := repository.NewSupplierPurchaseRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	recorder := audit.NewRecorder(auditRepo, logger)
	draftStore := draft.NewGormStore(db)

	// Seed the walk-in customer singleton
	if _, err := service.EnsureWalkInParty(context.Background(), partyRepo); err != nil {
		logger.Fatal("Walk-in party seed failed", zap.Error(err))
	}

	userService := service.NewUserService(userRepo)
	partyService := service.NewPartyService(partyRepo)
	productService := service.NewProductService(productRepo)
	noteService := service.NewSalesNoteService(noteRepo, partyRepo, recorder, txManager, wsHub, logger)
	quotationService := service.NewQuotationService(quotationRepo, noteService, recorder, txManager, logger)
	purchaseService := service.NewSupplierPurchaseService(purchaseRepo, partyRepo, recorder, txManager, logger)
	auditService := service.NewAuditService(auditRepo)
	sessionService := service.NewWizardSessionService(draftStore, logger,
		service.NewSalesNoteFlow(noteService, partyService),
	)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	partyHandler := handler.NewPartyHandler(partyService, noteService)
	productHandler := handler.NewProductHandler(productService)
	noteHandler := handler.NewSalesNoteHandler(noteService)
	quotationHandler := handler.NewQuotationHandler(quotationService)
	purchaseHandler := handler.NewPurchaseHandler(purchaseService)
	auditHandler := handler.NewAuditHandler(auditService)
	draftHandler := handler.NewDraftHandler(draftStore)
	wizardHandler := handler.NewWizardHandler(sessionService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	partyHandler.RegisterRoutes(router.Group(""))
	productHandler.RegisterRoutes(router.Group(""))
	noteHandler.RegisterRoutes(router.Group(""))
	quotationHandler.RegisterRoutes(router.Group(""))
	purchaseHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))
	draftHandler.RegisterRoutes(router.Group(""))
	wizardHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("Server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("GIN_MODE") == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
