package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"evofit/health-protocol/internal/api"
	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/config"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/generation"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/repository"
	"evofit/health-protocol/internal/repository/memory"
	"evofit/health-protocol/internal/repository/mongo"
	"evofit/health-protocol/internal/repository/redis"
	"evofit/health-protocol/internal/safety"
	"evofit/health-protocol/internal/service"
	"evofit/health-protocol/internal/storage"
	"evofit/health-protocol/internal/versioning"
	"evofit/health-protocol/internal/wizard"

	"github.com/gin-gonic/gin"
)

type repositories struct {
	users       repository.UserRepository
	protocols   repository.ProtocolRepository
	assignments repository.AssignmentRepository
	versions    repository.VersionRepository
}

// @title EvoFit Health Protocol API
// @version 1.0
// @description Protocol creation wizard, safety validation, versioning and assignments for trainers and customers.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("could not load config: " + err.Error())
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic("could not build logger: " + err.Error())
	}
	defer log.Sync()
	log.Info("Starting EvoFit health protocol server...", "database", cfg.Database.Driver, "generation", cfg.Generation.Provider)

	if cfg.JWT.Secret == "" {
		log.Fatal("JWT secret is not configured (set JWT_SECRET)")
	}

	ctx := context.Background()

	// --- Repositories ---
	var repos repositories
	var demoUsers []domain.User
	switch strings.ToLower(cfg.Database.Driver) {
	case "memory":
		users := memory.NewUserRepository()
		trainer := users.Put(domain.User{Name: "Demo Trainer", Email: "trainer@evofit.local", Role: domain.RoleTrainer})
		trainerID := trainer.ID
		customer := users.Put(domain.User{Name: "Demo Customer", Email: "customer@evofit.local", Role: domain.RoleCustomer, TrainerID: &trainerID})
		demoUsers = []domain.User{trainer, customer}
		repos = repositories{
			users:       users,
			protocols:   memory.NewProtocolRepository(),
			assignments: memory.NewAssignmentRepository(),
			versions:    memory.NewVersionRepository(),
		}
		log.Warn("Using in-memory repositories; data is lost on restart")
	default:
		dbClient, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			log.Fatal("Could not connect to MongoDB", "error", err)
		}
		defer func() {
			log.Info("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Error("Failed to disconnect MongoDB", "error", err)
			}
		}()
		appDB := dbClient.Database(cfg.Database.Name)
		log.Info("Database connection established.", "database", cfg.Database.Name)

		go func() {
			indexCtx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
			defer cancel()
			if err := mongo.EnsureIndexes(indexCtx, appDB); err != nil {
				log.Error("Index creation failed", "error", err)
				return
			}
			log.Info("Index creation process completed.")
		}()

		repos = repositories{
			users:       mongo.NewMongoUserRepository(appDB),
			protocols:   mongo.NewMongoProtocolRepository(appDB),
			assignments: mongo.NewMongoAssignmentRepository(appDB),
			versions:    mongo.NewMongoVersionRepository(appDB),
		}
	}

	// --- Snapshot storage ---
	var files storage.FileStorage
	if cfg.S3.BucketName != "" {
		files, err = storage.NewS3Storage(ctx, cfg.S3, log)
		if err != nil {
			log.Fatal("Failed to initialize S3 storage", "error", err)
		}
	} else {
		log.Warn("No S3 bucket configured; version snapshots are kept in memory")
		files = storage.NewMemoryStorage()
	}
	snapshots := storage.NewSnapshotArchive(files)

	// --- Wizard drafts ---
	var drafts wizard.DraftStore
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Could not connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rdb.Close()
		drafts = redis.NewDraftStore(rdb, cfg.Redis.DraftTTL, log)
		log.Info("Wizard drafts persisted to Redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.DraftTTL.String())
	} else {
		drafts = wizard.NewMemoryDraftStore()
	}

	// --- Domain components ---
	policy := safety.DefaultPolicy()
	if cfg.Safety.PolicyFile != "" {
		policy, err = safety.LoadPolicy(cfg.Safety.PolicyFile)
		if err != nil {
			log.Fatal("Failed to load safety policy", "file", cfg.Safety.PolicyFile, "error", err)
		}
	}
	validator := safety.NewValidator(policy)
	templates := catalog.Default()

	generator, err := generation.New(ctx, cfg.Generation, log)
	if err != nil {
		log.Fatal("Failed to initialize generation client", "provider", cfg.Generation.Provider, "error", err)
	}

	// --- Services ---
	versioner := versioning.New(repos.versions, snapshots, log)
	authService := service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	trainerService := service.NewTrainerService(repos.users)
	protocolService := service.NewProtocolService(repos.protocols, repos.assignments, repos.users, versioner, snapshots, log)
	assignmentService := service.NewAssignmentService(repos.assignments, repos.protocols)

	controller := wizard.NewController(templates, validator, generator, protocolService, wizard.Options{
		GenerationTimeout: cfg.Generation.Timeout,
		Clients:           trainerService,
		Logger:            log,
	})
	manager := wizard.NewManager(controller, drafts, log)
	defer manager.Close()

	for _, u := range demoUsers {
		token, err := authService.IssueToken(ctx, u.ID)
		if err != nil {
			log.Fatal("Failed to issue demo token", "user", u.Email, "error", err)
		}
		log.Info("Demo user", "email", u.Email, "role", u.Role, "token", token)
	}

	// --- Gin Engine ---
	if strings.EqualFold(cfg.Log.Mode, "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Dependencies{
		AuthService:       authService,
		TrainerService:    trainerService,
		ProtocolService:   protocolService,
		AssignmentService: assignmentService,
		Catalog:           templates,
		Validator:         validator,
		Wizard:            manager,
		Logger:            log,
	})

	// --- Start HTTP Server ---
	// WriteTimeout leaves room for a synchronous generation call.
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Generation.Timeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe error", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("Server exiting.")
}
