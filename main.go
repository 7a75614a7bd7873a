package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"math-duel-system/handlers"
	"math-duel-system/middleware"
	"math-duel-system/models"
	"math-duel-system/services"
	"math-duel-system/utils"
	"math-duel-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // answer-sheet photos
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.QueueTicket{},
		&models.Match{},
		&models.Round{},
		&models.Answer{},
		&models.PlayerState{},
		&models.RatingHistory{},
		&models.PlayerProfile{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	clock := clockwork.NewRealClock()
	duelConfig := services.LoadDuelConfig()

	profileService := services.NewProfileService(db)
	queueService := services.NewQueueService(db, clock, duelConfig)
	matchService := services.NewMatchService(db, clock, duelConfig)
	answerJudge := services.NewAnswerJudge(services.NewVisionJudgeClient())
	roundService := services.NewRoundService(db, clock, duelConfig, answerJudge, matchService)
	matchmaker := services.NewMatchmakingService(db, clock, duelConfig, queueService, matchService, profileService)
	sweeps := services.NewSweepService(db, clock, duelConfig, matchmaker, roundService, matchService)

	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("DUEL_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("DUEL_SERVICE_TOKEN environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncWorker := workers.NewProfileSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", serviceToken)
	syncWorker.Start(ctx)

	sweeps.StartDuelScheduler()

	handlers.SetupDuelRoutes(app, &handlers.DuelHandler{
		Matchmaker: matchmaker,
		Queue:      queueService,
		Rounds:     roundService,
		Matches:    matchService,
	})

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ Duel sweeps running (matchmaker 1m, round-lock 1m, inactivity 2m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
