package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AnshRaj112/rehab-backend/internal/app"
	"github.com/AnshRaj112/rehab-backend/internal/config"
	"github.com/AnshRaj112/rehab-backend/internal/database"
	"github.com/AnshRaj112/rehab-backend/internal/database/memstore"
	"github.com/AnshRaj112/rehab-backend/internal/handlers"
	"github.com/AnshRaj112/rehab-backend/internal/logx"
	"github.com/AnshRaj112/rehab-backend/internal/middleware"
	"github.com/AnshRaj112/rehab-backend/internal/routes"
	"github.com/AnshRaj112/rehab-backend/internal/services"
	"github.com/AnshRaj112/rehab-backend/pkg/clientip"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	if err := logx.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal(err)
	}

	km, generated, err := cfg.KeyMaterial()
	if err != nil {
		log.Fatal("Invalid key material: ", err)
	}
	if generated {
		log.Println("⚠️  WARNING: ENCRYPTION_KEY and BLIND_INDEX_KEY not set. Using generated keys.")
		log.Println("   Data written now is unreadable after a restart.")
		log.Println("   To generate a pair, run: rehabctl keygen")
	} else {
		log.Println("✅ Encryption keys configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	db, err := database.ConnectPostgres(ctx, cfg.PostgresURI)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL: ", err)
	}
	defer db.Close()

	resolver := clientip.Resolver{TrustProxy: cfg.TrustProxy}
	resetLimit := middleware.LoginRateLimiter(resolver).Handler

	var sessions services.SessionStore
	switch cfg.SessionStore {
	case "redis":
		log.Printf("Connecting to Redis...")
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			log.Fatal("Failed to connect to Redis: ", err)
		}
		defer rdb.Close()
		sessions = database.NewRedisSessionStore(rdb)
		resetLimit = middleware.WindowRateLimit(middleware.NewRedisWindowCounter(rdb), resolver,
			"password_reset", middleware.ResetRequestMax, middleware.ResetRequestWindow)
	default:
		log.Println("⚠️  WARNING: sessions are kept in memory and lost on restart")
		sessions = memstore.NewSessionStore(time.Now)
	}

	if cfg.SMTPAddr == "" && cfg.IsDevelopment() {
		log.Println("⚠️  WARNING: SMTP_ADDR is not set; password reset links are not delivered")
	}
	svc, err := app.NewAuthService(cfg, km, app.Backends{
		Store:       database.NewPostgresStore(db),
		Sessions:    sessions,
		Assignments: database.NewPostgresAssignmentChecker(db),
	})
	if err != nil {
		log.Fatal("Failed to initialize auth service: ", err)
	}

	secureCookie := cfg.IsProduction()
	authHandler := handlers.NewAuthHandler(svc, resolver, secureCookie)
	videoHandler := handlers.NewVideoHandler(svc, handlers.FileVideoServer{Dir: cfg.VideoDir}, resolver)

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost, middleware.GlobalRateLimiter(resolver)) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP rate limiting)")
	} else {
		r.Use(middleware.SecurityHeaders)
	}

	deps := routes.NewDeps(authHandler, videoHandler, svc, resolver, secureCookie)
	deps.LoginLimit = middleware.LoginRateLimiter(resolver).Handler
	deps.ResetLimit = resetLimit
	routes.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Rehab backend running on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server: ", err)
	}
}
