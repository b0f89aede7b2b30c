package main

import (
	"log"
	"net/http"

	"medcover-tracking/internal/config"
	"medcover-tracking/internal/database"
	"medcover-tracking/internal/handlers"
	"medcover-tracking/internal/middleware"
	"medcover-tracking/internal/services"
	"medcover-tracking/internal/websocket"
	"medcover-tracking/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 MEDCOVER TRACKING INGESTION SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	log.Println("📂 Loading environment variables...")
	config.LoadEnv()

	cfg, err := config.LoadServer()
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Invalid configuration")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	if cfg.JWTSecret == "" {
		log.Println("⚠️  APP_JWT_SECRET not set, authenticated routes will return 500")
	}

	log.Println("🔌 Connecting to database...")
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database connection failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	defer db.Close()
	log.Println("✅ Database connection established")

	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Database migrations failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Database migrations completed")

	// Push is optional; without credentials events are only stored and broadcast
	var notifier handlers.ShiftNotifier
	var fcmService *services.FCMService
	if cfg.FirebaseCredsBase64 != "" {
		fcmService, err = services.NewFCMServiceFromBase64(cfg.FirebaseCredsBase64)
	} else {
		fcmService, err = services.NewFCMService(cfg.FirebaseCredsFile)
	}
	if err != nil {
		log.Printf("⚠️  Failed to initialize FCM: %v (push notifications disabled)", err)
	} else {
		notifier = fcmService
		log.Printf("✅ Firebase Cloud Messaging initialized (topic %s)", cfg.FCMSupervisorTopic)
	}

	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	store := database.NewIngestStore(db)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "ok",
			"feed_clients":    wsHub.GetClientCount(),
			"push_configured": notifier != nil,
		})
	})

	// Supervisor live feed (token via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, cfg.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		// Diagnostic logging endpoint (no auth required for easier debugging)
		r.Post("/logs/diagnostic", handlers.ReceiveDiagnosticLog())

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.Post("/tracking/samples", handlers.IngestSamples(store, wsHub))
			r.Post("/tracking/events", handlers.IngestShiftEvent(store, wsHub, notifier, cfg.FCMSupervisorTopic))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleSupervisor))
				r.Get("/tracking/bookings/{bookingID}/trail", handlers.GetBookingTrail(store))
			})
		})
	})

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Server failed to start")
		log.Printf("   Error: %v", err)
		log.Printf("   Port: %s", cfg.Port)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
}
