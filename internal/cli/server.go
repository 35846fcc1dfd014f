package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orbita-service/internal/app"
	"orbita-service/internal/config"
	"orbita-service/internal/domain"
	"orbita-service/internal/infra/memory"
	pgloader "orbita-service/internal/infra/postgres"
	redisinfra "orbita-service/internal/infra/redis"
	transport "orbita-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the orientation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
	if pool != nil {
		loader = pgloader.NewTestLoader(pool)
	}

	testTTL := config.TTLDuration(cfg.Tests.TTL, 10*time.Minute)
	var testRepo app.TestRepository
	if redisClient != nil {
		testRepo = redisinfra.NewTestRepository(redisClient, loader, testTTL)
	} else {
		testRepo = memory.NewTestRepository(loader, testTTL)
	}

	var sessions app.SessionRepository
	var results app.ResultRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
		results = redisinfra.NewResultStore(redisClient)
	} else {
		sessions = memory.NewSessionStore()
		results = memory.NewResultStore()
	}
	service := app.NewOrientationService(sessions, testRepo, results)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting orientation service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTests provides a minimal catalog; with Postgres configured the JSONB loader takes over.
func sampleTests() map[string]domain.Test {
	return map[string]domain.Test{
		"intereses": {
			ID:         1,
			Name:       "Test de Intereses",
			Route:      "intereses",
			Dimensions: []string{"realista", "investigador", "artistico", "social"},
			Questions: []domain.Question{
				{
					ID:        1,
					Text:      "¿Te gustaría reparar aparatos eléctricos?",
					Dimension: "realista",
					Options: []domain.Option{
						{Label: "Sí", Score: 1},
						{Label: "No", Score: 0},
					},
				},
				{
					ID:        2,
					Text:      "¿Te gustaría investigar el origen de una enfermedad?",
					Dimension: "investigador",
					Options: []domain.Option{
						{Label: "Sí", Score: 1},
						{Label: "No", Score: 0},
					},
				},
				{
					ID:        3,
					Text:      "¿Te gustaría pintar un mural?",
					Dimension: "artistico",
					Options: []domain.Option{
						{Label: "Sí", Score: 1},
						{Label: "No", Score: 0},
					},
				},
				{
					ID:        4,
					Text:      "¿Te gustaría enseñar a leer a un niño?",
					Dimension: "social",
					Options: []domain.Option{
						{Label: "Sí", Score: 1},
						{Label: "No", Score: 0},
					},
				},
			},
		},
		"personality": {
			ID:    2,
			Name:  "Test de Personalidad",
			Route: "personality",
			Questions: []domain.Question{
				{
					ID:   1,
					Text: "¿Prefieres trabajar en equipo o solo?",
					Options: []domain.Option{
						{Label: "En equipo"},
						{Label: "Solo"},
					},
				},
			},
		},
	}
}
