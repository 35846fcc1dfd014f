package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"orbita-service/internal/app"
	"orbita-service/internal/domain"
	pgloader "orbita-service/internal/infra/postgres"
	pgmigrations "orbita-service/internal/infra/postgres/migrations"
	infraredis "orbita-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestCompleteQuestionnaireEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedTest(t, ctx, pgURL, sampleTest())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewTestLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	testRepo := infraredis.NewTestRepository(redisClient, loader, 5*time.Minute)
	sessions := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	results := infraredis.NewResultStore(redisClient)
	service := app.NewOrientationService(sessions, testRepo, results)

	if _, err := service.Start(ctx, "intereses", "u1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var record *domain.ResultRecord
	for i := 0; i < 2; i++ {
		if _, record, err = service.Select(ctx, "intereses", "u1", "Sí"); err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
	}
	if _, record, err = service.Skip(ctx, "intereses", "u1"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if record == nil {
		t.Fatalf("expected completion record")
	}
	if record.Results["realista"] != 67 {
		t.Fatalf("expected realista=67 (2 of 3), got %d", record.Results["realista"])
	}

	loaded, found, err := service.Results(ctx, "intereses")
	if err != nil || !found {
		t.Fatalf("results: found=%v err=%v", found, err)
	}
	if loaded.Results["realista"] != 67 {
		t.Fatalf("round-trip through redis mismatch: %+v", loaded)
	}

	history, err := service.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].TestID != "intereses" {
		t.Fatalf("expected one history entry, got %+v", history)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "orbita", "POSTGRES_PASSWORD": "orbitapass", "POSTGRES_DB": "orbitadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://orbita:orbitapass@%s:%s/orbitadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedTest(t *testing.T, ctx context.Context, dsn string, test domain.Test) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(test)
	if err != nil {
		t.Fatalf("marshal test: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO tests (route, data) VALUES (? , ?::jsonb) ON CONFLICT (route) DO UPDATE SET data=EXCLUDED.data`, test.Route, string(data)); err != nil {
		t.Fatalf("insert test: %v", err)
	}
}

func sampleTest() domain.Test {
	yesNo := []domain.Option{
		{Label: "Sí", Score: 1},
		{Label: "No", Score: 0},
	}
	return domain.Test{
		ID:         1,
		Name:       "Test de Intereses",
		Route:      "intereses",
		Dimensions: []string{"realista"},
		Questions: []domain.Question{
			{ID: 1, Text: "¿Te gustaría reparar aparatos eléctricos?", Dimension: "realista", Options: yesNo},
			{ID: 2, Text: "¿Te gustaría construir muebles?", Dimension: "realista", Options: yesNo},
			{ID: 3, Text: "¿Te gustaría manejar maquinaria pesada?", Dimension: "realista", Options: yesNo},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
