// Package testutil provides shared test infrastructure: a disposable
// PostgreSQL container, quiet loggers and design fixtures.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/storage"
	"github.com/ashita-ai/archdoc/migrations"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// MustStartPostgres starts a PostgreSQL container. Calls os.Exit(1) on
// failure (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "archdoc",
			"POSTGRES_PASSWORD": "archdoc",
			"POSTGRES_DB":       "archdoc",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://archdoc:archdoc@%s:%s/archdoc?sslmode=disable", host, port.Port())
	return &TestContainer{Container: container, DSN: dsn}
}

// NewTestDB connects a storage.DB to this container and runs all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// SampleDesign returns a small canonical design named name with components
// "API", "Cache" and "Store".
func SampleDesign(name string) model.SystemDesign {
	comp := func(id, n, typ string, techs ...string) model.Component {
		return model.Component{
			ID:             id,
			Name:           n,
			Type:           typ,
			Purpose:        n + " purpose",
			Technologies:   model.Strings(techs),
			Scalability:    "Horizontal scaling",
			FaultTolerance: "High availability",
		}
	}
	return model.SystemDesign{
		ProjectName:  name,
		Version:      "1.0",
		Timestamp:    "2026-01-01T00:00:00Z",
		Requirements: []byte(`{"functional":["checkout"]}`),
		Research:     []byte(`{"patterns":[],"company_case_studies":[]}`),
		Architecture: model.Architecture{
			Overview:          name + " overview",
			ArchitectureStyle: "Microservices",
			Components: []model.Component{
				comp("c-api", "API", "Gateway", "Go"),
				comp("c-cache", "Cache", "Cache", "Redis"),
				comp("c-store", "Store", "Database", "PostgreSQL"),
			},
			TradeOffDecisions: []model.TradeOff{{
				Decision:     "Cache reads",
				Alternatives: model.Strings{"No cache"},
				Reasoning:    "Latency",
				TradeOffs:    &model.TradeOffDetail{Benefits: []string{"fast"}, Costs: []string{"staleness"}},
			}},
		},
		Validation: model.Validation{
			PotentialIssues: []model.Issue{{Issue: "Cache stampede", Severity: "Medium", Mitigation: "Request coalescing"}},
		},
		Documentation: model.Documentation{
			CostEstimation: &model.CostEstimation{MonthlyEstimate: "$1,000", Breakdown: map[string]string{"compute": "$600"}},
		},
	}
}

// AgentResponse wraps design the way the orchestrator agent returns it.
func AgentResponse(design model.SystemDesign) []byte {
	b, err := json.Marshal(map[string]any{"result": map[string]any{"system_design": design}})
	if err != nil {
		panic(err)
	}
	return b
}
