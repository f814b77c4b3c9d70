package app

import (
	"context"
	"testing"
	"time"

	"orchestrationapi/internal/config"
)

func testConfig(t *testing.T) *config.MockConfig {
	t.Helper()
	cfg := config.NewMockConfig()
	cfg.Server.Port = 0 // let the OS assign a free port
	cfg.HealthCheck.Enabled = false
	return cfg
}

func TestNew_BuildsServiceGraphAgainstInMemoryDB(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if a.db == nil {
		t.Fatal("expected a database connection")
	}
	if a.engine == nil {
		t.Fatal("expected an HTTP handler")
	}
}

func TestStartStop_ServesHealthEndpointThenShutsDownCleanly(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	// Give the ListenAndServe goroutine a moment to bind before shutting down.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.Stop(ctx)
}

func TestNew_HealthCheckDisabledSkipsWorkerInterval(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	// Run() on an interval<=0 worker is a documented no-op; Stop() must
	// still be safe to call even though Run() never started anything.
	a.healthCheck.Run()
	a.healthCheck.Stop()
}
