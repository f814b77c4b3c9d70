package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orchestrationapi/internal/models"
	"orchestrationapi/internal/persistence"
	"orchestrationapi/internal/provider"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestChecker(t *testing.T) (*Checker, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.HealthCheckResult{}, &models.HealthCheckStats{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewChecker(persistence.New(db)), db
}

func testTimeouts() provider.Config {
	return provider.Config{ConnectTimeout: 2 * time.Second, UnaryResponseTimeout: 2 * time.Second}
}

func TestCheck_AllTiersHealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data":[{"id":"gpt-4o"}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer upstream.Close()

	c, db := newTestChecker(t)
	group := &models.GroupConfig{
		ID: "g1", ProviderType: models.ProviderOpenAI, BaseURL: upstream.URL,
		APIKeyList: []string{"k1", "k2"}, TestModel: "gpt-4o",
	}

	report, err := c.Check(context.Background(), group, testTimeouts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.ProviderOK || !report.KeysOK || !report.ModelsOK {
		t.Fatalf("expected all tiers healthy: %+v", report)
	}
	if report.Inconsistency != "" {
		t.Fatalf("expected no inconsistency, got %q", report.Inconsistency)
	}

	var resultCount int64
	db.Model(&models.HealthCheckResult{}).Count(&resultCount)
	// 1 provider + 2 key + 2 model (one per key, single TestModel) = 5
	if resultCount != 5 {
		t.Fatalf("expected 5 persisted probe results, got %d", resultCount)
	}

	var stats models.HealthCheckStats
	if err := db.First(&stats, "group_id = ? AND check_type = ?", "g1", CheckTypeModel).Error; err != nil {
		t.Fatalf("lookup model stats: %v", err)
	}
	if stats.TotalCount != 2 || stats.SuccessCount != 2 || stats.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected model stats: %+v", stats)
	}
}

func TestCheck_ProviderDownSkipsLaterTiers(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	c, db := newTestChecker(t)
	group := &models.GroupConfig{
		ID: "g1", ProviderType: models.ProviderOpenAI, BaseURL: upstream.URL,
		APIKeyList: []string{"k1"}, TestModel: "gpt-4o",
	}

	report, err := c.Check(context.Background(), group, testTimeouts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ProviderOK {
		t.Fatal("expected provider tier to fail")
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected tiers 2-3 to be skipped, got %d results", len(report.Results))
	}

	var count int64
	db.Model(&models.HealthCheckResult{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the provider probe persisted, got %d", count)
	}
}

func TestCheck_ModelsFailReportsInconsistency(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer upstream.Close()

	c, _ := newTestChecker(t)
	group := &models.GroupConfig{
		ID: "g1", ProviderType: models.ProviderOpenAI, BaseURL: upstream.URL,
		APIKeyList: []string{"k1"}, TestModel: "gpt-4o",
	}

	report, err := c.Check(context.Background(), group, testTimeouts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.ProviderOK || !report.KeysOK || report.ModelsOK {
		t.Fatalf("expected provider+keys ok, models failing: %+v", report)
	}
	if report.Inconsistency == "" {
		t.Fatal("expected an inconsistency explanation")
	}
}

func TestStatusMessage_FixedTable(t *testing.T) {
	cases := map[int]string{
		200: "ok", 401: "invalid key", 403: "forbidden",
		404: "endpoint missing", 429: "rate-limited", 503: "server error",
	}
	for code, want := range cases {
		if got := statusMessage(code); got != want {
			t.Errorf("statusMessage(%d) = %q, want %q", code, got, want)
		}
	}
}
