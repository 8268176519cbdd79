package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ladleio/ladle/pkg/broker"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	checker := NewHTTPChecker("nominatim", server.URL)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}
	if result.Duration <= 0 {
		t.Error("Expected positive duration")
	}
	if checker.Name() != "nominatim" {
		t.Errorf("Expected name nominatim, got %s", checker.Name())
	}
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	checker := NewHTTPChecker("arcgis", server.URL)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy, got healthy: %s", result.Message)
	}
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	// Nominatim answers 404 on its bare root; a probe that treats that
	// as reachable needs a wider acceptable range.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewHTTPChecker("nominatim", server.URL).WithStatusRange(200, 499)

	result := checker.Check(context.Background())

	if !result.Healthy {
		t.Errorf("Expected healthy for 404 within range, got unhealthy: %s", result.Message)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker("census", server.URL).WithTimeout(50 * time.Millisecond)

	result := checker.Check(context.Background())

	if result.Healthy {
		t.Errorf("Expected unhealthy due to timeout, got healthy: %s", result.Message)
	}
}

func TestPostgresChecker(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")

	checker := NewPostgresChecker(db)
	if checker.Name() != "postgres" {
		t.Errorf("Expected name postgres, got %s", checker.Name())
	}

	mock.ExpectPing()
	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)
	result = checker.Check(context.Background())
	if result.Healthy {
		t.Error("Expected unhealthy when ping fails")
	}
	if result.Message == "" {
		t.Error("Expected a failure message")
	}
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := broker.NewWithClient(rdb)

	checker := NewRedisChecker(b)
	if checker.Name() != "broker" {
		t.Errorf("Expected name broker, got %s", checker.Name())
	}

	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("Expected healthy, got unhealthy: %s", result.Message)
	}

	mr.Close()
	result = checker.Check(context.Background())
	if result.Healthy {
		t.Error("Expected unhealthy after broker shutdown")
	}
}

type stubChecker struct {
	name    string
	healthy bool
}

func (s stubChecker) Name() string { return s.name }

func (s stubChecker) Check(ctx context.Context) Result {
	return Result{Healthy: s.healthy, CheckedAt: time.Now()}
}

func TestSetRunsEveryChecker(t *testing.T) {
	set := NewSet(time.Second,
		stubChecker{name: "postgres", healthy: true},
		stubChecker{name: "broker", healthy: true},
	)
	set.Add(stubChecker{name: "arcgis", healthy: false})

	results := set.Run(context.Background())

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, name := range []string{"postgres", "broker", "arcgis"} {
		if _, ok := results[name]; !ok {
			t.Errorf("Expected a result for %s", name)
		}
	}
	if Healthy(results) {
		t.Error("Expected unhealthy aggregate when one check fails")
	}
}

func TestHealthyOnAllPassing(t *testing.T) {
	set := NewSet(time.Second,
		stubChecker{name: "postgres", healthy: true},
		stubChecker{name: "broker", healthy: true},
	)

	results := set.Run(context.Background())

	if !Healthy(results) {
		t.Error("Expected healthy aggregate when every check passes")
	}
}
