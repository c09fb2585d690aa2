package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func healthyDB(t *testing.T) (sqlmock.Sqlmock, *HealthChecker, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	return mock, NewHealthChecker(db, nil), func() { db.Close() }
}

func TestCheck_NoDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy with nothing to check, got %s", status.Status)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("Expected no dependency entries, got %d", len(status.Dependencies))
	}
}

func TestCheck_DatabaseHealthy(t *testing.T) {
	_, checker, cleanup := healthyDB(t)
	defer cleanup()

	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status.Status)
	}
	dep, ok := status.Dependencies["database"]
	if !ok {
		t.Fatal("Expected a database dependency entry")
	}
	if dep.Status != StatusHealthy {
		t.Errorf("Expected healthy database, got %s (%s)", dep.Status, dep.Message)
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy when postgres is down, got %s", status.Status)
	}
}

func TestCheck_RedisDownOnlyDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	checker := NewHealthChecker(nil, client)
	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("Expected degraded when only redis is down, got %s", status.Status)
	}
	if status.Dependencies["redis"].Status != StatusUnhealthy {
		t.Errorf("Expected redis marked unhealthy, got %s", status.Dependencies["redis"].Status)
	}
}

func TestCheck_RedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status.Status)
	}
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest("GET", "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	t.Run("healthy returns 200 with body", func(t *testing.T) {
		_, checker, cleanup := healthyDB(t)
		defer cleanup()

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var status HealthStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("Invalid JSON body: %v", err)
		}
		if status.Status != StatusHealthy {
			t.Errorf("Expected healthy body, got %s", status.Status)
		}
	})

	t.Run("unhealthy returns 503", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			t.Fatalf("Failed to create mock db: %v", err)
		}
		defer db.Close()
		mock.ExpectPing().WillReturnError(context.DeadlineExceeded)

		checker := NewHealthChecker(db, nil)
		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest("GET", "/health/ready", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200 from %s, got %d", path, rec.Code)
		}
	}
}
