package health

import (
	"net/http/httptest"
	"testing"
)

func TestCheckDatabase_NilDatabase(t *testing.T) {
	hc := NewHealthChecker(nil, nil)
	info := hc.checkDatabase()
	if info.Status != "unhealthy" {
		t.Fatalf("checkDatabase() with nil db: Status = %q, want unhealthy", info.Status)
	}
}

func TestCheckDatabase_WorkingDatabase(t *testing.T) {
	hc := NewHealthChecker(nil, &stubDatabase{})
	info := hc.checkDatabase()
	if info.Status != "healthy" {
		t.Fatalf("checkDatabase() with working db: Status = %q, want healthy", info.Status)
	}
}

func TestCheckDatabase_FailingDatabase(t *testing.T) {
	hc := NewHealthChecker(nil, &stubDatabase{getErr: errFailure})
	info := hc.checkDatabase()
	if info.Status != "unhealthy" {
		t.Fatalf("checkDatabase() with failing db: Status = %q, want unhealthy", info.Status)
	}
}

func TestCheckPublisher_NilPublisher(t *testing.T) {
	hc := NewHealthChecker(nil, &stubDatabase{})
	info := hc.checkPublisher()
	if info.Status != "unhealthy" {
		t.Fatalf("checkPublisher() with nil publisher: Status = %q, want unhealthy", info.Status)
	}
}

func TestCheckHealth_DegradedWithNilServices(t *testing.T) {
	hc := NewHealthChecker(nil, nil)
	status := hc.CheckHealth()
	if status.Status != "degraded" {
		t.Fatalf("CheckHealth() with nil db/publisher: Status = %q, want degraded", status.Status)
	}
	if status.Services["database"].Status != "unhealthy" {
		t.Error("expected database service to be unhealthy")
	}
	if status.Services["publisher"].Status != "unhealthy" {
		t.Error("expected publisher service to be unhealthy")
	}
}

func TestCheckHealth_HealthyWithWorkingDatabase(t *testing.T) {
	hc := NewHealthChecker(nil, &stubDatabase{})
	status := hc.CheckHealth()
	if status.Services["database"].Status != "healthy" {
		t.Fatalf("database service Status = %q, want healthy", status.Services["database"].Status)
	}
	// publisher is still nil, so overall status stays degraded.
	if status.Status != "degraded" {
		t.Fatalf("CheckHealth() Status = %q, want degraded", status.Status)
	}
}

func TestHealthHandler_WritesJSON(t *testing.T) {
	hc := NewHealthChecker(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	hc.HealthHandler(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("HealthHandler wrote an empty body")
	}
}

func TestReadinessHandler_AlwaysReady(t *testing.T) {
	hc := NewHealthChecker(nil, nil)
	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	hc.ReadinessHandler(w, req)

	if w.Code != 200 {
		t.Fatalf("ReadinessHandler status = %d, want 200", w.Code)
	}
}

type stubDatabase struct {
	getErr error
}

func (s *stubDatabase) Get(key []byte) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return []byte("ok"), nil
}
func (s *stubDatabase) Put(key []byte, value []byte) error { return nil }
func (s *stubDatabase) Delete(key []byte) error             { return nil }
func (s *stubDatabase) Close() error                         { return nil }

type stubError string

func (e stubError) Error() string { return string(e) }

var errFailure = stubError("boom")
