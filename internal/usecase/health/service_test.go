package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]Checker{
		"embedding": &mockChecker{},
		"chat":      &mockChecker{},
		"index":     CheckerFunc(func(context.Context) error { return nil }),
	})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"database", "embedding", "chat", "index"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, map[string]Checker{"embedding": &mockChecker{}})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
}

func TestCheck_UpstreamError(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]Checker{
		"embedding": &mockChecker{},
		"chat":      &mockChecker{err: errors.New("timeout")},
	})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["chat"] != CheckError {
		t.Errorf("expected chat %q, got %q", CheckError, r.Checks["chat"])
	}
}

func TestCheck_SkipsNilCheckers(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]Checker{"embedding": nil})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be absent when its checker is nil")
	}
}

func TestCheck_AppliesTimeout(t *testing.T) {
	svc := New(&mockDBPinger{}, map[string]Checker{
		"index": CheckerFunc(func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}),
	})
	if r := svc.Check(context.Background()); r.Checks["index"] != CheckOK {
		t.Errorf("expected checks to run under a deadline")
	}
}
