package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	m := New()
	m.AuditDropped.Inc()
	m.HubSubmissions.WithLabelValues("https://hub.example", "ok").Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"castgate_audit_dropped_total 1", `castgate_hub_submissions_total{hub="https://hub.example",result="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.RateLimited.Inc()
	if a.Registry == b.Registry {
		t.Fatal("expected separate registries")
	}
}
