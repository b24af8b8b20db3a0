package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"llm-price-tracker/internal/changes"
)

func TestRecorderObserveRun(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(RunStats{
		Models:   42,
		Dropped:  3,
		Accepted: map[string]int{"openrouter": 30, "litellm": 15},
		Summary:  changes.Summary{PriceIncreases: 2, PriceDecreases: 1, NewModels: 4},
		Finished: time.Unix(1_760_000_000, 0),
	})

	if got := testutil.ToFloat64(r.models); got != 42 {
		t.Fatalf("models gauge = %v", got)
	}
	if got := testutil.ToFloat64(r.dropped); got != 3 {
		t.Fatalf("dropped gauge = %v", got)
	}
	if got := testutil.ToFloat64(r.accepted.WithLabelValues("litellm")); got != 15 {
		t.Fatalf("accepted{litellm} = %v", got)
	}
	if got := testutil.ToFloat64(r.changes.WithLabelValues(string(changes.Increased))); got != 2 {
		t.Fatalf("changes{price_increased} = %v", got)
	}
	if got := testutil.ToFloat64(r.lastSuccess); got != 1_760_000_000 {
		t.Fatalf("last success = %v", got)
	}

	r.ObserveFailure()
	if got := testutil.ToFloat64(r.failures); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestPushgatewayPusher(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.ObserveRun(RunStats{Models: 1, Finished: time.Now()})

	p := NewPushgatewayPusher(srv.URL, "llmprices", map[string]string{"environment": "test", "": "ignored"}, zerolog.Nop())
	if err := p.Push(context.Background(), r.Registry()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", method)
	}
	if !strings.HasPrefix(path, "/metrics/job/llmprices") || !strings.Contains(path, "environment/test") {
		t.Fatalf("unexpected push path %q", path)
	}
}

func TestPushgatewayPusherRequiresJob(t *testing.T) {
	p := NewPushgatewayPusher("http://localhost:9091", " ", nil, zerolog.Nop())
	if err := p.Push(context.Background(), NewRecorder().Registry()); err == nil {
		t.Fatal("expected error for empty job")
	}
}
