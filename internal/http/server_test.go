// README: API surface tests: route wiring, status codes, end-to-end flow.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"dispatch/internal/config"
	transport "dispatch/internal/http"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/agent"
	"dispatch/internal/modules/dispatch"
	"dispatch/internal/modules/ingest"
	"dispatch/internal/modules/rank"
	"dispatch/internal/modules/spatial"
	"dispatch/internal/notify"
)

type testAPI struct {
	handler  http.Handler
	registry *agent.Registry
	notifier *notify.MemoryNotifier
	coord    *dispatch.Coordinator
	params   *dispatch.ParamStore
	cancel   context.CancelFunc
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := agent.NewRegistry()
	ix := spatial.NewIndex(config.SpatialConfig{
		CellSizeM:  500,
		ResultCap:  50,
		StaleAfter: 30 * time.Second,
		EvictAfter: 5 * time.Minute,
	}, nil)
	notifier := notify.NewMemoryNotifier()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	params := dispatch.NewParamStore(config.DefaultDispatchParams())
	coord := dispatch.NewCoordinator(dispatch.CoordinatorDeps{
		Store:    dispatch.NewStore(),
		Index:    ix,
		Registry: reg,
		Ranker:   rank.NewRanker(nil, m, nil),
		Notifier: notifier,
		Params:   params,
		Metrics:  m,
	})
	ing := ingest.NewService(reg, ix, config.IngestConfig{MaxSpeedMPS: 70}, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go ing.Run(ctx)
	t.Cleanup(cancel)

	srv := transport.NewServer(transport.ServerDeps{
		Coordinator: coord,
		Ingest:      ing,
		Params:      params,
		Gatherer:    registry,
	})
	return &testAPI{
		handler:  srv.Routes(),
		registry: reg,
		notifier: notifier,
		coord:    coord,
		params:   params,
		cancel:   cancel,
	}
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSubmitRequest_Accepted(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPost, "/api/requests", map[string]any{
		"lat": 25.03, "lng": 121.56,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	body := decode(t, w)
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatalf("missing request_id in %v", body)
	}
}

func TestSubmitRequest_BadBody(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPost, "/api/requests", map[string]any{
		"lat": 91.0, "lng": 0.0,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range latitude: status = %d, want 400", w.Code)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodGet, "/api/requests/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCancelRequest_NotFound(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPost, "/api/requests/nope/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUpdateLocation_CreatesAgent(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPut, "/api/agents/a1/location", map[string]any{
		"lat": 25.03, "lng": 121.56, "timestamp": time.Now().Format(time.RFC3339),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	// Ingest is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := api.registry.Get("a1"); ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("agent never appeared in the registry")
}

func TestUpdateLocation_RejectsBadCoordinates(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPut, "/api/agents/a1/location", map[string]any{
		"lat": 200.0, "lng": 0.0,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSetAvailability_UnknownAgent(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPost, "/api/agents/ghost/availability", map[string]any{
		"available": false,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDecision_UnknownRequest(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodPost, "/api/offers/decision", map[string]any{
		"request_id": "nope", "agent_id": "a1", "accept": true,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAdminParams_RoundTrip(t *testing.T) {
	api := newTestAPI(t)

	w := doRequest(api.handler, http.MethodGet, "/api/admin/params", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	view := decode(t, w)
	view["top_k"] = 5
	view["offer_timeout_ms"] = 9000

	w = doRequest(api.handler, http.MethodPut, "/api/admin/params", view)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	got := api.params.Load()
	if got.TopK != 5 || got.OfferTimeout != 9*time.Second {
		t.Fatalf("live params = %+v", got)
	}
}

func TestAdminParams_RejectsInvalid(t *testing.T) {
	api := newTestAPI(t)
	w := doRequest(api.handler, http.MethodGet, "/api/admin/params", nil)
	view := decode(t, w)
	view["max_rounds"] = 0

	w = doRequest(api.handler, http.MethodPut, "/api/admin/params", view)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if api.params.Load().MaxRounds == 0 {
		t.Fatal("invalid params went live")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)
	if w := doRequest(api.handler, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if w := doRequest(api.handler, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

// Full path: agent reports in over HTTP, a request is submitted, the offer is
// answered through the decision endpoint, and the status endpoint converges
// to matched.
func TestEndToEnd_SubmitOfferAcceptMatch(t *testing.T) {
	api := newTestAPI(t)
	api.notifier.OnOffer = func(ev notify.OfferEvent) {
		go func() {
			doRequest(api.handler, http.MethodPost, "/api/offers/decision", map[string]any{
				"request_id": string(ev.RequestID),
				"agent_id":   string(ev.AgentID),
				"accept":     true,
			})
		}()
	}

	w := doRequest(api.handler, http.MethodPut, "/api/agents/a1/location", map[string]any{
		"lat": 25.0300, "lng": 121.5600, "timestamp": time.Now().Format(time.RFC3339),
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("location status = %d", w.Code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := api.registry.Get("a1"); ok {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	w = doRequest(api.handler, http.MethodPost, "/api/requests", map[string]any{
		"lat": 25.0301, "lng": 121.5601,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", w.Code)
	}
	id, _ := decode(t, w)["request_id"].(string)
	if id == "" {
		t.Fatal("no request id returned")
	}

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w = doRequest(api.handler, http.MethodGet, "/api/requests/"+id, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get status = %d", w.Code)
		}
		body := decode(t, w)
		if body["status"] == string(dispatch.StatusMatched) {
			if body["agent_id"] != "a1" {
				t.Fatalf("matched agent = %v, want a1", body["agent_id"])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request never reached matched")
}
