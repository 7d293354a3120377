package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"offsider/internal/config"
	"offsider/internal/db"
	"offsider/internal/engine"
	"offsider/internal/migrate"
)

// testServer runs the real handler on a loopback listener with a fake clock
// so concurrency tokens and fuel-watch math are deterministic.
type testServer struct {
	URL    string
	client *http.Client

	mu  sync.Mutex
	now time.Time
}

func (s *testServer) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *testServer) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}

	stores := db.NewStores(t.TempDir(), migrate.Migrate)
	handler, err := New(Config{
		Stores: stores,
		Rigs:   []config.Rig{{ID: "default", Title: "Test Rig"}},
		Secret: "test-secret",
		Logger: log.New(io.Discard, "", 0),
		Now:    ts.Now,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	ts.URL = "http://" + ln.Addr().String()
	ts.client = &http.Client{Jar: jar}
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		stores.Close()
	})
	return ts
}

func get(t *testing.T, ts *testServer, path string) (*http.Response, string) {
	t.Helper()
	res, err := ts.client.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return res, string(data)
}

func getJSON(t *testing.T, ts *testServer, path string, out any) *http.Response {
	t.Helper()
	res, body := get(t, ts, path)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("unmarshal %s: %v: %s", path, err, body)
	}
	return res
}

func postForm(t *testing.T, ts *testServer, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	res, err := ts.client.PostForm(ts.URL+path, form)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return res, string(data)
}

func login(t *testing.T, ts *testServer, actor string) {
	t.Helper()
	res, body := postForm(t, ts, "/auth/login", url.Values{
		"actor":  {actor},
		"rig_id": {"default"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, body)
	}
	if res.Request.URL.Path != "/" {
		t.Fatalf("login landed on %s, want /", res.Request.URL.Path)
	}
}

func TestSessionRequired(t *testing.T) {
	ts := newTestServer(t)

	res, body := get(t, ts, "/stock")
	if res.Request.URL.Path != "/auth/select" {
		t.Fatalf("expected redirect to rig picker, landed on %s", res.Request.URL.Path)
	}
	if !strings.Contains(body, "Test Rig") {
		t.Fatalf("rig picker missing rig title: %s", body)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/api/v0/health"} {
		var out map[string]string
		res := getJSON(t, ts, path, &out)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", path, res.StatusCode)
		}
		if out["status"] != "ok" {
			t.Fatalf("%s status field %q", path, out["status"])
		}
	}
}

func TestStockAdjustConflict(t *testing.T) {
	ts := newTestServer(t)
	login(t, ts, "Cam")

	createdAt := ts.Now().UTC().Format(time.RFC3339)
	res, body := postForm(t, ts, "/stock/new", url.Values{
		"name":       {"Hydraulic oil"},
		"on_rig_qty": {"10"},
		"min_qty":    {"2"},
		"buffer_qty": {"4"},
		"unit":       {"L"},
	})
	if res.StatusCode != http.StatusOK || res.Request.URL.Path != "/stock" {
		t.Fatalf("create stock: status %d path %s: %s", res.StatusCode, res.Request.URL.Path, body)
	}
	token := engine.ConcurrencyToken(createdAt)

	// First adjust with the fresh token goes through.
	ts.Advance(2 * time.Second)
	res, body = postForm(t, ts, "/stock/1/adjust", url.Values{
		"delta":               {"5"},
		"if_unmodified_since": {token},
	})
	if res.StatusCode != http.StatusOK || strings.Contains(body, "Update blocked") {
		t.Fatalf("first adjust refused: status %d: %s", res.StatusCode, body)
	}

	var items []StockItemResponse
	getJSON(t, ts, "/api/v0/stock?rig=default", &items)
	if len(items) != 1 || items[0].OnRigQty != 15 {
		t.Fatalf("after adjust: %+v", items)
	}

	// Replaying the original token must refuse the write and show the
	// current row instead.
	res, body = postForm(t, ts, "/stock/1/adjust", url.Values{
		"delta":               {"3"},
		"if_unmodified_since": {token},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("conflict page status %d", res.StatusCode)
	}
	if !strings.Contains(body, "Update blocked") || !strings.Contains(body, "Hydraulic oil") {
		t.Fatalf("conflict page content: %s", body)
	}

	items = nil
	getJSON(t, ts, "/api/v0/stock?rig=default", &items)
	if items[0].OnRigQty != 15 {
		t.Fatalf("stale write applied: qty %d", items[0].OnRigQty)
	}
}

func TestFuelWatchEscalation(t *testing.T) {
	ts := newTestServer(t)
	login(t, ts, "Cam")

	_, body := get(t, ts, "/jobs")
	if !strings.Contains(body, "No critical items.") {
		t.Fatalf("fresh jobs board: %s", body)
	}

	res, body := postForm(t, ts, "/refuel/watch", url.Values{
		"tank_capacity_l":  {"1000"},
		"start_percent":    {"40"},
		"critical_percent": {"20"},
		"hourly_usage_lph": {"25"},
	})
	if res.StatusCode != http.StatusOK || res.Request.URL.Path != "/jobs" {
		t.Fatalf("create watch: status %d path %s", res.StatusCode, res.Request.URL.Path)
	}
	// 400 L now, critical at 200 L, 25 L/h: 8 hours of margin.
	if !strings.Contains(body, "Fuel Watch · 40% now · to 20% in 8.0 h") {
		t.Fatalf("watch annotation missing: %s", body)
	}

	var tasks []TaskResponse
	getJSON(t, ts, "/api/v0/jobs?rig=default", &tasks)
	if len(tasks) != 1 || !tasks[0].IsFuelWatch {
		t.Fatalf("jobs api: %+v", tasks)
	}
	if tasks[0].EffectivePriority != 2 {
		t.Fatalf("fresh watch priority %d, want 2", tasks[0].EffectivePriority)
	}
	fw := tasks[0].FuelWatch
	if fw == nil || fw.PercentNow != 40 || fw.HoursToCritical == nil || *fw.HoursToCritical != 8 {
		t.Fatalf("fuel watch status: %+v", fw)
	}

	// Five hours in the tank sits at 27.5%, inside the high band.
	ts.Advance(5 * time.Hour)
	tasks = nil
	getJSON(t, ts, "/api/v0/jobs?rig=default", &tasks)
	if tasks[0].EffectivePriority != 1 {
		t.Fatalf("priority after 5h: %d, want 1", tasks[0].EffectivePriority)
	}
	if tasks[0].FuelWatch.PercentNow != 28 {
		t.Fatalf("percent after 5h: %d, want 28", tasks[0].FuelWatch.PercentNow)
	}

	// Four more hours crosses the critical threshold.
	ts.Advance(4 * time.Hour)
	tasks = nil
	getJSON(t, ts, "/api/v0/jobs?rig=default", &tasks)
	if tasks[0].EffectivePriority != 0 {
		t.Fatalf("priority after 9h: %d, want 0", tasks[0].EffectivePriority)
	}

	_, body = get(t, ts, "/jobs")
	if strings.Contains(body, "No critical items.") {
		t.Fatalf("critical watch missing from the board: %s", body)
	}
}

func TestAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	login(t, ts, "Cam")

	postForm(t, ts, "/stock/new", url.Values{
		"name":       {"Grease cartridges"},
		"on_rig_qty": {"6"},
		"min_qty":    {"2"},
		"buffer_qty": {"4"},
	})

	_, body := get(t, ts, "/audit")
	if !strings.Contains(body, "stock[1]") || !strings.Contains(body, "Cam") {
		t.Fatalf("audit page: %s", body)
	}

	var entry struct {
		ID     int64  `json:"id"`
		Actor  string `json:"actor"`
		Entity string `json:"entity"`
		Action string `json:"action"`
	}
	res := getJSON(t, ts, "/audit/1", &entry)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit detail status %d", res.StatusCode)
	}
	if entry.Entity != "stock" || entry.Action != "create" || entry.Actor != "Cam" {
		t.Fatalf("audit detail: %+v", entry)
	}

	res, body = get(t, ts, "/audit/999")
	if res.StatusCode != http.StatusNotFound || !strings.Contains(body, "Not found") {
		t.Fatalf("missing entry: status %d body %s", res.StatusCode, body)
	}

	var page paginatedAuditLogs
	getJSON(t, ts, "/api/v0/audit?rig=default&entity=stock", &page)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].Entity != "stock" {
		t.Fatalf("audit api: %+v", page)
	}
}

func TestUnknownRigRejected(t *testing.T) {
	ts := newTestServer(t)

	res, body := get(t, ts, "/api/v0/stock?rig=nope")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown rig status %d: %s", res.StatusCode, body)
	}
	if !strings.Contains(body, "not_found") {
		t.Fatalf("unknown rig body: %s", body)
	}
}
