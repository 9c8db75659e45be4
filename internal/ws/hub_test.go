package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thermocert/thermocert/internal/alerts"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/store"
	"github.com/thermocert/thermocert/internal/ws"
	"github.com/thermocert/thermocert/pkg/types"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

func result(id string, status types.Status) *types.TestResult {
	return &types.TestResult{
		ID:       id,
		Name:     "test " + id,
		Category: types.CategoryUniformity,
		Sensors:  []string{"sensor1"},
		Summary:  types.Summary{Status: status, Stability: map[string]float64{}},
	}
}

func newStore(t *testing.T, results ...*types.TestResult) *store.Store {
	t.Helper()
	st := store.New(0)
	for _, r := range results {
		if err := st.Put(context.Background(), r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return st
}

// startHub serves the hub from a test server and runs its loop until the test
// ends or cancel is called.
func startHub(t *testing.T, st *store.Store, al *alerts.Engine, interval time.Duration) (wsURL string, hub *ws.Hub, cancel func()) {
	t.Helper()

	hub = ws.New(st, al, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func resultsOf(t *testing.T, m map[string]interface{}) []interface{} {
	t.Helper()
	data, ok := m["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data: missing or wrong type")
	}
	results, ok := data["results"].([]interface{})
	if !ok {
		t.Fatal("results: missing or wrong type")
	}
	return results
}

// --- tests ------------------------------------------------------------------

func TestHub_ConnectReceivesImmediateSnapshot(t *testing.T) {
	st := newStore(t, result("r1", types.StatusCompliant), result("r2", types.StatusNonCompliant))
	wsURL, _, _ := startHub(t, st, nil, time.Hour)

	m := readMessage(t, dial(t, wsURL))
	if m["event"] != ws.EventResults {
		t.Errorf("event: got %v, want %s", m["event"], ws.EventResults)
	}
	if got := len(resultsOf(t, m)); got != 2 {
		t.Errorf("results: got %d, want 2", got)
	}
}

func TestHub_IncludesAlerts(t *testing.T) {
	res := result("r1", types.StatusNonCompliant)
	al := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "fail", Condition: "status == Non-Compliant"},
	}})
	al.Evaluate(res)

	wsURL, _, _ := startHub(t, newStore(t, res), al, time.Hour)
	m := readMessage(t, dial(t, wsURL))
	data := m["data"].(map[string]interface{})
	list, _ := data["alerts"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("alerts: got %v, want 1", data["alerts"])
	}
	if a := list[0].(map[string]interface{}); a["result_id"] != "r1" {
		t.Errorf("alert result_id: got %v", a["result_id"])
	}
}

func TestHub_BroadcastOnTick(t *testing.T) {
	st := newStore(t)
	wsURL, _, _ := startHub(t, st, nil, testInterval)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate, empty

	st.Put(context.Background(), result("late", types.StatusCompliant)) //nolint:errcheck

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(resultsOf(t, readMessage(t, conn))) == 1 {
			return
		}
	}
	t.Fatal("no tick broadcast carried the new result")
}

func TestHub_NotifyBroadcastsImmediately(t *testing.T) {
	st := newStore(t)
	wsURL, hub, _ := startHub(t, st, nil, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)

	st.Put(context.Background(), result("r1", types.StatusCompliant)) //nolint:errcheck
	hub.Notify()
	hub.Notify() // coalesced, must not block

	if got := len(resultsOf(t, readMessage(t, conn))); got != 1 {
		t.Errorf("results after Notify: got %d, want 1", got)
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore(t), nil, time.Hour)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readPump notice
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_CancelClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore(t), nil, time.Hour)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_PlainHTTPRequestIs400(t *testing.T) {
	srv := httptest.NewServer(ws.New(newStore(t), nil, testInterval))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
