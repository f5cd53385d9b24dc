package game

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/realmrelay/server/internal/config"
	"github.com/realmrelay/server/internal/persist"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	srv   *Server
	http  *httptest.Server
	wsURL string
}

func startServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Server.TickRate = 5 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, zaptest.NewLogger(t), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return &testServer{
		srv:   srv,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(v any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

// waitFor reads frames until one of the given type satisfies match.
func (c *client) waitFor(kind string, match func(map[string]any) bool) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c.conn.SetReadDeadline(deadline)
		var m map[string]any
		if err := c.conn.ReadJSON(&m); err != nil {
			c.t.Fatalf("waiting for %s: %v", kind, err)
		}
		if m["type"] == kind && (match == nil || match(m)) {
			return m
		}
	}
}

// drainFor collects every frame that arrives within d. The connection is
// unusable for reads afterwards.
func (c *client) drainFor(d time.Duration) []map[string]any {
	var out []map[string]any
	c.conn.SetReadDeadline(time.Now().Add(d))
	for {
		var m map[string]any
		if err := c.conn.ReadJSON(&m); err != nil {
			return out
		}
		out = append(out, m)
	}
}

func (c *client) join(id, class string, x, z float64) {
	c.t.Helper()
	c.send(map[string]any{
		"type": "player-join",
		"player": map[string]any{
			"character": map[string]any{
				"id":       id,
				"name":     id,
				"class":    class,
				"stats":    map[string]any{"health": 100, "maxHealth": 100, "strength": 15, "level": 1},
				"position": map[string]any{"x": x, "y": 0, "z": z},
				"rotation": 0,
			},
			"inventory": map[string]any{"items": []any{}, "gold": 0, "maxSlots": 20},
		},
	})
	c.waitFor("host-update", nil)
}

func TestStatusEndpoint(t *testing.T) {
	ts := startServer(t, nil)
	resp, err := http.Get(ts.http.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["message"] != "Game server is running" {
		t.Errorf("body = %v", body)
	}
}

func TestMeleeAttackEndToEnd(t *testing.T) {
	ts := startServer(t, nil)
	a := ts.dial(t)
	a.join("A", "melee", 0, 0)
	b := ts.dial(t)
	b.join("B", "melee", 0, 1.5)
	c := ts.dial(t)
	c.join("C", "melee", 200, 0)

	a.send(map[string]any{
		"type":     "attack-action",
		"playerId": "A",
		"position": map[string]any{"x": 0, "y": 0, "z": 0},
		"rotation": 0,
	})

	isB := func(m map[string]any) bool { return m["targetId"] == "B" }
	for name, cl := range map[string]*client{"A": a, "B": b} {
		d := cl.waitFor("damage-player", isB)
		if d["damage"] != float64(22) || d["attackerId"] != "A" {
			t.Errorf("%s got %v", name, d)
		}
	}
	// Hits are resolved before the relay is sent.
	b.waitFor("attack-action", nil)

	a.send(map[string]any{
		"type":     "player-update",
		"playerId": "A",
		"position": map[string]any{"x": 0, "y": 0, "z": 0.5},
		"rotation": 0,
		"moving":   true,
	})
	u := b.waitFor("player-update", nil)
	if u["playerId"] != "A" {
		t.Errorf("B got update %v", u)
	}

	for _, f := range c.drainFor(200 * time.Millisecond) {
		switch f["type"] {
		case "attack-action", "damage-player", "player-update":
			t.Errorf("distant player received %v", f)
		}
	}
	if hits := ts.srv.Metrics().Hits.Load(); hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestHostMigratesOnDisconnect(t *testing.T) {
	ts := startServer(t, nil)
	a := ts.dial(t)
	a.join("A", "melee", 0, 0)
	b := ts.dial(t)
	b.join("B", "caster", 5, 5)

	a.conn.Close()

	h := b.waitFor("host-update", func(m map[string]any) bool { return m["hostId"] == "B" })
	if h["hostId"] != "B" {
		t.Fatalf("host-update = %v", h)
	}
	b.waitFor("player-leave", func(m map[string]any) bool { return m["playerId"] == "A" })

	// A reconnecting under the same identity is accepted again.
	a2 := ts.dial(t)
	a2.join("A", "melee", 0, 0)
}

func TestRateLimitEndToEnd(t *testing.T) {
	ts := startServer(t, func(cfg *config.Config) {
		cfg.RateLimit.MessagesPerSecond = 3
		cfg.RateLimit.Window = time.Minute
	})
	c := ts.dial(t)
	for i := 0; i < 5; i++ {
		c.send(map[string]any{"type": "get-lobbies"})
	}
	e := c.waitFor("error", nil)
	if e["message"] != "rate limit exceeded" {
		t.Errorf("error = %v", e)
	}
}

func TestAdminConfig(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := startServer(t, func(cfg *config.Config) {
		cfg.Admin.Enabled = true
		cfg.Admin.User = "ops"
		cfg.Admin.PasswordHash = string(hash)
	})
	url := ts.http.URL + "/admin/config"

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	do := func(method string, body []byte, password string) (*http.Response, tunables) {
		t.Helper()
		req, _ := http.NewRequest(method, url, bytes.NewReader(body))
		req.SetBasicAuth("ops", password)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var got tunables
		if resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
		}
		return resp, got
	}

	if resp, _ := do(http.MethodGet, nil, "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", resp.StatusCode)
	}

	resp, got := do(http.MethodPost, []byte(`{"rateLimit":5,"lobbyDefaultMaxPlayers":8}`), "s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if *got.RateLimit != 5 || *got.LobbyDefaultMax != 8 || *got.BroadcastRadius != 50 {
		t.Errorf("after update = rate %d lobby %d radius %v", *got.RateLimit, *got.LobbyDefaultMax, *got.BroadcastRadius)
	}

	if resp, _ := do(http.MethodPost, []byte(`{"lobbyDefaultMaxPlayers":51}`), "s3cret"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("over-cap status = %d", resp.StatusCode)
	}
	if resp, _ := do(http.MethodPost, []byte(`{"rateLimit":0}`), "s3cret"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero rate status = %d", resp.StatusCode)
	}
}

func TestAdminDisabledByDefault(t *testing.T) {
	ts := startServer(t, nil)
	resp, err := http.Get(ts.http.URL + "/admin/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExecAfterStop(t *testing.T) {
	cfg := config.Default()
	srv, err := New(cfg, zaptest.NewLogger(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := srv.Exec(context.Background(), func() {}); err != ErrStopped {
		t.Errorf("Exec = %v, want ErrStopped", err)
	}
}

type recordingSink struct {
	entries []persist.JournalEntry
}

func (r *recordingSink) Submit(batch []persist.JournalEntry) bool {
	r.entries = append(r.entries, batch...)
	return true
}

func TestShutdownFlushesJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Server.TickRate = 5 * time.Millisecond
	cfg.Database.JournalFlushInterval = time.Hour
	sink := &recordingSink{}
	srv, err := New(cfg, zaptest.NewLogger(t), Options{Journal: sink})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	cl := &client{t: t, conn: c}
	cl.join("A", "ranged", 0, 0)

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	var kinds []string
	for _, e := range sink.entries {
		kinds = append(kinds, e.Kind)
	}
	// The bus orders events per type only.
	sort.Strings(kinds)
	want := []string{persist.KindHost, persist.KindHost, persist.KindJoin, persist.KindLeave}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("journal kinds = %v, want %v", kinds, want)
	}
}
