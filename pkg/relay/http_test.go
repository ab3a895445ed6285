package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vaibhav210603/QRcade/pkg/api"
	"github.com/vaibhav210603/QRcade/pkg/config"
	"github.com/vaibhav210603/QRcade/pkg/logger"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

func testRest() (*Rest, *session.Store) {
	conf := config.Relay{
		PublicDomain: "http://localhost:3000",
		Session:      config.Session{TTL: time.Minute, SweepInterval: time.Second, QueueLimit: 1000},
	}
	log := logger.Default()
	store := session.NewStore(conf.Session, log)
	m := newMetrics(store, prometheus.NewRegistry())
	return NewRest(conf, store, m, log), store
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(method, target, strings.NewReader(body)))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestCreateSession(t *testing.T) {
	rest, store := testRest()

	w := do(rest.createSession, http.MethodPost, "/createSession", `{"preferredPlayers":1,"gameUrl":"https://example.com/game"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %v: %v", w.Code, w.Body.String())
	}
	resp := decode[createSessionResponse](t, w)
	if len(resp.SessionId) != 32 {
		t.Errorf("bad session id: %q", resp.SessionId)
	}
	if resp.ControllerUrl != "http://localhost:3000/ctl/"+resp.SessionId {
		t.Errorf("bad controller url: %q", resp.ControllerUrl)
	}
	if resp.PreferredPlayers != 1 {
		t.Errorf("expected 1 preferred player, got %v", resp.PreferredPlayers)
	}
	if resp.ExpiresAt <= time.Now().UnixMilli() {
		t.Errorf("expiry should be in the future, got %v", resp.ExpiresAt)
	}
	sess := store.Get(session.Id(resp.SessionId))
	if sess == nil {
		t.Fatalf("created session missing from the store")
	}
	if meta := sess.Meta(); meta.CreatedVia != "REST" || meta.GameUrl != "https://example.com/game" {
		t.Errorf("bad metadata: %+v", meta)
	}
}

func TestCreateSessionDefaults(t *testing.T) {
	rest, _ := testRest()
	w := do(rest.createSession, http.MethodPost, "/createSession", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("empty body should be fine, got %v", w.Code)
	}
	if resp := decode[createSessionResponse](t, w); resp.PreferredPlayers != 2 {
		t.Errorf("expected default 2 preferred players, got %v", resp.PreferredPlayers)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	rest, _ := testRest()

	w := do(rest.createSession, http.MethodPost, "/createSession", `{"preferredPlayers":9}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}
	if resp := decode[errorResponse](t, w); resp.Error != "preferredPlayers must be between 1 and 4" {
		t.Errorf("bad error message: %q", resp.Error)
	}

	if w = do(rest.createSession, http.MethodGet, "/createSession", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %v", w.Code)
	}
}

func TestHealth(t *testing.T) {
	rest, store := testRest()
	store.Create(session.Metadata{})
	store.Create(session.Metadata{})

	w := do(rest.health, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %v", w.Code)
	}
	resp := decode[healthResponse](t, w)
	if resp.Status != "healthy" || resp.ActiveSessions != 2 {
		t.Errorf("bad health response: %+v", resp)
	}
}

func TestPoll(t *testing.T) {
	rest, store := testRest()
	sid := store.Create(session.Metadata{}).Id()
	store.Enqueue(sid, api.InputEvent{SessionId: string(sid), From: "p1", Type: "keydown", Key: "w", Ts: 1})

	w := do(rest.poll, http.MethodGet, "/poll/"+string(sid), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %v", w.Code)
	}
	events := decode[[]api.InputEvent](t, w)
	if len(events) != 1 || events[0].Key != "w" {
		t.Fatalf("bad poll body: %v", w.Body.String())
	}

	// drained, the next poll returns an empty array
	w = do(rest.poll, http.MethodGet, "/poll/"+string(sid), "")
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected an empty array, got %q", body)
	}

	if w = do(rest.poll, http.MethodGet, "/poll/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown session, got %v", w.Code)
	}
}

func TestSessionInfo(t *testing.T) {
	rest, store := testRest()
	sid := store.Create(session.Metadata{GameUrl: "https://example.com/game"}).Id()
	_ = store.AssignSlot(sid, session.P1, "c1")

	w := do(rest.sessionInfo, http.MethodGet, "/session/"+string(sid), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %v", w.Code)
	}
	view := decode[session.View](t, w)
	if view.SessionId != string(sid) || view.HasExtension || view.ConnectedPlayersCount != 1 {
		t.Errorf("bad session view: %+v", view)
	}
	p1 := view.Players[session.P1]
	if !p1.Connected || p1.JoinedAt == nil {
		t.Errorf("bad p1 slot view: %+v", p1)
	}
	if view.Players[session.P2].Connected {
		t.Errorf("p2 should be free")
	}

	if w = do(rest.sessionInfo, http.MethodGet, "/session/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown session, got %v", w.Code)
	}
}

func TestAdminSessions(t *testing.T) {
	rest, store := testRest()
	store.Create(session.Metadata{})
	store.Create(session.Metadata{})

	w := do(rest.adminSessions, http.MethodGet, "/admin/sessions", "")
	if list := decode[[]session.Overview](t, w); len(list) != 2 {
		t.Errorf("expected 2 sessions listed, got %v", len(list))
	}
}

func TestInvalidateSession(t *testing.T) {
	rest, store := testRest()
	sid := store.Create(session.Metadata{}).Id()

	w := do(rest.invalidateSession, http.MethodPost, "/invalidateSession", "{}")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a session id, got %v", w.Code)
	}
	if resp := decode[errorResponse](t, w); resp.Error != "sessionId is required" {
		t.Errorf("bad error message: %q", resp.Error)
	}

	w = do(rest.invalidateSession, http.MethodPost, "/invalidateSession", `{"sessionId":"nope"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown session, got %v", w.Code)
	}

	w = do(rest.invalidateSession, http.MethodPost, "/invalidateSession", `{"sessionId":"`+string(sid)+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %v", w.Code)
	}
	resp := decode[invalidateResponse](t, w)
	if !resp.Success || resp.Message != "Session "+string(sid)+" invalidated" {
		t.Errorf("bad invalidate response: %+v", resp)
	}
	if store.Get(sid) != nil {
		t.Errorf("invalidated session should be gone")
	}
}

func TestBanner(t *testing.T) {
	rest, _ := testRest()
	if w := do(rest.banner, http.MethodGet, "/", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 on the root path, got %v", w.Code)
	}
	w := do(rest.banner, http.MethodGet, "/no/such/thing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on unknown paths, got %v", w.Code)
	}
	if resp := decode[errorResponse](t, w); resp.Error != "Endpoint not found" {
		t.Errorf("bad error message: %q", resp.Error)
	}
}

func TestCors(t *testing.T) {
	rest, _ := testRest()
	h := cors(http.HandlerFunc(rest.health))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/health", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on preflight, got %v", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS headers")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("CORS headers should be on every response")
	}
}

func TestGuard(t *testing.T) {
	rest, _ := testRest()
	h := rest.guard(func(http.ResponseWriter, *http.Request) { panic("boom") })

	w := do(h, http.MethodGet, "/health", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", w.Code)
	}
	if resp := decode[errorResponse](t, w); resp.Error != "Internal server error" {
		t.Errorf("bad error message: %q", resp.Error)
	}
}
