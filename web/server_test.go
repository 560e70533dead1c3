package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/rebind/binding"
	"markestedt/rebind/capture"
	"markestedt/rebind/config"
	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
	"markestedt/rebind/session"
	"markestedt/rebind/shortcut"
	"markestedt/rebind/storage"
)

type testEnv struct {
	srv        *httptest.Server
	server     *Server
	ctrl       *session.Controller
	db         *storage.DB
	configPath string
	changed    chan *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	err = db.SeedBindings([]storage.Binding{
		{ID: "transcribe", Name: "Transcribe", CurrentBinding: "ctrl+k", DefaultBinding: "ctrl+space"},
	})
	if err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, "config.toml")
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Keyboard.Implementation = "local"
	cfg.Keyboard.OS = "linux"

	registry := session.NewRegistry()
	registry.Init()
	t.Cleanup(registry.Shutdown)

	syncer := binding.New(db, shortcut.NewFakeRegistrar(keys.Linux), keys.Linux)
	ctrl := session.NewController(session.Options{
		Store:    db,
		Sync:     syncer,
		Hook:     platform.NewFakeHook(),
		Registry: registry,
		History:  db,
		OS:       keys.Linux,
		Mode:     func() capture.Mode { return capture.ModeLocal },
	})

	changed := make(chan *config.Config, 1)
	server := NewServer(Options{
		DB:         db,
		Controller: ctrl,
		Registry:   registry,
		Config:     cfg,
		ConfigPath: configPath,
		OnConfig:   func(c *config.Config) { changed <- c },
	})

	ctx, cancel := context.WithCancel(context.Background())
	server.forwardEvents(ctx)

	handler, err := server.Handler()
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		server.hub.Stop()
		ctrl.Shutdown(context.Background())
	})

	return &testEnv{srv: srv, server: server, ctrl: ctrl, db: db, configPath: configPath, changed: changed}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	// The first message is always the status snapshot.
	msg := readMessage(t, conn)
	if msg.Type != MessageTypeStatus {
		t.Fatalf("first message = %s, want status", msg.Type)
	}
	return conn
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// waitSessionEvent reads until a session event of type typ arrives.
func waitSessionEvent(t *testing.T, conn *websocket.Conn, typ session.EventType) session.Event {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type != MessageTypeSession {
			continue
		}
		var ev session.Event
		json.Unmarshal(msg.Data, &ev)
		if ev.Type == typ {
			return ev
		}
	}
}

func TestBindingsAPI(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/bindings", nil)
	var list []bindingView
	decode(t, resp, &list)
	if len(list) != 1 || list[0].ID != "transcribe" || list[0].Display != "Ctrl+K" || list[0].DefaultDisplay != "Ctrl+Space" {
		t.Errorf("bindings = %+v", list)
	}

	if resp := e.do(t, http.MethodGet, "/api/bindings/missing", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing binding status = %d", resp.StatusCode)
	}
}

func TestRecordAndCancelOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/bindings/transcribe/record", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("record status = %d", resp.StatusCode)
	}
	var st session.Status
	decode(t, resp, &st)
	if st.State != "recording" || st.ShortcutID != "transcribe" {
		t.Errorf("status = %+v", st)
	}

	resp = e.do(t, http.MethodPost, "/api/bindings/transcribe/record", nil)
	var errMsg ErrorMessage
	decode(t, resp, &errMsg)
	if resp.StatusCode != http.StatusConflict || errMsg.Code != "busy" {
		t.Errorf("second record = %d %+v", resp.StatusCode, errMsg)
	}

	if resp := e.do(t, http.MethodPost, "/api/bindings/transcribe/reset", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("reset during recording = %d", resp.StatusCode)
	}

	resp = e.do(t, http.MethodPost, "/api/record/cancel", nil)
	decode(t, resp, &st)
	if resp.StatusCode != http.StatusOK || st.State != "idle" {
		t.Errorf("cancel = %d %+v", resp.StatusCode, st)
	}

	if resp := e.do(t, http.MethodPost, "/api/bindings/missing/record", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("record missing = %d", resp.StatusCode)
	}
}

func TestWebSocketLocalRecording(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)

	conn.WriteJSON(clientMessage{Type: clientRecord, ShortcutID: "transcribe"})
	waitSessionEvent(t, conn, session.EventState)

	conn.WriteJSON(clientMessage{Type: clientKey, Key: "ControlLeft", Down: true})
	live := waitSessionEvent(t, conn, session.EventLive)
	if live.Combination != "ctrl" {
		t.Errorf("live = %q", live.Combination)
	}
	conn.WriteJSON(clientMessage{Type: clientKey, Key: "KeyM", Down: true})

	ev := waitSessionEvent(t, conn, session.EventCommitted)
	if ev.Combination != "ctrl+m" || ev.Display != "Ctrl+M" {
		t.Errorf("committed = %+v", ev)
	}

	b, err := e.db.GetBinding("transcribe")
	if err != nil || b.CurrentBinding != "ctrl+m" {
		t.Errorf("stored = %+v, %v", b, err)
	}

	resp := e.do(t, http.MethodGet, "/api/history", nil)
	var history struct {
		Sessions []storage.Session `json:"sessions"`
		Total    int               `json:"total"`
	}
	decode(t, resp, &history)
	if history.Total != 1 || history.Sessions[0].Outcome != storage.OutcomeCommitted {
		t.Errorf("history = %+v", history)
	}

	resp = e.do(t, http.MethodGet, "/api/stats?days=1", nil)
	var stats struct {
		Outcomes []storage.OutcomeStats `json:"outcomes"`
	}
	decode(t, resp, &stats)
	if len(stats.Outcomes) != 1 || stats.Outcomes[0].Sessions != 1 {
		t.Errorf("stats = %+v", stats)
	}

	id := history.Sessions[0].ID
	if resp := e.do(t, http.MethodDelete, "/api/history/"+strconv.FormatInt(id, 10), nil); resp.StatusCode != http.StatusOK {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodDelete, "/api/history/"+strconv.FormatInt(id, 10), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete = %d", resp.StatusCode)
	}
	if resp := e.do(t, http.MethodDelete, "/api/history/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id delete = %d", resp.StatusCode)
	}
}

func TestWebSocketOutsideClickCancels(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)

	conn.WriteJSON(clientMessage{Type: clientRecord, ShortcutID: "transcribe"})
	waitSessionEvent(t, conn, session.EventState)
	conn.WriteJSON(clientMessage{Type: clientOutsideClick})

	ev := waitSessionEvent(t, conn, session.EventCancelled)
	if ev.Trigger != string(session.TriggerOutsideClick) || ev.Combination != "ctrl+k" {
		t.Errorf("cancelled = %+v", ev)
	}
}

func TestWebSocketErrors(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)

	conn.WriteJSON(clientMessage{Type: clientRecord, ShortcutID: "missing"})
	msg := readMessage(t, conn)
	var em ErrorMessage
	json.Unmarshal(msg.Data, &em)
	if msg.Type != MessageTypeError || em.Code != "not_found" {
		t.Errorf("got %s %+v", msg.Type, em)
	}

	conn.WriteJSON(clientMessage{Type: "dance"})
	msg = readMessage(t, conn)
	if msg.Type != MessageTypeError {
		t.Errorf("unknown type reply = %s", msg.Type)
	}
}

func TestDisconnectTearsDownOwnedSession(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t)

	conn.WriteJSON(clientMessage{Type: clientRecord, ShortcutID: "transcribe"})
	waitSessionEvent(t, conn, session.EventState)
	conn.Close()

	// History is written as the session ends, so wait for the row.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := e.db.GetSessionCount(); n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not torn down after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := e.ctrl.Status(); st.State != "idle" {
		t.Errorf("state = %s, want idle", st.State)
	}

	sessions, err := e.db.GetSessions(1, 0)
	if err != nil || len(sessions) != 1 || sessions[0].Outcome != storage.OutcomeCancelled {
		t.Errorf("history = %+v, %v", sessions, err)
	}
}

func TestConfigAPI(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/config", nil)
	var view configView
	decode(t, resp, &view)
	if view.KeyboardImplementation != "local" || view.OS != "linux" {
		t.Errorf("config = %+v", view)
	}

	resp = e.do(t, http.MethodPut, "/api/config", map[string]any{"keyboard_implementation": "handy_keys", "feedback_enabled": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	select {
	case c := <-e.changed:
		if c.Mode() != capture.ModeDriver || c.Feedback.Enabled {
			t.Errorf("OnConfig got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("OnConfig not called")
	}

	saved, err := config.LoadFrom(e.configPath)
	if err != nil || saved.Mode() != capture.ModeDriver {
		t.Errorf("saved = %+v, %v", saved, err)
	}

	resp = e.do(t, http.MethodPut, "/api/config", map[string]any{"web_port": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid put status = %d", resp.StatusCode)
	}
	if e.server.GetConfig().Web.Port == 0 {
		t.Error("rejected update changed the live config")
	}

	if resp := e.do(t, http.MethodPost, "/api/config", nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST config = %d", resp.StatusCode)
	}
}

func TestStatusAndStaticPage(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/status", nil)
	var st struct {
		State    string `json:"state"`
		OS       string `json:"os"`
		Keyboard string `json:"keyboard_implementation"`
	}
	decode(t, resp, &st)
	if st.State != "idle" || st.OS != "linux" || st.Keyboard != "local" {
		t.Errorf("status = %+v", st)
	}

	resp = e.do(t, http.MethodGet, "/", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("index = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestErrorStatusAfterShutdown(t *testing.T) {
	status, code := errorStatus(session.ErrClosed)
	if status != http.StatusServiceUnavailable || code != "shutting_down" {
		t.Errorf("errorStatus(ErrClosed) = %d %q", status, code)
	}
}
