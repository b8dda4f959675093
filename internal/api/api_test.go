package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

// =====================================================
// Test Helpers
// =====================================================

type fakeConn struct {
	mu     sync.Mutex
	online bool
}

func (f *fakeConn) SetOnlineStatus(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func (f *fakeConn) IsOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// rejecting fails every action whose payload contains "reject".
type rejecting struct{}

func (rejecting) Execute(_ context.Context, _ models.ActionType, p json.RawMessage) error {
	if strings.Contains(string(p), "reject") {
		return fmt.Errorf("backend said no")
	}
	return nil
}

type testServer struct {
	srv    *httptest.Server
	engine *queue.Engine
	st     *store.MemoryStore
	hub    *Hub
	conn   *fakeConn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	hub := NewHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	engine, err := queue.New(context.Background(), st, rejecting{}, queue.WithObserver(hub), queue.WithMaxRetries(1))
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	conn := &fakeConn{online: true}
	router := NewRouter(NewSyncHandler(engine, conn), hub, http.NotFoundHandler())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, engine: engine, st: st, hub: hub, conn: conn}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// =====================================================
// REST Tests
// =====================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestEnqueueAction(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/sync/actions",
		`{"action_type":"post_notice","payload":{"class_id":"c1","title":"Exam moved"}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "post_notice", body["action_type"])
	assert.EqualValues(t, 0, body["retry_count"])
	assert.Equal(t, 1, ts.engine.PendingCount())
}

func TestEnqueueAction_invalid(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"action_type":`},
		{"missing type", `{"payload":{}}`},
		{"missing payload", `{"action_type":"post_notice"}`},
		{"missing required field", `{"action_type":"post_notice","payload":{"title":"no class"}}`},
		{"wrong field type", `{"action_type":"grade_activity","payload":{"activity_id":"a1","submission_id":"s1","grade":"A"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/api/sync/actions", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_INPUT", errorCode(body))
		})
	}
	assert.Equal(t, 0, ts.engine.PendingCount())
}

func TestEnqueueAction_persistenceFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.st.FailWrites(queue.PendingKey, fmt.Errorf("disk full"))

	resp, body := ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"post_notice","payload":{"class_id":"c1","title":"t"}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "PERSISTENCE_ERROR", errorCode(body))
}

func TestSyncNowAndStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"post_notice","payload":{"class_id":"c1","title":"ok"}}`)
	ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"grade_activity","payload":{"activity_id":"a1","submission_id":"s1","grade":7,"feedback":"reject"}}`)

	resp, body := ts.do(t, http.MethodPost, "/api/sync/now", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["succeeded"])
	assert.EqualValues(t, 1, body["dead_lettered"])

	resp, body = ts.do(t, http.MethodGet, "/api/sync/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["pending_count"])
	assert.EqualValues(t, 1, body["failed_count"])
	assert.Equal(t, false, body["is_syncing"])
	assert.Nil(t, body["sync_progress"])
	assert.Equal(t, true, body["is_online"])

	failed := body["failed_queue"].([]interface{})
	require.Len(t, failed, 1)
	entry := failed[0].(map[string]interface{})
	assert.Equal(t, "backend said no", entry["last_error"])
}

func TestSyncNow_emptyQueue(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/api/sync/now", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["skipped"])
}

// blocking holds every call until release is closed.
type blocking struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blocking) Execute(context.Context, models.ActionType, json.RawMessage) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestSyncNow_conflictWhileDraining(t *testing.T) {
	b := &blocking{entered: make(chan struct{}, 1), release: make(chan struct{})}
	engine, err := queue.New(context.Background(), store.NewMemoryStore(), b)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h := NewSyncHandler(engine, &fakeConn{online: true})

	_, err = engine.Enqueue(context.Background(), models.ActionPostNotice, json.RawMessage(`{"class_id":"c1","title":"t"}`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Drain(context.Background())
	}()
	<-b.entered

	rec := httptest.NewRecorder()
	h.SyncNow(rec, httptest.NewRequest(http.MethodPost, "/api/sync/now", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "SYNC_IN_PROGRESS")

	close(b.release)
	<-done

	// the queue is empty now, which is not a conflict
	rec = httptest.NewRecorder()
	h.SyncNow(rec, httptest.NewRequest(http.MethodPost, "/api/sync/now", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skip_reason":"empty"`)
}

func TestRetryAndDiscardFailed(t *testing.T) {
	ts := newTestServer(t)
	_, created := ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"submit_activity","payload":{"activity_id":"a1","student_id":"reject"}}`)
	id := created["id"].(string)
	ts.do(t, http.MethodPost, "/api/sync/now", "")
	require.Equal(t, 1, ts.engine.FailedCount())

	resp, body := ts.do(t, http.MethodPost, "/api/sync/failed/"+id+"/retry", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, id, body["id"])

	// the background drain fails again and dead-letters it
	ts.engine.Close()
	require.Equal(t, 1, ts.engine.FailedCount())

	resp, _ = ts.do(t, http.MethodDelete, "/api/sync/failed/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, ts.engine.FailedCount())
	assert.Equal(t, 0, ts.engine.PendingCount())

	resp, body = ts.do(t, http.MethodDelete, "/api/sync/failed/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	resp, _ = ts.do(t, http.MethodPost, "/api/sync/failed/"+id+"/retry", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetConnectivity(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/connectivity", `{"online":false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_online"])
	assert.False(t, ts.conn.IsOnline())

	resp, _ = ts.do(t, http.MethodPost, "/api/connectivity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_methodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodGet, "/api/sync/now", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// =====================================================
// WebSocket Tests
// =====================================================

func dial(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	require.Eventually(t, func() bool { return ts.hub.Clients() > 0 }, time.Second, time.Millisecond)
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func TestHub_streamsDrainEvents(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"post_notice","payload":{"class_id":"c1","title":"n1"}}`)
	ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"post_notice","payload":{"class_id":"c1","title":"n2"}}`)
	ts.do(t, http.MethodPost, "/api/sync/now", "")

	var types []string
	for i := 0; i < 4; i++ {
		env := readEnvelope(t, ws)
		types = append(types, env.Type)
		if env.Type == EventSyncCompleted {
			assert.EqualValues(t, 2, env.Data["succeeded"])
		}
		if env.Type == EventSyncProgress && env.Data["current"] == float64(2) {
			assert.EqualValues(t, 100, env.Data["percent"])
		}
	}
	assert.Equal(t, []string{EventSyncStarted, EventSyncProgress, EventSyncProgress, EventSyncCompleted}, types)
}

func TestHub_subscriptionFilter(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"action": "subscribe", "events": []string{EventSyncCompleted}}))
	var ack map[string]interface{}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, "subscribe_ack", ack["action"])

	ts.do(t, http.MethodPost, "/api/sync/actions", `{"action_type":"post_notice","payload":{"class_id":"c1","title":"t"}}`)
	ts.do(t, http.MethodPost, "/api/sync/now", "")

	env := readEnvelope(t, ws)
	assert.Equal(t, EventSyncCompleted, env.Type)
}

func TestHub_ping(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"action": "ping"}))
	var pong map[string]interface{}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["action"])
}

func TestHub_rejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_disconnectUnregisters(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	ws.Close()
	assert.Eventually(t, func() bool { return ts.hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
