package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mpetrov/recap/internal/metrics"
	"github.com/mpetrov/recap/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type controlsStub struct {
	mu          sync.Mutex
	started     []string
	paused      []string
	resumed     []string
	stopped     []string
	disconnects int
	startErr    error
}

func (c *controlsStub) Start(id, _ string, _ session.AudioSource, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return "", c.startErr
	}
	if id == "" {
		id = "assigned-id"
	}
	c.started = append(c.started, id)
	return id, nil
}

func (c *controlsStub) Pause(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = append(c.paused, id)
	return nil
}

func (c *controlsStub) Resume(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumed = append(c.resumed, id)
	return nil
}

func (c *controlsStub) Stop(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, id)
	return nil
}

func (c *controlsStub) HandleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

type ingesterStub struct {
	mu     sync.Mutex
	chunks map[string][][]byte
}

func (i *ingesterStub) Ingest(sessionID string, audio []byte, _ time.Time) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.chunks == nil {
		i.chunks = map[string][][]byte{}
	}
	i.chunks[sessionID] = append(i.chunks[sessionID], audio)
	return len(i.chunks[sessionID]) - 1, nil
}

func dialWS(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(msg, &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return payload
}

// readEventOfType skips interleaved hub broadcasts until the wanted type
// arrives.
func readEventOfType(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	for range 10 {
		payload := readEvent(t, conn)
		if payload["type"] == eventType {
			return payload
		}
	}
	t.Fatalf("no %s event received", eventType)
	return nil
}

func TestWSCommandRoundTrip(t *testing.T) {
	controls := &controlsStub{}
	ingester := &ingesterStub{}
	hub := NewHub(nil, testLogger())
	srv := httptest.NewServer(Handler(Config{
		Hub:      hub,
		Store:    apiStoreStub{},
		Controls: controls,
		Ingester: ingester,
		Logger:   testLogger(),
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)

	if payload := readEvent(t, conn); payload["type"] != "connection" {
		t.Fatalf("expected connection event first, got %v", payload["type"])
	}

	send := func(cmd map[string]any) {
		t.Helper()
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatalf("ws write failed: %v", err)
		}
	}

	send(map[string]any{"action": "start", "audio_source": "microphone", "title": "standup"})
	ack := readEventOfType(t, conn, "ack")
	if ack["action"] != "start" || ack["session_id"] != "assigned-id" {
		t.Fatalf("unexpected start ack %v", ack)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("pcm-bytes"))
	send(map[string]any{"action": "chunk", "session_id": "assigned-id", "audio": audio})
	ack = readEventOfType(t, conn, "ack")
	if ack["action"] != "chunk" {
		t.Fatalf("unexpected chunk ack %v", ack)
	}
	if seq, ok := ack["sequence"].(float64); !ok || seq != 0 {
		t.Fatalf("expected sequence 0 in chunk ack, got %v", ack["sequence"])
	}

	send(map[string]any{"action": "pause", "session_id": "assigned-id"})
	readEventOfType(t, conn, "ack")
	send(map[string]any{"action": "resume", "session_id": "assigned-id"})
	readEventOfType(t, conn, "ack")
	send(map[string]any{"action": "stop", "session_id": "assigned-id"})
	readEventOfType(t, conn, "ack")

	controls.mu.Lock()
	defer controls.mu.Unlock()
	if len(controls.started) != 1 || len(controls.paused) != 1 || len(controls.resumed) != 1 || len(controls.stopped) != 1 {
		t.Fatalf("unexpected control calls %+v", controls)
	}

	ingester.mu.Lock()
	defer ingester.mu.Unlock()
	if got := ingester.chunks["assigned-id"]; len(got) != 1 || string(got[0]) != "pcm-bytes" {
		t.Fatalf("expected decoded audio delivered, got %v", got)
	}
}

func TestWSBadCommandsGetErrors(t *testing.T) {
	controls := &controlsStub{startErr: fmt.Errorf("session already exists")}
	srv := httptest.NewServer(Handler(Config{
		Hub:      NewHub(nil, testLogger()),
		Store:    apiStoreStub{},
		Controls: controls,
		Ingester: &ingesterStub{},
		Logger:   testLogger(),
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	readEvent(t, conn) // connection event

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("ws write failed: %v", err)
	}
	if payload := readEventOfType(t, conn, "command_error"); payload["error"] == "" {
		t.Fatal("expected error detail for malformed command")
	}

	if err := conn.WriteJSON(map[string]any{"action": "teleport"}); err != nil {
		t.Fatalf("ws write failed: %v", err)
	}
	payload := readEventOfType(t, conn, "command_error")
	if !strings.Contains(payload["error"].(string), "unknown action") {
		t.Fatalf("unexpected error %v", payload["error"])
	}

	if err := conn.WriteJSON(map[string]any{"action": "chunk", "session_id": "s1", "audio": "!!!"}); err != nil {
		t.Fatalf("ws write failed: %v", err)
	}
	payload = readEventOfType(t, conn, "command_error")
	if !strings.Contains(payload["error"].(string), "bad audio encoding") {
		t.Fatalf("unexpected error %v", payload["error"])
	}

	if err := conn.WriteJSON(map[string]any{"action": "start"}); err != nil {
		t.Fatalf("ws write failed: %v", err)
	}
	payload = readEventOfType(t, conn, "command_error")
	if payload["action"] != "start" {
		t.Fatalf("expected start command error, got %v", payload)
	}
}

func TestWSDisconnectReleasesSubscription(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	hub := NewHub(m, testLogger())
	srv := httptest.NewServer(Handler(Config{
		Hub:      hub,
		Store:    apiStoreStub{},
		Controls: &controlsStub{},
		Ingester: &ingesterStub{},
		Registry: reg,
		Logger:   testLogger(),
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	readEvent(t, conn)

	if got := testutil.ToFloat64(m.ConnectedClients); got != 1 {
		t.Fatalf("expected 1 connected client, got %v", got)
	}

	// Close without any broadcast afterwards: the handler must still tear the
	// subscription down on its own.
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.ConnectedClients) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connected clients gauge stuck at %v after disconnect", testutil.ToFloat64(m.ConnectedClients))
}

func TestWSDisconnectTriggersAutoPause(t *testing.T) {
	controls := &controlsStub{}
	srv := httptest.NewServer(Handler(Config{
		Hub:      NewHub(nil, testLogger()),
		Store:    apiStoreStub{},
		Controls: controls,
		Ingester: &ingesterStub{},
		Logger:   testLogger(),
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	readEvent(t, conn)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		controls.mu.Lock()
		n := controls.disconnects
		controls.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected disconnect hook to fire")
}

func TestWSReceivesHubBroadcasts(t *testing.T) {
	hub := NewHub(nil, testLogger())
	srv := httptest.NewServer(Handler(Config{
		Hub:      hub,
		Store:    apiStoreStub{},
		Controls: &controlsStub{},
		Ingester: &ingesterStub{},
		Logger:   testLogger(),
	}))
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	readEvent(t, conn)

	hub.BroadcastTranscriptionUpdate("s1", 2, "hello world", 0.88, time.Now().UTC())

	payload := readEventOfType(t, conn, "transcription_update")
	if payload["session_id"] != "s1" || payload["text"] != "hello world" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if seq, ok := payload["sequence"].(float64); !ok || seq != 2 {
		t.Fatalf("unexpected sequence %v", payload["sequence"])
	}
}
