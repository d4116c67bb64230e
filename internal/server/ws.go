package server

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpetrov/recap/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionControls is the lifecycle surface the websocket handler drives.
type SessionControls interface {
	Start(id, ownerID string, source session.AudioSource, title string) (string, error)
	Pause(id string) error
	Resume(id string) error
	Stop(id string) error
	HandleDisconnect()
}

// ChunkIngester accepts raw audio chunks for an active session.
type ChunkIngester interface {
	Ingest(sessionID string, audio []byte, arrival time.Time) (int, error)
}

// clientCommand is one inbound websocket message. Audio is base64-encoded
// for the chunk action.
type clientCommand struct {
	Action      string `json:"action"`
	SessionID   string `json:"session_id"`
	OwnerID     string `json:"owner_id"`
	AudioSource string `json:"audio_source"`
	Title       string `json:"title"`
	Audio       string `json:"audio"`
}

// wsConn serializes writes: the hub fan-out goroutine and the command read
// loop both write to the same connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) writeRaw(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, controls SessionControls, ingester ChunkIngester, logger *slog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		conn := &wsConn{conn: raw}
		defer func() { _ = raw.Close() }()

		_ = conn.writeJSON(ConnectionEvent{
			Event:     newEvent("connection", time.Now().UTC()),
			Connected: true,
		})

		ch := hub.Subscribe()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range ch {
				if err := conn.writeRaw(msg); err != nil {
					return
				}
			}
		}()

		readCommands(conn, raw, controls, ingester, logger)

		// The client is gone: any session it left recording stops accruing
		// duration until it reconnects.
		controls.HandleDisconnect()

		// Unsubscribe closes the channel, which releases the writer goroutine
		// even when no further broadcast arrives.
		hub.Unsubscribe(ch)
		<-done
	})
}

func readCommands(conn *wsConn, raw *websocket.Conn, controls SessionControls, ingester ChunkIngester, logger *slog.Logger) {
	for {
		_, msg, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("ws read failed", "error", err)
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			sendCommandError(conn, cmd, "malformed command: "+err.Error())
			continue
		}

		dispatchCommand(conn, cmd, controls, ingester)
	}
}

func dispatchCommand(conn *wsConn, cmd clientCommand, controls SessionControls, ingester ChunkIngester) {
	switch cmd.Action {
	case "start":
		id, err := controls.Start(cmd.SessionID, cmd.OwnerID, session.AudioSource(cmd.AudioSource), cmd.Title)
		if err != nil {
			sendCommandError(conn, cmd, err.Error())
			return
		}
		cmd.SessionID = id
		sendAck(conn, cmd, nil)

	case "chunk":
		audio, err := base64.StdEncoding.DecodeString(cmd.Audio)
		if err != nil {
			sendCommandError(conn, cmd, "bad audio encoding: "+err.Error())
			return
		}
		seq, err := ingester.Ingest(cmd.SessionID, audio, time.Now().UTC())
		if err != nil {
			sendCommandError(conn, cmd, err.Error())
			return
		}
		sendAck(conn, cmd, &seq)

	case "pause":
		if err := controls.Pause(cmd.SessionID); err != nil {
			sendCommandError(conn, cmd, err.Error())
			return
		}
		sendAck(conn, cmd, nil)

	case "resume":
		if err := controls.Resume(cmd.SessionID); err != nil {
			sendCommandError(conn, cmd, err.Error())
			return
		}
		sendAck(conn, cmd, nil)

	case "stop":
		if err := controls.Stop(cmd.SessionID); err != nil {
			sendCommandError(conn, cmd, err.Error())
			return
		}
		sendAck(conn, cmd, nil)

	default:
		sendCommandError(conn, cmd, "unknown action "+cmd.Action)
	}
}

func sendAck(conn *wsConn, cmd clientCommand, seq *int) {
	_ = conn.writeJSON(AckEvent{
		Event:     newEvent("ack", time.Now().UTC()),
		SessionID: cmd.SessionID,
		Action:    cmd.Action,
		Sequence:  seq,
	})
}

func sendCommandError(conn *wsConn, cmd clientCommand, msg string) {
	_ = conn.writeJSON(CommandErrorEvent{
		Event:     newEvent("command_error", time.Now().UTC()),
		SessionID: cmd.SessionID,
		Action:    cmd.Action,
		Error:     msg,
	})
}
