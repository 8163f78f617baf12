package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/signlearn/internal/detector"
	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/sink"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 32
	storeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Client message types on /api/session.
const (
	msgFrame = "frame"
	msgReset = "reset"
	msgPing  = "ping"
)

// clientMessage is one browser message. Frame fields are only set for "frame".
type clientMessage struct {
	Type string `json:"type"`
	detector.Frame
}

type welcomeMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	WindowSize int    `json:"window_size"`
	Target     string `json:"target,omitempty"`
}

type predictionMessage struct {
	Type string `json:"type"`
	sink.Event
}

type landmarksMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Frame     *detector.Frame `json:"frame"`
	Timestamp int64           `json:"timestamp"`
}

type simpleMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// conn serializes writes to one websocket through a buffered queue.
type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *conn {
	c := &conn{
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

func (c *conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		}
	}
}

// queue marshals v and enqueues it. It drops the message when the client is
// too slow to drain its queue.
func (c *conn) queue(v any) bool {
	msg, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to marshal websocket message", "error", err)
		return false
	}
	return c.push(msg)
}

func (c *conn) push(msg []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("websocket client too slow, message dropped")
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// SessionHandler runs one recognition session per browser websocket on
// GET /api/session?target=<gloss>.
type SessionHandler struct {
	predictor  pipeline.Predictor
	windowSize int
	registry   *pipeline.Registry
	recorder   *sink.Recorder
	sinks      pipeline.Sinks
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func newSessionHandler(cfg Config, registry *pipeline.Registry, recorder *sink.Recorder, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		predictor:  cfg.Predictor,
		windowSize: cfg.WindowSize,
		registry:   registry,
		recorder:   recorder,
		sinks:      cfg.Sinks,
		logger:     logger,
		conns:      make(map[*conn]struct{}),
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	ws.SetReadLimit(maxMessageSize)

	c := newConn(ws, h.logger)
	h.track(c, true)
	defer h.track(c, false)
	defer c.close()

	// record before notifying so a client that sees a prediction can fetch it;
	// the client is told before any configured sink runs
	var sinks pipeline.Sinks
	if h.recorder != nil {
		sinks = append(sinks, h.recorder)
	}
	sinks = append(sinks, pipeline.PredictionFunc(func(p pipeline.Prediction) {
		c.queue(predictionMessage{Type: "prediction", Event: sink.NewEvent(p)})
	}))
	sinks = append(sinks, h.sinks...)

	session, err := pipeline.New(pipeline.Config{
		Source:     pipeline.SourceBrowser,
		Target:     r.URL.Query().Get("target"),
		WindowSize: h.windowSize,
		Predictor:  h.predictor,
		Sink:       sinks,
		Logger:     h.logger,
	})
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		c.queue(simpleMessage{Type: "error", Error: "session unavailable"})
		return
	}

	if h.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := h.recorder.Begin(ctx, session); err != nil {
			h.logger.Error("failed to record session", "session", session.ID(), "error", err)
		}
		cancel()
	}
	h.registry.Add(session)
	h.logger.Info("browser session opened", "session", session.ID(), "target", session.Target())

	defer func() {
		h.registry.Remove(session.ID())
		if h.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := h.recorder.End(ctx, session); err != nil {
				h.logger.Error("failed to finish session", "session", session.ID(), "error", err)
			}
			cancel()
		}
		h.logger.Info("browser session closed", "session", session.ID(), "frames", session.Stats().Frames)
	}()

	c.queue(welcomeMessage{
		Type:       "welcome",
		SessionID:  session.ID(),
		WindowSize: session.WindowSize(),
		Target:     session.Target(),
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.queue(simpleMessage{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case msgFrame:
			frame := msg.Frame
			if err := session.HandleFrame(&frame); err != nil {
				return
			}
		case msgReset:
			session.Reset()
		case msgPing:
			c.queue(simpleMessage{Type: "pong"})
		default:
			c.queue(simpleMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *SessionHandler) track(c *conn, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.conns[c] = struct{}{}
	} else {
		delete(h.conns, c)
	}
}

// Close disconnects every browser session.
func (h *SessionHandler) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// LandmarksHub broadcasts landmarks and predictions of local capture sessions
// to every client of GET /api/landmarks. It is a pipeline.Sink.
type LandmarksHub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*conn]struct{}
}

func NewLandmarksHub(logger *slog.Logger) *LandmarksHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &LandmarksHub{
		logger:  logger,
		clients: make(map[*conn]struct{}),
	}
}

func (h *LandmarksHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}

	c := newConn(ws, h.logger)
	defer c.close()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *LandmarksHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LandmarksHub) OnLandmarks(sessionID string, f *detector.Frame) {
	if h.Clients() == 0 {
		return
	}
	h.broadcast(landmarksMessage{
		Type:      "landmarks",
		SessionID: sessionID,
		Frame:     f,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *LandmarksHub) OnPrediction(p pipeline.Prediction) {
	h.broadcast(predictionMessage{Type: "prediction", Event: sink.NewEvent(p)})
}

func (h *LandmarksHub) broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.push(msg)
	}
}

// Close disconnects every client.
func (h *LandmarksHub) Close() {
	h.mu.RLock()
	clients := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
