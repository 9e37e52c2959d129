package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
	"github.com/wayfarerhq/wayfarer/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active widget connections and holds the shared
// backends each connection's session is built from.
type Hub struct {
	// Registered clients keyed by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	generator repositories.ReplyGenerator
	store     repositories.TranscriptStore // nil for ephemeral deployments
	capture   repositories.SpeechCapture
	synth     repositories.SpeechSynthesizer

	captureLocale string

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. The store, capture, and synth backends
// may be nil; the matching feature then degrades per connection.
func NewHub(
	generator repositories.ReplyGenerator,
	store repositories.TranscriptStore,
	capture repositories.SpeechCapture,
	synth repositories.SpeechSynthesizer,
	captureLocale string,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		generator:     generator,
		store:         store,
		capture:       capture,
		synth:         synth,
		captureLocale: captureLocale,
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("connectionID", client.id),
				zap.String("identity", client.identity.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client.id)
			h.mu.Unlock()
			// The send channel is left open; playback goroutines may still
			// hold it. writePump exits when the connection closes.
			h.logger.Info("Client unregistered",
				zap.String("connectionID", client.id),
				zap.String("identity", client.identity.ID))
		}
	}
}

// ActiveConnections reports how many widget connections are registered.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client binds one websocket connection to its session manager and voice
// adapter. Identity is fixed for the connection's lifetime; signing in or
// out means a new connection.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Connection ID, unique per socket.
	id string

	identity entities.Identity
	manager  *usecase.SessionManager
	voice    *usecase.VoiceAdapter

	// Snapshots queued by the transcript listener, drained outside the
	// manager's lock.
	transcripts chan []entities.Turn
	done        chan struct{}

	logger *zap.Logger
}

// HandleWebSocket upgrades the request and runs a session for the given
// identity until the socket closes.
func HandleWebSocket(hub *Hub, c echo.Context, identity entities.Identity, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan WriteData, 256),
		id:          uuid.NewString(),
		identity:    identity,
		transcripts: make(chan []entities.Turn, 16),
		done:        make(chan struct{}),
		logger:      logger,
	}

	client.voice = usecase.NewVoiceAdapter(hub.capture, hub.synth, client, hub.captureLocale, logger)
	client.manager = usecase.NewSessionManager(identity, hub.generator, hub.store, client.voice, logger)

	// The listener runs under the manager's lock, so it only queues the
	// snapshot; pumpTranscripts builds and sends the message.
	client.manager.SetTranscriptListener(func(turns []entities.Turn) {
		select {
		case client.transcripts <- turns:
		default:
			logger.Warn("transcript snapshot dropped, client too slow",
				zap.String("connectionID", client.id))
		}
	})

	if err := client.manager.Subscribe(context.Background()); err != nil {
		// Persistence is best effort; the session continues local-only.
		logger.Error("transcript subscription failed, continuing ephemeral",
			zap.String("identity", identity.ID),
			zap.Error(err))
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.pumpTranscripts()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the session.
func (c *Client) readPump() {
	defer func() {
		c.manager.Teardown()
		close(c.done)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			// Binary frames are capture audio for the active utterance.
			c.voice.FeedAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pumpTranscripts turns queued snapshots into transcript messages. Running
// outside the manager's lock lets it read the pending-reply flag safely.
func (c *Client) pumpTranscripts() {
	for {
		select {
		case turns := <-c.transcripts:
			c.sendJSON(NewTranscriptMessage(turns, c.manager.PendingReply()))
		case <-c.done:
			return
		}
	}
}

// processMessage dispatches one control frame from the widget.
func (c *Client) processMessage(raw []byte) {
	msg, err := ParseClientMessage(raw)
	if err != nil {
		c.logger.Warn("Failed to parse message", zap.Error(err))
		c.sendJSON(NewErrorMessage("bad_message", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *SubmitMessage:
		c.manager.Submit(context.Background(), m.Text, SubmitOrigin(m.Origin))

	case *CaptureStartMessage:
		c.handleCaptureStart()

	case *BaseMessage:
		switch m.Type {
		case MessageTypeOpen:
			c.manager.Open()
		case MessageTypeClose:
			c.manager.Close()
		case MessageTypeCaptureEnd:
			c.handleCaptureEnd()
		case MessageTypePing:
			c.sendJSON(NewPongMessage())
		}
	}
}

func (c *Client) handleCaptureStart() {
	err := c.voice.StartCapture(context.Background())
	if err == nil {
		return
	}
	if errors.Is(err, repositories.ErrUnsupportedCapability) {
		c.sendJSON(NewNoticeMessage("Voice capture is not available right now."))
		return
	}
	c.logger.Warn("capture failed to start",
		zap.String("connectionID", c.id),
		zap.Error(err))
	c.sendJSON(NewErrorMessage("capture_failed", "Could not start voice capture."))
}

func (c *Client) handleCaptureEnd() {
	c.voice.FinishCapture(func(text string) {
		c.manager.SetPendingInput(text)
		c.sendJSON(NewPendingInputMessage(text))
	})
}

// SpeakingStart implements usecase.PlaybackSink.
func (c *Client) SpeakingStart(text string) {
	c.sendJSON(NewSpeakingStartMessage(text))
}

// Audio implements usecase.PlaybackSink. Chunks go out as binary frames.
func (c *Client) Audio(chunk []byte) {
	c.write(WriteData{Type: websocket.BinaryMessage, Payload: chunk})
}

// SpeakingEnd implements usecase.PlaybackSink.
func (c *Client) SpeakingEnd() {
	c.sendJSON(NewSpeakingEndMessage())
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	c.write(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// write queues a frame without blocking the session. A full buffer means the
// client stopped reading; the frame is dropped and the ping cycle will close
// the connection.
func (c *Client) write(data WriteData) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping frame",
			zap.String("connectionID", c.id))
	}
}
