package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ancient-spinner-backend/internal/logger"
	"ancient-spinner-backend/internal/models"
	"ancient-spinner-backend/internal/services"
)

const (
	MsgPing         = "PING"
	MsgPong         = "PONG"
	MsgTxStatus     = "TX_STATUS"
	MsgSpinResult   = "SPIN_RESULT"
	MsgSession      = "SESSION_UPDATE"
	MsgSignRequest  = "SIGN_REQUEST"
	MsgSignResponse = "SIGN_RESPONSE"

	writeWait = 10 * time.Second
)

var errNotConnected = errors.New("wallet has no open websocket")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	gameEngine *services.GameEngine
	relay      *services.SignatureRelay
	metrics    *services.Metrics
	hub        *WebSocketHub
}

type WebSocketHub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	onLeave    func(wallet string)
	onCount    func(n int)
}

type Client struct {
	Wallet string
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

type Message struct {
	Type   string      `json:"type"`
	Wallet string      `json:"wallet,omitempty"`
	Data   interface{} `json:"data"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewWebSocketHandler(relay *services.SignatureRelay, metrics *services.Metrics) *WebSocketHandler {
	hub := &WebSocketHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		onLeave:    relay.Disconnected,
		onCount:    metrics.SetClients,
	}

	go hub.run()

	h := &WebSocketHandler{
		relay:   relay,
		metrics: metrics,
		hub:     hub,
	}
	relay.Attach(h)
	return h
}

// AttachEngine completes the wiring; the engine broadcasts through this handler.
func (h *WebSocketHandler) AttachEngine(gameEngine *services.GameEngine) {
	h.gameEngine = gameEngine
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	wallet := c.GetString("wallet")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &Client{
		Wallet: wallet,
		Conn:   conn,
	}

	h.hub.register <- client

	defer func() {
		h.hub.unregister <- client
		conn.Close()
	}()

	h.sendSession(c, client)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket error", zap.String("wallet", wallet), zap.Error(err))
			}
			break
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *inboundMessage) {
	switch msg.Type {
	case MsgPing:
		client.send(&Message{
			Type: MsgPong,
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case MsgSignResponse:
		var resp services.SignResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			logger.Warn("Malformed sign response", zap.String("wallet", client.Wallet), zap.Error(err))
			return
		}
		if !h.relay.Resolve(client.Wallet, resp) {
			logger.Debug("Sign response for unknown request",
				zap.String("wallet", client.Wallet),
				zap.String("request_id", resp.RequestID),
			)
		}
	}
}

func (h *WebSocketHandler) sendSession(c *gin.Context, client *Client) {
	if h.gameEngine == nil {
		return
	}

	session, err := h.gameEngine.Session(c.Request.Context(), client.Wallet)
	if err != nil {
		logger.Warn("Failed to get session for WS", zap.String("wallet", client.Wallet), zap.Error(err))
		return
	}

	client.send(&Message{Type: MsgSession, Data: session})
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mu.Lock()
			previous := hub.clients[client.Wallet]
			hub.clients[client.Wallet] = client
			count := len(hub.clients)
			hub.mu.Unlock()

			if previous != nil {
				previous.Conn.Close()
			}
			hub.onCount(count)
			logger.Info("Client registered", zap.String("wallet", client.Wallet))

		case client := <-hub.unregister:
			hub.mu.Lock()
			current, ok := hub.clients[client.Wallet]
			if ok && current == client {
				delete(hub.clients, client.Wallet)
			}
			count := len(hub.clients)
			hub.mu.Unlock()

			if ok && current == client {
				hub.onLeave(client.Wallet)
				hub.onCount(count)
				logger.Info("Client unregistered", zap.String("wallet", client.Wallet))
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) client(wallet string) *Client {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.clients[wallet]
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	if message.Wallet != "" {
		if client := hub.client(message.Wallet); client != nil {
			client.send(message)
		}
		return
	}

	hub.mu.RLock()
	clients := make([]*Client, 0, len(hub.clients))
	for _, client := range hub.clients {
		clients = append(clients, client)
	}
	hub.mu.RUnlock()

	for _, client := range clients {
		client.send(message)
	}
}

func (hub *WebSocketHub) enqueue(message *Message) {
	select {
	case hub.broadcast <- message:
	default:
		logger.Warn("Broadcast queue full, dropping message",
			zap.String("type", message.Type),
			zap.String("wallet", message.Wallet),
		)
	}
}

func (c *Client) send(message *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(message)
}

func (h *WebSocketHandler) IsConnected(wallet string) bool {
	return h.hub.client(wallet) != nil
}

// SendSignRequest writes directly so the relay learns about a dead socket.
func (h *WebSocketHandler) SendSignRequest(wallet string, req services.SignRequest) error {
	client := h.hub.client(wallet)
	if client == nil {
		return errNotConnected
	}
	return client.send(&Message{Type: MsgSignRequest, Wallet: wallet, Data: req})
}

func (h *WebSocketHandler) BroadcastTxStatus(wallet string, update models.TxStatusUpdate) {
	h.hub.enqueue(&Message{Type: MsgTxStatus, Wallet: wallet, Data: update})
}

func (h *WebSocketHandler) BroadcastSpinResult(wallet string, result *services.SpinResult) {
	h.hub.enqueue(&Message{Type: MsgSpinResult, Wallet: wallet, Data: result})
}

func (h *WebSocketHandler) BroadcastSession(wallet string, session *services.SessionView) {
	h.hub.enqueue(&Message{Type: MsgSession, Wallet: wallet, Data: session})
}
