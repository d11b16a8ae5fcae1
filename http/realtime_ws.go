package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tumorscope/ml"
)

// MessageType websocket message type
type MessageType string

const (
	MessagePredict    MessageType = "predict"
	MessagePrediction MessageType = "prediction"
	MessageError      MessageType = "error"
	MessagePing       MessageType = "ping"
	MessagePong       MessageType = "pong"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message envelope for both directions; replies echo the request ID
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveForm serves the interactive form: every edit the UI sends is answered with a fresh
// prediction on the same connection
type LiveForm struct {
	api       *API
	upgrader  websocket.Upgrader
	readLimit int64

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewLiveForm creates the websocket endpoint
func NewLiveForm(api *API, checkOrigin func(*http.Request) bool, readLimit int64) *LiveForm {
	return &LiveForm{
		api: api,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readLimit: readLimit,
		clients:   make(map[*client]struct{}),
	}
}

// HandleWebSocket upgrades and serves one connection
func (f *LiveForm) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.api.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.api.metrics.SetLiveClients(len(f.clients))
	f.mu.Unlock()

	go c.writePump()
	go f.readPump(c, r.Header.Get("Accept-Language"))
}

// Clients number of open connections
func (f *LiveForm) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close drops every open connection
func (f *LiveForm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		c.conn.Close()
	}
}

func (f *LiveForm) readPump(c *client, acceptLanguage string) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, c)
		f.api.metrics.SetLiveClients(len(f.clients))
		f.mu.Unlock()
		close(c.send)
	}()

	if f.readLimit > 0 {
		c.conn.SetReadLimit(f.readLimit)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.api.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.send <- f.reply(payload, acceptLanguage)
	}
}

func (f *LiveForm) reply(payload []byte, acceptLanguage string) []byte {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return encodeMessage(MessageError, "", errorResponse{Error: "invalid message: " + err.Error(), Kind: "bad_request"})
	}

	switch msg.Type {
	case MessagePing:
		return encodeMessage(MessagePong, msg.ID, nil)
	case MessagePredict:
		var req predictRequest
		if err := decodeStrict(bytes.NewReader(msg.Data), &req); err != nil {
			return encodeMessage(MessageError, msg.ID, errorResponse{Error: "invalid data: " + err.Error(), Kind: "bad_request"})
		}
		raw, err := ml.FeaturesFromMap(req.Features)
		if err != nil {
			f.api.metrics.RecordError("invalid_features")
			return encodeMessage(MessageError, msg.ID, errorResponse{Error: err.Error(), Kind: "invalid_features"})
		}
		resp, _, errResp := f.api.run(raw, acceptLanguage)
		if errResp != nil {
			return encodeMessage(MessageError, msg.ID, errResp)
		}
		return encodeMessage(MessagePrediction, msg.ID, resp)
	default:
		return encodeMessage(MessageError, msg.ID, errorResponse{Error: "unknown message type " + string(msg.Type), Kind: "bad_request"})
	}
}

func (c *client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func encodeMessage(typ MessageType, id string, data interface{}) []byte {
	msg := Message{Type: typ, ID: id, Timestamp: time.Now()}
	if data != nil {
		payload, err := json.Marshal(data)
		if err == nil {
			msg.Data = payload
		}
	}
	out, _ := json.Marshal(msg)
	return out
}
