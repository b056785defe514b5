package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/djroom/engine/internal/v1/room"
	"github.com/gorilla/websocket"
)

// wsConnection is the slice of *websocket.Conn this package depends on,
// kept as an interface so tests can fake the transport.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client is one websocket connection. It carries no room membership of
// its own — clientId/roomId live in the Store's connection map — except
// for the *room.Room reference and clientId cached here once CREATE_ROOM/JOIN_ROOM
// attaches it, so every subsequent inbound message can be handed
// straight to that room's pipeline.
type Client struct {
	conn         wsConnection
	hub          *Hub
	connectionID string

	mu       sync.RWMutex
	room     *room.Room
	clientID string

	send         chan []byte
	prioritySend chan []byte
	closeOnce    sync.Once
	closed       bool
}

func newClient(hub *Hub, conn wsConnection, connectionID string) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		connectionID: connectionID,
		send:         make(chan []byte, 256),
		prioritySend: make(chan []byte, 256),
	}
}

func (c *Client) attach(r *room.Room, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = r
	c.clientID = clientID
}

func (c *Client) attached() (*room.Room, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.clientID, c.room != nil
}

// enqueue is what Hub.Send/Broadcast call; it never blocks — a full
// buffer means a slow client, and the adapter drops rather than stall
// the room's broadcast loop.
func (c *Client) enqueue(data []byte) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	if isPriorityMessage(data) {
		select {
		case c.prioritySend <- data:
		default:
			slog.Error("transport: priority channel full, dropping message", "connectionId", c.connectionID)
		}
		return
	}
	select {
	case c.send <- data:
	default:
		slog.Warn("transport: send channel full, dropping message", "connectionId", c.connectionID)
	}
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		close(c.prioritySend)
	})
}

// readPump processes inbound frames until the connection errors out,
// then tears down the client's room membership.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.markClosed()
		c.hub.unregister(c)
		c.hub.store.Leave(c.connectionID)
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleInbound(data)
	}
}

func (c *Client) handleInbound(data []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Warn("transport: malformed inbound frame", "connectionId", c.connectionID, "error", err)
		return
	}

	switch probe.Type {
	case msgTypeCreateRoom:
		c.handleCreateRoom(data)
	case msgTypeJoinRoom:
		c.handleJoinRoom(data)
	default:
		r, clientID, ok := c.attached()
		if !ok {
			c.sendError("not attached to a room yet")
			return
		}
		r.HandleInbound(context.Background(), clientID, data)
	}
}

func (c *Client) handleCreateRoom(data []byte) {
	var msg createRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.HostName == "" {
		c.sendError("invalid CREATE_ROOM payload")
		return
	}

	r, clientID, err := c.hub.store.CreateRoom(msg.HostName, c.connectionID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.attach(r, clientID)
	c.hub.register(clientID, c)

	c.sendDirect(roomCreatedMsg{Type: msgTypeRoomCreated, RoomID: r.ID(), RoomCode: r.Snapshot().RoomCode, ClientID: clientID})
	c.sendRoomState(r)
}

func (c *Client) handleJoinRoom(data []byte) {
	var msg joinRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.RoomCode == "" {
		c.sendError("invalid JOIN_ROOM payload")
		return
	}

	r, clientID, err := c.hub.store.JoinRoom(msg.RoomCode, msg.Name, c.connectionID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.attach(r, clientID)
	c.hub.register(clientID, c)
	c.sendRoomState(r)
}

func (c *Client) sendRoomState(r *room.Room) {
	type roomStateMessage struct {
		Type    string      `json:"type"`
		RoomID  string      `json:"roomId"`
		Payload *room.State `json:"payload"`
	}
	c.sendDirect(roomStateMessage{Type: "ROOM_STATE", RoomID: r.ID(), Payload: r.Snapshot()})
}

func (c *Client) sendError(message string) {
	c.sendDirect(errorMsg{Type: msgTypeError, Error: message})
}

func (c *Client) sendDirect(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("transport: failed to marshal outbound message", "error", err)
		return
	}
	c.enqueue(data)
}

// writePump drains the priority channel first so acks/state never wait
// behind a backlog of lower-priority broadcasts.
func (c *Client) writePump() {
	defer c.conn.Close()
	const writeWait = 10 * time.Second

	for {
		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			continue
		default:
		}

		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}
