package connectionmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/ws/defs"
)

var _ primary.MessageSender = (*Client)(nil)

var (
	ErrClientClosed   = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one websocket connection with its outbound queue
type Client struct {
	ID    string
	Group string

	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger primary.Logger
}

func NewClient(conn *websocket.Conn, group string, logger primary.Logger) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Group:  group,
		conn:   conn,
		send:   make(chan []byte, defs.SendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues a serialized message without blocking
func (c *Client) Send(message []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// SendMessage implements the MessageSender interface
func (c *Client) SendMessage(msgType string, correlationID string, payload interface{}) error {
	message, err := defs.Encode(msgType, correlationID, payload)
	if err != nil {
		return err
	}
	return c.Send(message)
}

// SendWait queues a serialized message, waiting for buffer space until the
// connection closes or ctx ends
func (c *Client) SendWait(ctx context.Context, message []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) SendMessageWait(ctx context.Context, msgType string, correlationID string, payload interface{}) error {
	message, err := defs.Encode(msgType, correlationID, payload)
	if err != nil {
		return err
	}
	return c.SendWait(ctx, message)
}

// SendError reports a processing problem back to the peer, ignoring delivery errors
func (c *Client) SendError(code int, message string) {
	_ = c.SendMessage(defs.MsgError, "", defs.ErrorData{Code: code, Message: message})
}

// Close stops the write pump, which closes the socket
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// WritePump drains the send queue and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(defs.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defs.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", "connectionId", c.ID, "group", c.Group, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defs.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defs.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadPump delivers inbound text frames to onMessage until the connection fails.
// Messages are handled one at a time, in arrival order.
func (c *Client) ReadPump(onMessage func(message []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(defs.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(defs.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(defs.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Unexpected websocket close", "connectionId", c.ID, "group", c.Group, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(defs.PongWait))
		onMessage(message)
	}
}

// ConnectionManager tracks websocket clients by broadcast group
type ConnectionManager struct {
	groups  map[string]map[string]*Client
	current map[string]string // group -> most recent connection id
	mu      sync.RWMutex
	Logger  primary.Logger
}

func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		groups:  make(map[string]map[string]*Client),
		current: make(map[string]string),
		Logger:  logger,
	}
}

// Join adds the client to its group and makes it the group's current connection
func (cm *ConnectionManager) Join(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	members, ok := cm.groups[c.Group]
	if !ok {
		members = make(map[string]*Client)
		cm.groups[c.Group] = members
	}
	members[c.ID] = c
	cm.current[c.Group] = c.ID
}

// Leave removes the client and reports whether it was still the group's current connection
func (cm *ConnectionManager) Leave(c *Client) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if members, ok := cm.groups[c.Group]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(cm.groups, c.Group)
		}
	}
	if cm.current[c.Group] != c.ID {
		return false
	}
	delete(cm.current, c.Group)
	return true
}

func (cm *ConnectionManager) GroupSize(group string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.groups[group])
}

// Groups lists groups with at least one member
func (cm *ConnectionManager) Groups() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	groups := make([]string, 0, len(cm.groups))
	for group := range cm.groups {
		groups = append(groups, group)
	}
	return groups
}

// SendToGroup queues message on every member and returns how many accepted it
func (cm *ConnectionManager) SendToGroup(group string, message []byte) int {
	cm.mu.RLock()
	members := make([]*Client, 0, len(cm.groups[group]))
	for _, c := range cm.groups[group] {
		members = append(members, c)
	}
	cm.mu.RUnlock()

	sent := 0
	for _, c := range members {
		if err := c.Send(message); err != nil {
			cm.Logger.Warn("Failed to queue message", "group", group, "connectionId", c.ID, "error", err)
			if errors.Is(err, ErrSendBufferFull) {
				c.Close()
			}
			continue
		}
		sent++
	}
	return sent
}

// SendToGroupWait is SendToGroup for messages that must not be dropped:
// each member gets until ctx ends to make room
func (cm *ConnectionManager) SendToGroupWait(ctx context.Context, group string, message []byte) int {
	cm.mu.RLock()
	members := make([]*Client, 0, len(cm.groups[group]))
	for _, c := range cm.groups[group] {
		members = append(members, c)
	}
	cm.mu.RUnlock()

	sent := 0
	for _, c := range members {
		if err := c.SendWait(ctx, message); err != nil {
			cm.Logger.Warn("Failed to queue message", "group", group, "connectionId", c.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes every tracked connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, members := range cm.groups {
		for _, c := range members {
			c.Close()
		}
	}
}
