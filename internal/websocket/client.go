package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 32
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one watching connection. A client with a list id only receives
// changes for that list plus list-level changes.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	listID string
	send   chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, listID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		listID: listID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func (c *Client) wants(msg Message) bool {
	if c.listID == "" || msg.Entity == "list" {
		return true
	}
	return msg.ListID == "" || msg.ListID == c.listID
}

// Run registers the client and pumps messages until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// The feed is one-way; incoming messages are discarded.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
