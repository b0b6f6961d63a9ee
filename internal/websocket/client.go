package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 8
)

// Client is one open balance stream for one agent. The stream is one-way:
// inbound frames are read only to service pongs and detect closure.
type Client struct {
	hub     *Hub
	agentID string
	conn    *websocket.Conn
	send    chan BalanceUpdate
	done    chan struct{}
	once    sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newClient(hub *Hub, agentID string, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		agentID: agentID,
		conn:    conn,
		send:    make(chan BalanceUpdate, sendBuffer),
		done:    make(chan struct{}),
	}
}

// ServeWS upgrades the request and streams agentID's balance updates until
// either side goes away.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, agentID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	client := newClient(hub, agentID, conn)
	hub.Register(agentID, client)
	go client.writePump()
	client.readPump()
}

// offer queues update without blocking. When the buffer is full the oldest
// queued update is discarded: each update carries the full balance, so only
// the latest one matters to a lagging reader.
func (c *Client) offer(update BalanceUpdate) {
	for {
		select {
		case c.send <- update:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.hub != nil {
			c.hub.Unregister(c.agentID, c)
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case update := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(update); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
