package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket client connection with its
// associated metadata and a write mutex for serializing outbound frames.
type Connection struct {
	UserID    string     // authenticated user ID
	Conn      net.Conn   // underlying TCP connection
	CreatedAt time.Time  // when the connection was established
	lastPing  int64      // unix nanos of the last client frame; atomic
	writeMu   sync.Mutex // serializes writes to this connection
}

// Touch records that a frame just arrived from the client. Called from the
// read goroutine and the dispatcher while the heartbeat goroutine reads
// concurrently, hence the atomic.
func (c *Connection) Touch() {
	atomic.StoreInt64(&c.lastPing, time.Now().UnixNano())
}

// LastActivity returns the time of the last frame received from the client.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastPing))
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry mapping user IDs to their
// Connection objects. A user has at most one connection: adding a second one
// for the same ID replaces the first.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // user_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{byID: make(map[string]*Connection)}
}

// Add registers a connection, returning the previous connection for the
// same user (to be closed by the caller) or nil.
func (cm *ConnectionManager) Add(conn *Connection) *Connection {
	cm.mu.Lock()
	prev := cm.byID[conn.UserID]
	cm.byID[conn.UserID] = conn
	cm.mu.Unlock()
	return prev
}

// Remove removes a connection, closes the underlying network connection,
// and returns true if it was found. A connection that was already replaced
// by a newer one for the same user is left alone.
func (cm *ConnectionManager) Remove(conn *Connection) bool {
	cm.mu.Lock()
	current, ok := cm.byID[conn.UserID]
	if ok && current == conn {
		delete(cm.byID, conn.UserID)
	} else {
		ok = false
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given user ID, or nil if not found.
func (cm *ConnectionManager) Get(userID string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[userID]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
