package ws

import (
	"net"
	"testing"
	"time"
)

func newPipeConnection(t *testing.T, userID string) *Connection {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	c := &Connection{
		UserID:    userID,
		Conn:      server,
		CreatedAt: time.Now(),
	}
	c.Touch()
	return c
}

func TestConnectionManager_ReplacesSameUser(t *testing.T) {
	cm := NewConnectionManager()
	first := newPipeConnection(t, "alice")
	second := newPipeConnection(t, "alice")

	if prev := cm.Add(first); prev != nil {
		t.Errorf("first Add() returned %v, want nil", prev)
	}
	prev := cm.Add(second)
	if prev != first {
		t.Errorf("second Add() returned %v, want the first connection", prev)
	}

	if got := cm.Get("alice"); got != second {
		t.Errorf("Get() = %v, want the newer connection", got)
	}
	if cm.Count() != 1 {
		t.Errorf("Count() = %d, want 1", cm.Count())
	}
}

func TestConnectionManager_RemoveIgnoresReplaced(t *testing.T) {
	cm := NewConnectionManager()
	first := newPipeConnection(t, "alice")
	second := newPipeConnection(t, "alice")
	cm.Add(first)
	cm.Add(second)

	if cm.Remove(first) {
		t.Error("removing a replaced connection should report false")
	}
	if got := cm.Get("alice"); got != second {
		t.Errorf("Get() = %v, want the live connection untouched", got)
	}

	if !cm.Remove(second) {
		t.Error("removing the live connection should report true")
	}
	if cm.Count() != 0 {
		t.Errorf("Count() = %d, want 0", cm.Count())
	}
}

func TestConnection_TouchAdvancesActivity(t *testing.T) {
	c := newPipeConnection(t, "alice")

	before := c.LastActivity()
	time.Sleep(5 * time.Millisecond)
	c.Touch()
	after := c.LastActivity()

	if !after.After(before) {
		t.Errorf("LastActivity() = %s, want later than %s", after, before)
	}
}

func TestConnection_ConcurrentTouchAndRead(t *testing.T) {
	c := newPipeConnection(t, "alice")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.Touch()
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_ = c.LastActivity()
	}
	<-done

	if c.LastActivity().IsZero() {
		t.Error("LastActivity() should never read zero after a Touch")
	}
}
