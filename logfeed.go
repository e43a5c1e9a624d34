package main

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// logFeed pushes new activity-log entries to connected admin UIs over
// websocket. Slow or dead clients are dropped, never waited on.
type logFeed struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func newLogFeed() *logFeed {
	return &logFeed{
		conns: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same origin policy as the REST surface: wide open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (f *logFeed) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Log feed upgrade failed: %v", err)
		return
	}
	f.register(conn)
	go f.readLoop(conn)
}

func (f *logFeed) register(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[conn] = true
}

func (f *logFeed) unregister(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conns[conn] {
		delete(f.conns, conn)
		_ = conn.Close()
	}
}

// readLoop drains (and discards) client frames so pings and close
// handshakes are processed; the feed is one-way.
func (f *logFeed) readLoop(conn *websocket.Conn) {
	defer f.unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *logFeed) broadcast(entry LogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		if err := conn.WriteJSON(entry); err != nil {
			delete(f.conns, conn)
			_ = conn.Close()
		}
	}
}
