package websocket

import "sync"

// Hub is a broadcast registry of active sessions: register/unregister
// track membership and Broadcast fans a message out to every registered
// session concurrently, so one slow writer cannot stall the others.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session
	broadcast  chan broadcastRequest
	done       chan struct{}
	closeOnce  sync.Once
}

type broadcastRequest struct {
	msg Message
	pm  *PreparedMessage
}

// NewHub returns a running Hub. Call Close when it is no longer needed.
func NewHub() *Hub {
	h := &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan broadcastRequest),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s.ID()] = s
			h.mu.Unlock()

		case s := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, s.ID())
			h.mu.Unlock()

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, s := range h.sessions {
				go sendBroadcast(s, req)
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

func sendBroadcast(s *Session, req broadcastRequest) {
	if req.pm != nil {
		_ = s.Writer().WritePreparedMessage(req.pm)
		return
	}
	_ = s.Writer().WriteMessage(req.msg)
}

// Register adds a session to the broadcast set.
func (h *Hub) Register(s *Session) { h.register <- s }

// Unregister removes a session from the broadcast set. Safe to call more
// than once, or for a session never registered.
func (h *Hub) Unregister(s *Session) { h.unregister <- s }

// Broadcast sends msg to every currently registered session.
func (h *Hub) Broadcast(msg Message) { h.broadcast <- broadcastRequest{msg: msg} }

// BroadcastPrepared sends a precomputed message to every currently
// registered session, reusing its cached frame for plain server sessions.
func (h *Hub) BroadcastPrepared(pm *PreparedMessage) { h.broadcast <- broadcastRequest{pm: pm} }

// Sessions returns a snapshot of the currently registered sessions.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops the Hub's run loop. Registered sessions are not closed.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
