package chat

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"

	"github.com/iwanhae/chatroom/protocol"
)

// Server accepts connections from any number of listeners and runs one
// session per connection against a shared Room.
type Server struct {
	cfg     Config
	room    *Room
	bans    *BanManager
	limiter *ConnectionRateLimiter

	ctx        context.Context
	cancel     context.CancelFunc
	roomCancel context.CancelFunc
	roomDone   chan struct{}

	mu        sync.Mutex
	ipCounts  map[string]int
	handles   map[*handle]struct{}
	listeners map[net.Listener]struct{}
	wg        sync.WaitGroup

	upgrader websocket.Upgrader
}

// NewServer builds a server and starts its room.
func NewServer(cfg Config) (*Server, error) {
	cfg = sanitizeConfig(cfg)
	if err := cfg.Store.Init(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	roomCtx, roomCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		room:       NewRoom(cfg.Store),
		bans:       NewBanManager(),
		limiter:    NewConnectionRateLimiter(cfg.ConnRateLimit, cfg.ConnRateWindow),
		ctx:        ctx,
		cancel:     cancel,
		roomCancel: roomCancel,
		roomDone:   make(chan struct{}),
		ipCounts:   make(map[string]int),
		handles:    make(map[*handle]struct{}),
		listeners:  make(map[net.Listener]struct{}),
		upgrader: websocket.Upgrader{
			// clients are chat programs, not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, ip := range cfg.Bans {
		s.bans.Ban(ip, "config", "listed at startup")
	}
	go func() {
		defer close(s.roomDone)
		s.room.Run(roomCtx)
	}()
	return s, nil
}

// Room returns the room shared by all sessions.
func (s *Server) Room() *Room {
	return s.room
}

// Bans returns the admission ban list.
func (s *Server) Bans() *BanManager {
	return s.bans
}

// Broadcast sends msg to every registered user; chat messages are logged.
func (s *Server) Broadcast(msg protocol.Message) error {
	return s.room.Broadcast(msg)
}

// ListenAndServe listens on addr, or the configured address when addr is empty.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.cfg.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. Each connection is served
// on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	log.Printf("listening for connections on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			log.Printf("accept: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.ServeConn(NewLineConn(conn, conn.RemoteAddr()))
	}
}

// ServeConn runs a session on conn and returns when it is closed.
func (s *Server) ServeConn(conn Conn) {
	host, port := conn.PeerAddr()
	if !s.admit(host) {
		conn.Close()
		return
	}

	h := newHandle(conn)
	if !s.track(h) {
		h.Close()
		s.release(host)
		return
	}
	defer func() {
		s.untrack(h)
		s.release(host)
	}()

	log.Printf("[%s] connection established with %s:%d", h, host, port)
	newSession(s.room, h).run()
	log.Printf("[%s] connection closed", h)
}

// HandleSSH serves one SSH session speaking the line protocol.
func (s *Server) HandleSSH(sess ssh.Session) {
	s.ServeConn(NewLineConn(sess, sess.RemoteAddr()))
}

// HandleWebSocket upgrades the request and serves it; each text frame is one line.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	s.ServeConn(NewWebSocketConn(ws))
}

// Shutdown stops accepting, closes every connection and waits for the
// sessions to end, at most timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	handles := make([]*handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	for _, h := range handles {
		h.Close()
	}
	log.Printf("closed %d connection(s)", len(handles))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = context.DeadlineExceeded
	}
	s.roomCancel()
	<-s.roomDone
	if cerr := s.cfg.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) admit(ip string) bool {
	if s.bans.IsBanned(ip) {
		log.Printf("refused %s: banned", ip)
		return false
	}
	if !s.limiter.CheckAndRecord(ip) {
		log.Printf("banning IP %s for too many connections", ip)
		s.bans.Ban(ip, "rate limiter", "too many connections")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxPerIP > 0 && s.ipCounts[ip] >= s.cfg.MaxPerIP {
		log.Printf("refused %s: connection limit exceeded", ip)
		return false
	}
	s.ipCounts[ip]++
	return true
}

func (s *Server) release(ip string) {
	s.mu.Lock()
	s.ipCounts[ip]--
	if s.ipCounts[ip] <= 0 {
		delete(s.ipCounts, ip)
	}
	s.mu.Unlock()
}

func (s *Server) track(h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.handles[h] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(h *handle) {
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}
