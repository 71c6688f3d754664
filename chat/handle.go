package chat

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// handle is the server side of one connection. Writes are queued on an
// unbounded outbox drained by a dedicated goroutine, so enqueueing never
// blocks the caller on a slow peer.
type handle struct {
	id   string
	conn Conn
	host string
	port int

	mu       sync.Mutex
	queue    [][]byte
	draining bool

	updateCh  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newHandle(conn Conn) *handle {
	host, port := conn.PeerAddr()
	h := &handle{
		id:       uuid.NewString(),
		conn:     conn,
		host:     host,
		port:     port,
		updateCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop()
	}()
	return h
}

// Addr returns "host:port" of the peer.
func (h *handle) Addr() string {
	return fmt.Sprintf("%s:%d", h.host, h.port)
}

func (h *handle) String() string {
	return h.id[:8] + "@" + h.Addr()
}

// Send queues one encoded line. It is a no-op once the handle is closing.
func (h *handle) Send(line []byte) {
	h.mu.Lock()
	if h.draining || h.isClosed() {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, line)
	h.mu.Unlock()
	h.notify()
}

// CloseAfterFlush stops accepting new lines and closes the stream once the
// already queued ones are written.
func (h *handle) CloseAfterFlush() {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()
	h.notify()
}

// Close closes the stream immediately, dropping anything still queued.
func (h *handle) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if err := h.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("[%s] close: %v", h, err)
		}
	})
}

// Wait blocks until the writer goroutine has exited.
func (h *handle) Wait() {
	h.wg.Wait()
}

func (h *handle) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *handle) notify() {
	select {
	case h.updateCh <- struct{}{}:
	default:
	}
}

func (h *handle) writeLoop() {
	for {
		select {
		case <-h.updateCh:
		case <-h.done:
			return
		}
		for {
			h.mu.Lock()
			if len(h.queue) == 0 {
				draining := h.draining
				h.mu.Unlock()
				if draining {
					h.Close()
					return
				}
				break
			}
			line := h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			h.mu.Unlock()

			if h.isClosed() {
				return
			}
			if err := h.conn.WriteLine(line); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("[%s] write: %v", h, err)
				}
				h.Close()
				return
			}
		}
	}
}
