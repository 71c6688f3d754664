package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iwanhae/chatroom/protocol"
)

// Room owns the roster and the history. Both are only touched by the
// goroutine running Run; every other goroutine goes through the request
// methods, which block until the room has handled them.
type Room struct {
	roster  *Roster
	history *History

	ops     chan func()
	stopped chan struct{}
}

// NewRoom creates a room backed by store. Call Run to start it.
func NewRoom(store MessageStore) *Room {
	return &Room{
		roster:  NewRoster(),
		history: NewHistory(store),
		ops:     make(chan func()),
		stopped: make(chan struct{}),
	}
}

// Run serves requests until ctx is cancelled.
func (r *Room) Run(ctx context.Context) {
	defer close(r.stopped)
	for {
		select {
		case op := <-r.ops:
			op()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Room) do(fn func()) error {
	done := make(chan struct{})
	select {
	case r.ops <- func() { fn(); close(done) }:
	case <-r.stopped:
		return ErrRoomClosed
	}
	<-done
	return nil
}

// Join registers username for h. On success h gets a JoinAccept carrying the
// rendered history, then every registered connection gets a JoinAnnounce.
// On rejection h gets a JoinReject and is closed once it is flushed.
func (r *Room) Join(username string, h *handle) (JoinResult, error) {
	var res JoinResult
	err := r.do(func() {
		res = r.roster.Join(username, h)
		switch res {
		case Accepted:
			replay, err := r.history.Render()
			if err != nil {
				log.Printf("[%s] render history: %v", h, err)
			}
			r.sendTo(h, protocol.JoinAccept{Meta: protocol.NewMeta(username), Content: replay})
			r.broadcast(protocol.JoinAnnounce{
				Meta:    protocol.NewMeta(username),
				Content: fmt.Sprintf("@%s Has Joined The Chat.", username),
			})
			log.Printf("[%s] %s joined (%d/%d)", h, username, r.roster.Len(), MaxUsers)
		default:
			r.sendTo(h, protocol.JoinReject{Meta: protocol.NewMeta(""), Content: rejectReason(res, username)})
			h.CloseAfterFlush()
			log.Printf("[%s] join as %q %s", h, username, res)
		}
	})
	return res, err
}

func rejectReason(res JoinResult, username string) string {
	switch res {
	case RejectedDuplicate:
		return fmt.Sprintf("Unable To Join, Another User Exists With The Username: %s", username)
	case RejectedInvalidName:
		return "Unable To Join. Username Must Not Be Empty"
	default:
		return "Unable To Join. Currently At Maximum Capacity"
	}
}

// Quit unregisters username and sends a QuitAccept to every registered
// connection and to the departing one, which is closed once it is flushed.
// It reports ErrProtocolViolation if username is not registered to h.
func (r *Room) Quit(username string, h *handle) error {
	var violation bool
	err := r.do(func() {
		if !r.roster.LeaveHandle(username, h) {
			violation = true
			return
		}
		accept := protocol.QuitAccept{
			Meta:    protocol.NewMeta(username),
			Content: fmt.Sprintf("@%s Has Left The Chat.", username),
		}
		line, ok := encodeLine(accept)
		if !ok {
			return
		}
		for _, member := range r.roster.Handles() {
			member.Send(line)
		}
		h.Send(line)
		h.CloseAfterFlush()
		log.Printf("[%s] %s quit (%d/%d)", h, username, r.roster.Len(), MaxUsers)
	})
	if err != nil {
		return err
	}
	if violation {
		return fmt.Errorf("%w: quit for unregistered %q", ErrProtocolViolation, username)
	}
	return nil
}

// Disconnect drops username if it is still bound to h. Nobody is notified.
func (r *Room) Disconnect(username string, h *handle) error {
	return r.do(func() {
		if r.roster.LeaveHandle(username, h) {
			log.Printf("[%s] %s disconnected (%d/%d)", h, username, r.roster.Len(), MaxUsers)
		}
	})
}

// Status sends h a StatusResponse and closes it once flushed.
func (r *Room) Status(h *handle) error {
	return r.do(func() {
		addrs := make([]string, 0, r.roster.Len())
		for _, member := range r.roster.Handles() {
			addrs = append(addrs, member.Addr())
		}
		r.sendTo(h, protocol.StatusResponse{
			Meta:      protocol.NewMeta(""),
			UserCount: r.roster.Len(),
			Content:   strings.Join(addrs, "\n"),
		})
		h.CloseAfterFlush()
	})
}

// Post relays a chat message from a registered sender. The sender check
// ignores case even though roster keys do not.
func (r *Room) Post(msg protocol.Chat) error {
	var violation bool
	err := r.do(func() {
		if !r.roster.ContainsFold(msg.Username) {
			violation = true
			return
		}
		r.broadcast(msg)
	})
	if err != nil {
		return err
	}
	if violation {
		return fmt.Errorf("%w: content from unregistered %q", ErrProtocolViolation, msg.Username)
	}
	return nil
}

// Broadcast sends msg to every registered connection in roster order.
// Chat messages are appended to the history first.
func (r *Room) Broadcast(msg protocol.Message) error {
	return r.do(func() { r.broadcast(msg) })
}

// Usernames returns the registered names in join order.
func (r *Room) Usernames() ([]string, error) {
	var names []string
	err := r.do(func() { names = r.roster.Usernames() })
	return names, err
}

// HistoryLen returns the number of logged chat messages.
func (r *Room) HistoryLen() (int, error) {
	var (
		n    int
		herr error
	)
	if err := r.do(func() { n, herr = r.history.Len() }); err != nil {
		return 0, err
	}
	return n, herr
}

func (r *Room) broadcast(msg protocol.Message) {
	if entry, ok := msg.(protocol.Chat); ok {
		if err := r.history.Append(entry); err != nil {
			log.Printf("append history: %v", err)
		}
		logMessage(entry)
	}
	line, ok := encodeLine(msg)
	if !ok {
		return
	}
	for _, member := range r.roster.Handles() {
		member.Send(line)
	}
}

func (r *Room) sendTo(h *handle, msg protocol.Message) {
	if line, ok := encodeLine(msg); ok {
		h.Send(line)
	}
}

func encodeLine(msg protocol.Message) ([]byte, bool) {
	line, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("encode %s: %v", msg.Kind(), err)
		return nil, false
	}
	return line, true
}

func logMessage(msg protocol.Chat) {
	if msg.IsAttachment() {
		log.Printf("%s [%s] attachment %q (%d bytes base64)", msg.Timestamp.Format(time.RFC3339), msg.Username, msg.Filename, len(msg.Content))
		return
	}
	sanitized := truncateRunes(strings.ReplaceAll(msg.Content, "\n", "\\n"), 20)
	log.Printf("%s [%s] %s", msg.Timestamp.Format(time.RFC3339), msg.Username, sanitized)
}

// truncateRunes keeps at most n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
