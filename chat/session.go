package chat

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/iwanhae/chatroom/protocol"
)

type sessionState int

const (
	stateOpen sessionState = iota
	stateRegistered
	stateClosed
)

// session reads lines from one connection and dispatches them to the room.
type session struct {
	room     *Room
	h        *handle
	state    sessionState
	username string
	// joined stays set while username holds a roster slot, whatever the state
	joined bool
}

func newSession(room *Room, h *handle) *session {
	return &session{room: room, h: h}
}

// run blocks until the connection is closed.
func (s *session) run() {
	defer s.close()
	for s.state != stateClosed {
		line, err := s.h.conn.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !isExpectedCloseError(err) {
				log.Printf("[%s] read: %v", s.h, err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			log.Printf("[%s] %v; closing session", s.h, err)
			return
		}
		if err := s.dispatch(msg); err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				log.Printf("[%s] %v; closing session", s.h, err)
			}
			return
		}
	}
}

// dispatch handles one message. A non-nil error ends the session.
func (s *session) dispatch(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.StatusRequest:
		if err := s.room.Status(s.h); err != nil {
			return err
		}
		s.state = stateClosed

	case protocol.JoinRequest:
		if s.state == stateRegistered {
			return fmt.Errorf("%w: %s joined twice", ErrProtocolViolation, s.username)
		}
		res, err := s.room.Join(m.Username, s.h)
		if err != nil {
			return err
		}
		if res != Accepted {
			s.state = stateClosed
			return nil
		}
		s.state = stateRegistered
		s.username = m.Username
		s.joined = true

	case protocol.QuitRequest:
		if s.state != stateRegistered {
			return fmt.Errorf("%w: quit before join", ErrProtocolViolation)
		}
		if err := s.room.Quit(s.username, s.h); err != nil {
			return err
		}
		s.joined = false
		s.state = stateClosed

	case protocol.Chat:
		return s.room.Post(m)

	default:
		return fmt.Errorf("%w: unexpected %s from client", ErrProtocolViolation, msg.Kind())
	}
	return nil
}

// close releases the session. Connections already scheduled to close after
// their last notice are left to flush; anything else is closed now.
func (s *session) close() {
	if s.joined {
		s.joined = false
		if err := s.room.Disconnect(s.username, s.h); err != nil && !errors.Is(err, ErrRoomClosed) {
			log.Printf("[%s] disconnect: %v", s.h, err)
		}
	}
	prev := s.state
	s.state = stateClosed
	if prev == stateClosed {
		// a Reject/Status/Quit notice is being flushed; the writer closes it
		s.h.Wait()
		return
	}
	s.h.Close()
	s.h.Wait()
}
