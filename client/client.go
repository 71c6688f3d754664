// Package client speaks the chatroom protocol from the user's side: it sends
// status, join, quit and content requests and dispatches server responses to
// a Handler.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/iwanhae/chatroom/protocol"
)

// ErrRejected is returned by Listen when the server refused the join.
var ErrRejected = errors.New("client: join rejected")

// Handler receives what the server sends. Methods are called from the
// goroutine running Listen.
type Handler interface {
	// Joined is called once the server accepted the join; history is the replay.
	Joined(username, history string)
	Rejected(reason string)
	Status(userCount int, roster []string)
	Announce(msg protocol.JoinAnnounce)
	Left(msg protocol.QuitAccept)
	Message(msg protocol.Chat)
	Attachment(msg protocol.Chat, data []byte)
}

// Client is one connection to a chatroom server.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu       sync.Mutex
	username string
	joined   bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn)}
}

// Username returns the local identity, adopted from the server's JoinAccept.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Joined reports whether the server accepted the join.
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// RequestStatus asks for the room status. The server closes the connection after answering.
func (c *Client) RequestStatus() error {
	return c.send(protocol.StatusRequest{Meta: protocol.NewMeta("")})
}

// Join asks to enter the room as username.
func (c *Client) Join(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("client: empty username")
	}
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
	return c.send(protocol.JoinRequest{Meta: protocol.NewMeta(username)})
}

// Quit asks to leave the room.
func (c *Client) Quit() error {
	return c.send(protocol.QuitRequest{Meta: protocol.NewMeta(c.Username())})
}

// Send posts a text message.
func (c *Client) Send(text string) error {
	return c.send(protocol.Chat{Meta: protocol.NewMeta(c.Username()), Content: text})
}

// SendAttachment posts data as a file named after the base name of filename.
func (c *Client) SendAttachment(filename string, data []byte) error {
	return c.send(protocol.NewAttachment(c.Username(), filename, data))
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(msg protocol.Message) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
	return nil
}

// Listen reads server messages and dispatches them to h until the session
// ends. It returns nil when the server closed the connection or our own quit
// was confirmed, ErrRejected when the join was refused.
func (c *Client) Listen(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		msg, err := protocol.Decode(line)
		if err != nil {
			return err
		}
		done, err := c.dispatch(msg, h)
		if done || err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(msg protocol.Message, h Handler) (bool, error) {
	switch m := msg.(type) {
	case protocol.JoinAccept:
		c.mu.Lock()
		c.username = m.Username
		c.joined = true
		c.mu.Unlock()
		h.Joined(m.Username, m.Content)

	case protocol.JoinReject:
		h.Rejected(m.Content)
		c.conn.Close()
		return true, ErrRejected

	case protocol.QuitAccept:
		h.Left(m)
		if m.Username == c.Username() {
			c.mu.Lock()
			c.joined = false
			c.mu.Unlock()
			c.conn.Close()
			return true, nil
		}

	case protocol.StatusResponse:
		var roster []string
		if m.Content != "" {
			roster = strings.Split(m.Content, "\n")
		}
		h.Status(m.UserCount, roster)

	case protocol.JoinAnnounce:
		h.Announce(m)

	case protocol.Chat:
		if m.IsAttachment() {
			data, err := m.Attachment()
			if err != nil {
				h.Message(m)
				return false, nil
			}
			h.Attachment(m, data)
			return false, nil
		}
		h.Message(m)

	default:
		h.Message(protocol.Chat{Meta: m.Header()})
	}
	return false, nil
}
