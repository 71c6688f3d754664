package chat

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// maxLineSize bounds a single inbound line. Attachments travel base64-encoded
// inside one line, so this is generous.
const maxLineSize = 32 << 20

// Conn is one duplex, line-oriented stream to a peer.
type Conn interface {
	// ReadLine returns the next line without its terminator.
	// io.EOF means the peer closed the stream.
	ReadLine() ([]byte, error)
	// WriteLine writes one line; a trailing newline is added if missing.
	WriteLine(line []byte) error
	Close() error
	// PeerAddr returns the remote host and port.
	PeerAddr() (host string, port int)
}

type lineConn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	host   string
	port   int

	wmu sync.Mutex
}

// NewLineConn wraps any stream, such as a net.Conn or an ssh.Session, as a Conn.
func NewLineConn(rwc io.ReadWriteCloser, remote net.Addr) Conn {
	host, port := splitAddr(remote)
	return &lineConn{
		rwc:    rwc,
		reader: bufio.NewReaderSize(rwc, 64*1024),
		host:   host,
		port:   port,
	}
}

func (c *lineConn) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, bufio.ErrTooLong
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
				// last line without terminator
				return bytes.TrimRight(line, "\r\n"), nil
			}
			return nil, err
		}
		return bytes.TrimRight(line, "\r\n"), nil
	}
}

func (c *lineConn) WriteLine(line []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line[:len(line):len(line)], '\n')
	}
	_, err := c.rwc.Write(line)
	return err
}

func (c *lineConn) Close() error {
	return c.rwc.Close()
}

func (c *lineConn) PeerAddr() (string, int) {
	return c.host, c.port
}

type wsConn struct {
	ws   *websocket.Conn
	host string
	port int
}

// NewWebSocketConn adapts a websocket connection; each text frame is one line.
func NewWebSocketConn(ws *websocket.Conn) Conn {
	host, port := splitAddr(ws.RemoteAddr())
	ws.SetReadLimit(maxLineSize)
	return &wsConn{ws: ws, host: host, port: port}
}

func (c *wsConn) ReadLine() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		return bytes.TrimRight(data, "\r\n"), nil
	}
}

func (c *wsConn) WriteLine(line []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, bytes.TrimRight(line, "\n"))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) PeerAddr() (string, int) {
	return c.host, c.port
}

func splitAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
