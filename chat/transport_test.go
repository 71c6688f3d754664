package chat

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"
	gossh "golang.org/x/crypto/ssh"

	"github.com/iwanhae/chatroom/protocol"
)

func TestServer_WebSocket(t *testing.T) {
	srv, addr := startServer(t, DefaultConfig())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	read := func() protocol.Message {
		t.Helper()
		ws.SetReadDeadline(time.Now().Add(messageTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		return msg
	}

	line, _ := protocol.Encode(protocol.JoinRequest{Meta: protocol.NewMeta("webby")})
	if err := ws.WriteMessage(websocket.TextMessage, line); err != nil {
		t.Fatal(err)
	}
	if _, ok := read().(protocol.JoinAccept); !ok {
		t.Fatal("expected JoinAccept over websocket")
	}
	read() // own announce

	// a TCP user in the same room sees the websocket user's message
	tcp := dial(t, addr)
	tcp.join(t, "tcp")
	read() // tcp's announce

	line, _ = protocol.Encode(protocol.Chat{Meta: protocol.NewMeta("webby"), Content: "over ws"})
	if err := ws.WriteMessage(websocket.TextMessage, line); err != nil {
		t.Fatal(err)
	}
	got, ok := tcp.expect(t).(protocol.Chat)
	if !ok || got.Username != "webby" || got.Content != "over ws" {
		t.Errorf("expected relayed websocket message, got %#v", got)
	}
}

func TestServer_SSH(t *testing.T) {
	srv, _ := startServer(t, DefaultConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sshSrv := &ssh.Server{Handler: srv.HandleSSH}
	go sshSrv.Serve(ln)
	t.Cleanup(func() { sshSrv.Close() })

	client, err := gossh.Dial("tcp", ln.Addr().String(), &gossh.ClientConfig{
		User:            "alice",
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         messageTimeout,
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}

	lines := make(chan string, 8)
	go func() {
		r := bufio.NewReader(stdout)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	next := func() protocol.Message {
		t.Helper()
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("ssh session closed")
			}
			msg, err := protocol.Decode([]byte(line))
			if err != nil {
				t.Fatal(err)
			}
			return msg
		case <-time.After(messageTimeout):
			t.Fatal("timed out waiting for ssh output")
			return nil
		}
	}

	line, _ := protocol.Encode(protocol.JoinRequest{Meta: protocol.NewMeta("alice")})
	if _, err := stdin.Write(line); err != nil {
		t.Fatal(err)
	}
	if _, ok := next().(protocol.JoinAccept); !ok {
		t.Fatal("expected JoinAccept over ssh")
	}
	if _, ok := next().(protocol.JoinAnnounce); !ok {
		t.Fatal("expected JoinAnnounce over ssh")
	}
	waitRoster(t, srv, "alice")

	line, _ = protocol.Encode(protocol.QuitRequest{Meta: protocol.NewMeta("alice")})
	stdin.Write(line)
	if got, ok := next().(protocol.QuitAccept); !ok || got.Username != "alice" {
		t.Errorf("expected QuitAccept, got %#v", got)
	}
	waitRoster(t, srv)
}
