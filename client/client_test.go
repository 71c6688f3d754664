package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iwanhae/chatroom/chat"
	"github.com/iwanhae/chatroom/protocol"
)

const testTimeout = 2 * time.Second

type recorder struct {
	mu     sync.Mutex
	events []string
	files  map[string][]byte
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{files: make(map[string][]byte), signal: make(chan struct{}, 64)}
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) Joined(username, history string) { r.add("joined " + username) }
func (r *recorder) Rejected(reason string)          { r.add("rejected " + reason) }
func (r *recorder) Status(n int, roster []string) {
	r.add("status " + strings.Join(roster, ","))
}
func (r *recorder) Announce(msg protocol.JoinAnnounce) { r.add("announce " + msg.Username) }
func (r *recorder) Left(msg protocol.QuitAccept)       { r.add("left " + msg.Username) }
func (r *recorder) Message(msg protocol.Chat)          { r.add(msg.Username + ": " + msg.Content) }
func (r *recorder) Attachment(msg protocol.Chat, data []byte) {
	r.mu.Lock()
	r.files[msg.Filename] = data
	r.mu.Unlock()
	r.add("file " + msg.Filename)
}

// waitFor blocks until n events were recorded and returns them.
func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		r.mu.Lock()
		if len(r.events) >= n {
			out := append([]string(nil), r.events...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	srv, err := chat.NewServer(chat.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(testTimeout) })
	return ln.Addr().String()
}

func connect(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func listen(c *Client, h Handler) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- c.Listen(context.Background(), h) }()
	return errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(testTimeout):
		t.Fatal("Listen did not return")
		return nil
	}
}

func TestClient_Conversation(t *testing.T) {
	addr := startServer(t)

	alice, aliceRec := connect(t, addr), newRecorder()
	aliceDone := listen(alice, aliceRec)
	if err := alice.Join("alice"); err != nil {
		t.Fatal(err)
	}
	aliceRec.waitFor(t, 2)
	if !alice.Joined() || alice.Username() != "alice" {
		t.Fatal("alice should be joined")
	}

	bob, bobRec := connect(t, addr), newRecorder()
	bobDone := listen(bob, bobRec)
	if err := bob.Join("bob"); err != nil {
		t.Fatal(err)
	}
	bobRec.waitFor(t, 2)

	if err := alice.Send("hi bob"); err != nil {
		t.Fatal(err)
	}
	if err := alice.SendAttachment("/tmp/notes.txt", []byte("secret")); err != nil {
		t.Fatal(err)
	}
	got := bobRec.waitFor(t, 4)
	want := []string{"joined bob", "announce bob", "alice: hi bob", "file notes.txt"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("bob events:\n got %q\nwant %q", got, want)
	}
	bobRec.mu.Lock()
	if string(bobRec.files["notes.txt"]) != "secret" {
		t.Errorf("unexpected attachment payload %q", bobRec.files["notes.txt"])
	}
	bobRec.mu.Unlock()

	if err := alice.Quit(); err != nil {
		t.Fatal(err)
	}
	if err := waitErr(t, aliceDone); err != nil {
		t.Errorf("alice: expected clean end after quit, got %v", err)
	}
	if got := bobRec.waitFor(t, 5); got[4] != "left alice" {
		t.Errorf("bob should see alice leave, got %q", got[4])
	}

	bob.Close()
	if err := waitErr(t, bobDone); err != nil {
		t.Errorf("bob: expected nil after close, got %v", err)
	}
}

func TestClient_Rejected(t *testing.T) {
	addr := startServer(t)
	first, firstRec := connect(t, addr), newRecorder()
	listen(first, firstRec)
	first.Join("alice")
	firstRec.waitFor(t, 2)

	dup, rec := connect(t, addr), newRecorder()
	done := listen(dup, rec)
	dup.Join("alice")
	if err := waitErr(t, done); !errors.Is(err, ErrRejected) {
		t.Errorf("expected ErrRejected, got %v", err)
	}
	if ev := rec.waitFor(t, 1); !strings.HasPrefix(ev[0], "rejected Unable To Join") {
		t.Errorf("unexpected event %q", ev[0])
	}
	if dup.Joined() {
		t.Error("rejected client must not be joined")
	}
}

func TestClient_Status(t *testing.T) {
	addr := startServer(t)
	member := connect(t, addr)
	memberRec := newRecorder()
	listen(member, memberRec)
	member.Join("alice")
	memberRec.waitFor(t, 2)

	probe, rec := connect(t, addr), newRecorder()
	done := listen(probe, rec)
	if err := probe.RequestStatus(); err != nil {
		t.Fatal(err)
	}
	if err := waitErr(t, done); err != nil {
		t.Errorf("expected nil after status, got %v", err)
	}
	want := "status " + member.conn.LocalAddr().String()
	if ev := rec.waitFor(t, 1); ev[0] != want {
		t.Errorf("expected %q, got %q", want, ev[0])
	}
}

func TestClient_JoinRequiresName(t *testing.T) {
	c := New(nil)
	if err := c.Join("  "); err == nil {
		t.Error("expected error for blank username")
	}
}
