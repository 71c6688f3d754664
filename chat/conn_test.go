package chat

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestLineConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	conn := NewLineConn(server, &net.TCPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 4242})
	defer conn.Close()

	if host, port := conn.PeerAddr(); host != "192.0.2.7" || port != 4242 {
		t.Errorf("unexpected peer %s:%d", host, port)
	}

	go func() {
		client.Write([]byte("first\r\nsecond\n"))
		client.Write([]byte("tail"))
		client.Close()
	}()
	for _, want := range []string{"first", "second", "tail"} {
		line, err := conn.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if string(line) != want {
			t.Errorf("expected %q, got %q", want, line)
		}
	}
	if _, err := conn.ReadLine(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestLineConn_WriteAddsNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	conn := NewLineConn(server, nil)
	defer conn.Close()

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		client.SetReadDeadline(time.Now().Add(time.Second))
		n, _ := client.Read(buf)
		got <- string(buf[:n])
	}()
	if err := conn.WriteLine([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if s := <-got; s != "hello\n" {
		t.Errorf("expected newline-terminated write, got %q", s)
	}
}

func TestHandle_CloseAfterFlush(t *testing.T) {
	fc := newFakeConn(1)
	h := newHandle(fc)
	h.Send([]byte("one\n"))
	h.Send([]byte("two\n"))
	h.CloseAfterFlush()
	h.Send([]byte("dropped\n"))

	for _, want := range []string{"one\n", "two\n"} {
		select {
		case line := <-fc.out:
			if string(line) != want {
				t.Errorf("expected %q, got %q", want, line)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
	fc.waitClosed(t)
	h.Wait()
	select {
	case line := <-fc.out:
		t.Errorf("unexpected line after close %q", line)
	default:
	}
}
