package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iwanhae/chatroom/client"
	"github.com/iwanhae/chatroom/protocol"
	"github.com/spf13/cobra"
)

func newStatusCmd(defaultAddr string) *cobra.Command {
	var serverAddr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the number of users in the room and their addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			c, err := client.Dial(ctx, serverAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.RequestStatus(); err != nil {
				return err
			}
			return c.Listen(ctx, &printer{out: cmd.OutOrStdout()})
		},
	}
	cmd.Flags().StringVar(&serverAddr, "addr", defaultAddr, "server address")
	return cmd
}

func newJoinCmd(defaultAddr string) *cobra.Command {
	var (
		serverAddr  string
		downloadDir string
	)
	cmd := &cobra.Command{
		Use:   "join <username>",
		Short: "Join the room and chat from stdin",
		Long:  "Join the room. Each stdin line is sent as a message; /attach <path> shares a file and /quit leaves.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			c, err := client.Dial(dialCtx, serverAddr)
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Join(args[0]); err != nil {
				return err
			}
			p := &printer{out: cmd.OutOrStdout(), downloadDir: downloadDir}
			done := make(chan error, 1)
			go func() { done <- c.Listen(ctx, p) }()
			go readInput(c, cmd.InOrStdin(), p)

			err = <-done
			if errors.Is(err, client.ErrRejected) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&serverAddr, "addr", defaultAddr, "server address")
	cmd.Flags().StringVar(&downloadDir, "download-dir", ".", "directory received attachments are saved to")
	return cmd
}

// readInput turns stdin lines into requests until stdin ends or /quit.
func readInput(c *client.Client, in io.Reader, p *printer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !c.Joined() {
			p.printf("not in the room yet")
			continue
		}

		var err error
		switch {
		case line == "/quit":
			err = c.Quit()
			if err == nil {
				return
			}
		case strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				p.printf("cannot attach %s: %v", path, rerr)
				continue
			}
			err = c.SendAttachment(path, data)
		default:
			err = c.Send(line)
		}
		if err != nil {
			p.printf("send failed: %v", err)
			return
		}
	}
	// stdin closed: leave politely
	if c.Joined() {
		_ = c.Quit()
	}
}

// printer writes server events for a terminal user.
type printer struct {
	out         io.Writer
	downloadDir string
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) Joined(username, history string) {
	if history != "" {
		fmt.Fprint(p.out, history)
	}
	p.printf("joined as %s", username)
}

func (p *printer) Rejected(reason string) {
	p.printf("%s", reason)
}

func (p *printer) Status(userCount int, roster []string) {
	p.printf("%d user(s) connected", userCount)
	for _, addr := range roster {
		p.printf("  %s", addr)
	}
}

func (p *printer) Announce(msg protocol.JoinAnnounce) {
	p.printf("%s", msg.Content)
}

func (p *printer) Left(msg protocol.QuitAccept) {
	p.printf("%s", msg.Content)
}

func (p *printer) Message(msg protocol.Chat) {
	p.printf("[%s] %s: %s", protocol.FormatTime(msg.Timestamp), msg.Username, strings.TrimSpace(msg.Content))
}

func (p *printer) Attachment(msg protocol.Chat, data []byte) {
	name := filepath.Base(msg.Filename)
	path, err := saveAttachment(p.downloadDir, name, data)
	if err != nil {
		p.printf("[%s] %s shared %q but it could not be saved: %v", protocol.FormatTime(msg.Timestamp), msg.Username, name, err)
		return
	}
	p.printf("[%s] %s shared %q, saved to %s", protocol.FormatTime(msg.Timestamp), msg.Username, name, path)
}

// saveAttachment writes data under dir without replacing existing files:
// "notes.txt" becomes "notes-1.txt", "notes-2.txt" and so on.
func saveAttachment(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}
