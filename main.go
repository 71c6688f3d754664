package main

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/iwanhae/chatroom/chat"
	"github.com/iwanhae/chatroom/protocol"
	"github.com/spf13/cobra"
)

var (
	addr              string
	sshAddr           string
	hostKeyPath       string
	wsAddr            string
	historyBackend    string
	dbPath            string
	maxPerIP          int
	maxConnRate       int
	bannedIPs         []string
	shutdownCountdown time.Duration
	shutdownTimeout   time.Duration
)

func main() {
	env := chat.ConfigFromEnv()

	rootCmd := &cobra.Command{
		Use:   "chatroom",
		Short: "A single-room chat server",
		Long:  "A single-room chat server speaking newline-delimited JSON over TCP, with optional SSH and WebSocket listeners.",
		RunE:  runServe,
	}

	rootCmd.Flags().StringVar(&addr, "addr", env.Addr, "TCP listen address (env CHATROOM_ADDR)")
	rootCmd.Flags().StringVar(&sshAddr, "ssh-addr", "", "also serve the protocol over SSH sessions on this address")
	rootCmd.Flags().StringVar(&hostKeyPath, "host-key", "host.key", "path to SSH host private key")
	rootCmd.Flags().StringVar(&wsAddr, "ws-addr", "", "also serve the protocol over WebSocket (/ws) on this address")
	rootCmd.Flags().StringVar(&historyBackend, "history", "memory", "history backend: memory or sqlite")
	rootCmd.Flags().StringVar(&dbPath, "db-path", chat.InMemoryDSN, "SQLite data source used with --history=sqlite")
	rootCmd.Flags().IntVar(&maxPerIP, "max-per-ip", 0, "max simultaneous connections allowed per IP (0 disables)")
	rootCmd.Flags().IntVar(&maxConnRate, "max-conn-rate", 0, "max new connections per IP per minute before a ban (0 disables)")
	rootCmd.Flags().StringSliceVar(&bannedIPs, "ban", nil, "IP addresses refused at accept time")
	rootCmd.Flags().DurationVar(&shutdownCountdown, "shutdown-countdown", 0, "announce shutdown to the room for this long before closing")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "how long to wait for sessions to end")

	rootCmd.AddCommand(newStatusCmd(env.Addr), newJoinCmd(env.Addr))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	cfg := chat.DefaultConfig()
	cfg.Addr = addr
	cfg.MaxPerIP = maxPerIP
	cfg.ConnRateLimit = maxConnRate
	cfg.Bans = bannedIPs

	switch historyBackend {
	case "memory":
	case "sqlite":
		store, err := chat.NewSQLiteMessageStore(dbPath)
		if err != nil {
			return fmt.Errorf("failed to create sqlite store: %w", err)
		}
		cfg.Store = store
	default:
		return fmt.Errorf("unknown history backend %q", historyBackend)
	}

	srv, err := chat.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to start chat server: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		if err := srv.ListenAndServe(cfg.Addr); err != nil && !errors.Is(err, chat.ErrServerClosed) {
			errCh <- err
		}
	}()

	var sshSrv *ssh.Server
	if sshAddr != "" {
		sshSrv = &ssh.Server{
			Addr:    sshAddr,
			Handler: srv.HandleSSH,
		}
		if err := sshSrv.SetOption(ssh.HostKeyFile(hostKeyPath)); err != nil {
			srv.Shutdown(shutdownTimeout)
			return fmt.Errorf("failed to load host key: %w", err)
		}
		go func() {
			log.Printf("starting ssh listener on %s ...", sshAddr)
			if err := sshSrv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
				errCh <- err
			}
		}()
	}

	var httpSrv *http.Server
	if wsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", srv.HandleWebSocket)
		httpSrv = &http.Server{Addr: wsAddr, Handler: mux}
		go func() {
			log.Printf("starting websocket listener on %s ...", wsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case sig := <-quitCh:
		log.Printf("received signal: %v", sig)
	case err = <-errCh:
		log.Printf("listener error: %v", err)
	}

	runShutdownSequence(srv, shutdownCountdown)

	if sshSrv != nil {
		_ = sshSrv.Close()
	}
	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	if serr := srv.Shutdown(shutdownTimeout); serr != nil {
		log.Printf("shutdown: %v", serr)
	}
	return err
}

// runShutdownSequence counts down in the room once per second.
func runShutdownSequence(srv *chat.Server, countdown time.Duration) {
	if countdown <= 0 {
		return
	}
	announce := func(text string) {
		msg := protocol.Chat{Meta: protocol.NewMeta(protocol.ServerName), Content: text}
		if err := srv.Broadcast(msg); err != nil {
			log.Printf("shutdown announcement: %v", err)
		}
	}
	sec := int(countdown.Seconds())
	announce(fmt.Sprintf("Server shutting down in %d seconds", sec))
	for i := sec - 1; i > 0; i-- {
		time.Sleep(time.Second)
		announce(fmt.Sprintf("%d", i))
	}
	time.Sleep(time.Second)
	announce("Goodbye.")
}
