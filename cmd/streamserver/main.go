// Command streamserver is the accept front end (§4 component 7): it
// binds a TCP port, initializes the hardware access layer once, and
// spawns one session goroutine per accepted connection.
//
// This plays the role the teacher's CreateRTMPServer/AcceptConnections
// pair (rtmp_server.go) plays for the RTMP listener, reorganized into
// an explicit main that owns the HAL's lifecycle directly instead of
// hanging it off a long-lived server struct: the HAL has no per-
// connection bookkeeping of its own, so there is nothing left for a
// server object to hold beyond the listener and the HAL handle.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/AgustinSRG/capture-stream-server/internal/hal"
	"github.com/AgustinSRG/capture-stream-server/internal/logging"
	"github.com/AgustinSRG/capture-stream-server/internal/session"
)

func main() {
	_ = godotenv.Load()

	var bind, logLevel string
	var backlog int

	flag.StringVar(&bind, "bind", envOr("BIND_ADDRESS", ""), "address to bind to (default: all interfaces)")
	flag.StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.IntVar(&backlog, "backlog", envInt("LISTEN_BACKLOG", 2), "TCP listen backlog")
	flag.Parse()

	logging.SetLevel(logLevel)

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		usage()
		os.Exit(1)
	}

	h := hal.New()
	if err := h.Init(); err != nil {
		logging.Base.WithError(err).Fatal("failed to initialize hardware access layer")
	}

	ln, err := listenTCP(bind, port, backlog)
	if err != nil {
		logging.Base.WithError(err).Fatal("failed to listen")
	}
	logging.Base.WithFields(logrus.Fields{
		"bind":    bind,
		"port":    port,
		"backlog": backlog,
	}).Info("stream server listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT)
	defer stop()

	go func() {
		<-ctx.Done()
		logging.Base.Info("shutting down")
		ln.Close()
	}()

	acceptLoop(ctx, ln, h)

	if err := h.Close(); err != nil {
		logging.Base.WithError(err).Warn("error tearing down hardware access layer")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: stream_server [flags] <port>")
	flag.PrintDefaults()
}

// acceptLoop accepts connections until the listener closes (triggered
// by the SIGINT handler above), spawning one session goroutine per
// connection (§5: "one worker per client connection, running
// concurrently in parallel").
func acceptLoop(ctx context.Context, ln net.Listener, h *hal.HAL) {
	var nextID uint64

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logging.Base.WithError(err).Warn("accept failed")
				return
			}
		}

		id := atomic.AddUint64(&nextID, 1)
		remote := conn.RemoteAddr().String()
		log := logging.ForSession(id, remote)
		log.Debug("connection accepted")

		go func() {
			session.New(h, id, conn, log).Run()
			log.Debug("connection closed")
		}()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// listenTCP builds a listener with an explicit listen(2) backlog via
// golang.org/x/sys/unix, since net.Listen does not expose one: §5
// specifies a backlog of 2 as the server's only admission control
// (beyond that, excess connections simply wait in the kernel's SYN
// queue instead of being accepted and then rejected).
func listenTCP(bindAddr string, port int, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if bindAddr != "" {
		ip := net.ParseIP(bindAddr).To4()
		if ip == nil {
			unix.Close(fd)
			return nil, fmt.Errorf("invalid bind address %q", bindAddr)
		}
		copy(sa.Addr[:], ip)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("stream-listener:%d", port))
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return ln, nil
}
