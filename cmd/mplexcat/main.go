// Command mplexcat is a minimal netcat-style smoke target for the mplex
// package: one side listens, the other dials, and each carries a single
// interactive stream between the local stdin/stdout and the peer.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/veilconnect/mplex"
	"github.com/veilconnect/mplex/internal/logging"
)

func main() {
	var listenAddr, dialAddr, streamName, logLevel string
	flag.StringVar(&listenAddr, "listen", "", "accept one TCP connection on this address and wait for an incoming stream")
	flag.StringVar(&dialAddr, "dial", "", "dial this TCP address and open a stream")
	flag.StringVar(&streamName, "name", "", "name for the stream opened by -dial")
	flag.StringVar(&logLevel, "log", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	if (listenAddr == "") == (dialAddr == "") {
		log.Fatal("exactly one of -listen or -dial is required")
	}

	logger := logging.New(logging.ParseLevel(logLevel), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if listenAddr != "" {
		err = runServer(ctx, listenAddr, logger)
	} else {
		err = runClient(ctx, dialAddr, streamName, logger)
	}
	if err != nil {
		logger.Error("mplexcat exit", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func runServer(ctx context.Context, addr string, logger *logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info("listening", logging.Fields{"addr": addr})

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	logger.Info("accepted connection", logging.Fields{"remote": conn.RemoteAddr().String()})

	incoming := make(chan *mplex.Stream, 1)
	m := mplex.New(conn,
		mplex.WithLogger(logger.ForMultiplexer()),
		mplex.WithOnIncomingStream(func(s *mplex.Stream) { incoming <- s }),
	)
	defer m.Close()

	select {
	case s := <-incoming:
		logger.Info("stream opened by peer", logging.Fields{"id": s.ID(), "name": s.Name()})
		return pipeStdio(ctx, s)
	case <-m.Done():
		return m.Err()
	case <-ctx.Done():
		return nil
	}
}

func runClient(ctx context.Context, addr, name string, logger *logging.Logger) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("connected", logging.Fields{"addr": addr})

	m := mplex.New(conn, mplex.WithLogger(logger.ForMultiplexer()))
	defer m.Close()

	s, err := m.NewStream(name)
	if err != nil {
		return err
	}
	logger.Info("stream opened", logging.Fields{"id": s.ID(), "name": s.Name()})
	return pipeStdio(ctx, s)
}

// pipeStdio copies local stdin to the stream and the stream to local
// stdout concurrently, returning once either direction hits EOF or ctx is
// canceled.
func pipeStdio(ctx context.Context, s *mplex.Stream) error {
	done := make(chan error, 2)
	go func() {
		_, err := io.Copy(s, os.Stdin)
		_ = s.CloseWrite()
		done <- err
	}()
	go func() {
		_, err := io.Copy(os.Stdout, s)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && !strings.Contains(err.Error(), "closed") {
			return err
		}
		return nil
	case <-ctx.Done():
		s.Reset()
		return nil
	}
}
