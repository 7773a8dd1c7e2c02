// Package server is the TCP transport: a listener handing connections
// to a small worker pool, each worker looping frame decode → dispatch
// → frame encode on its connection until it errs or the tomb dies.
package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/dispatch"
	"fenrir/internal/protocol"
)

const defaultReadTimeout = 30 * time.Second

// Server listens for client connections and routes decoded frames to a
// Dispatcher. It assumes the dispatcher (and everything behind it) is
// single-threaded cooperative, so every worker serializes through the
// same Dispatcher value rather than synchronizing on its own.
type Server struct {
	address    string
	port       int
	dispatcher *dispatch.Dispatcher
	pool       workerPool
}

// New constructs a Server with a fixed-size worker pool.
func New(address string, port int, d *dispatch.Dispatcher, workers int) *Server {
	if workers <= 0 {
		workers = 10
	}
	return &Server{
		address:    address,
		port:       port,
		dispatcher: d,
		pool:       newWorkerPool(workers),
	}
}

// Run listens and serves until ctx is canceled, blocking until every
// supervised goroutine has exited.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		<-t.Dying()
		return listener.Close()
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-t.Dying():
				return t.Wait()
			default:
				log.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
		s.pool.addTask(conn)
	}
}

// handleConnection reads frames off conn, dispatches each, and writes
// back the reply, until the connection closes, a frame fails to decode,
// or a dispatched request body fails to decode. Either decode failure is
// logged with a hex dump of the offending bytes and the connection is
// closed; it never crashes the worker.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("server: unexpected task type %T", task)
	}
	defer conn.Close()

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if err == io.EOF {
				log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
				return nil
			}
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("frame read failed, closing connection")
			return nil
		}

		if frame.Type != protocol.PkgRequest {
			log.Error().
				Str("remote", conn.RemoteAddr().String()).
				Str("bytes", hex.EncodeToString(frame.Body)).
				Msg("unexpected frame type, closing connection")
			return nil
		}

		reply, err := s.dispatcher.Handle(frame.Command, frame.ReqID, frame.Body)
		if err != nil {
			log.Error().
				Str("remote", conn.RemoteAddr().String()).
				Str("bytes", hex.EncodeToString(frame.Body)).
				Msg("malformed request body, closing connection")
			return nil
		}

		out := &protocol.Frame{
			Type:     protocol.PkgReply,
			Command:  frame.Command,
			Sequence: frame.Sequence,
			ReqID:    frame.ReqID,
			Body:     reply,
		}
		if err := protocol.WriteFrame(conn, out); err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("frame write failed")
			return nil
		}
	}
}
