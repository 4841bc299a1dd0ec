// Package server wires the core components (store, stream engine,
// replication coordinator, connection handler, command dispatcher) into a
// running process: it owns the listening socket, the optional replica-mode
// client loop, and graceful shutdown.
package server

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rkv/internal/dispatch"
	"rkv/internal/handler"
	"rkv/internal/rdb"
	"rkv/internal/repl"
	"rkv/internal/store"
	"rkv/internal/stream"
)

// Server owns the listening socket and every long-lived component.
type Server struct {
	cfg *Config
	log *zap.SugaredLogger

	store   *store.Store
	streams *stream.Engine
	coord   *repl.Coordinator
	disp    *dispatch.Dispatcher
	conns   *handler.Handler

	listener net.Listener
}

// New builds a Server from cfg, seeding the keyspace from the configured
// RDB snapshot (spec.md §4.B; a missing file starts empty).
func New(cfg *Config, log *zap.SugaredLogger) (*Server, error) {
	st := store.New()
	loader := rdb.NewLoader(log)
	entries, err := loader.Load(filepath.Join(cfg.Dir, cfg.DBFilename))
	if err != nil {
		return nil, errors.Wrap(err, "load RDB snapshot")
	}
	for key, e := range entries {
		var expiresAt *time.Time
		if e.ExpiresAt != nil {
			t := rdb.MillisToTime(*e.ExpiresAt)
			expiresAt = &t
		}
		st.Set(key, e.Value, expiresAt)
	}

	streams := stream.New()
	coord := repl.NewCoordinator(log)
	disp := dispatch.New(log, st, streams, coord, dispatch.Config{
		Dir:        cfg.Dir,
		DBFilename: cfg.DBFilename,
		Port:       cfg.Port,
		Role:       cfg.Role(),
	})

	s := &Server{cfg: cfg, log: log, store: st, streams: streams, coord: coord, disp: disp}
	s.conns = handler.New(log, disp, s.onConnClose)
	return s, nil
}

func (s *Server) onConnClose(c *handler.Conn) {
	if c.ReplicaID != "" {
		s.coord.RemoveReplica(c.ReplicaID)
	}
}

// Start accepts connections until ctx is cancelled. If the server is
// configured as a replica, it also runs the master handshake and consume
// loop as an independent worker (spec.md §9's redesign note), sharing the
// same dispatcher with replicated writes suppressing client replies.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	s.listener = listener
	if s.log != nil {
		s.log.Infow("listening", "addr", addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(gctx) })

	if s.cfg.Role() == repl.RoleReplica {
		g.Go(func() error { return s.runReplica(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.listener.Close()
	})

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "accept")
			}
		}
		go s.conns.Serve(conn)
	}
}

// runReplica drives the client-mode handshake against the configured
// master and feeds its command stream through the shared dispatcher,
// applying each command with no client-facing reply (spec.md §4.E).
func (s *Server) runReplica(ctx context.Context) error {
	addr, err := s.cfg.MasterAddr()
	if err != nil {
		return errors.Wrap(err, "replica config")
	}

	client, err := repl.Dial(s.log, addr, s.cfg.Port, 5*time.Second)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("replica handshake failed, continuing as standalone", "master", addr, "err", err)
		}
		return nil
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- client.Run(s.disp.ApplyReplicated) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil && s.log != nil {
			s.log.Warnw("replica connection to master closed", "err", err)
		}
		return nil
	}
}

// Shutdown closes the listener and every registered replica connection.
func (s *Server) Shutdown() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if shutdownErr := s.coord.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
