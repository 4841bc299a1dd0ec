// Package handler implements the per-connection loop: decode a command,
// hand it to a dispatcher, repeat until the peer disconnects or framing
// fails. It owns per-connection state (ID, transaction queue) but not
// command semantics, which live in internal/dispatch.
package handler

import (
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rkv/internal/protocol"
)

// Conn is one client connection's identity and mutable state, threaded
// through every dispatched command.
type Conn struct {
	ID string
	net.Conn
	Tx *Transaction

	// ReplicaID is set once this connection completes PSYNC and is
	// registered in the replica registry; empty for ordinary clients.
	ReplicaID string
}

// Dispatcher routes a decoded command to its handler and writes any
// reply directly to c.Conn. Implemented by internal/dispatch.
type Dispatcher interface {
	Dispatch(c *Conn, args []string)
}

// Handler runs the accept-loop body for one connection: decode, dispatch,
// repeat.
type Handler struct {
	log        *zap.SugaredLogger
	dispatcher Dispatcher
	onClose    func(c *Conn)
}

// New returns a Handler that routes decoded commands through dispatcher.
// onClose, if non-nil, runs once the connection's loop exits (so callers
// can unregister a replica, for instance).
func New(log *zap.SugaredLogger, dispatcher Dispatcher, onClose func(c *Conn)) *Handler {
	return &Handler{log: log, dispatcher: dispatcher, onClose: onClose}
}

// Serve runs the decode/dispatch loop for raw until the peer disconnects
// or sends a malformed frame, per spec.md §4.F.
func (h *Handler) Serve(raw net.Conn) {
	c := &Conn{ID: uuid.NewString(), Conn: raw, Tx: NewTransaction()}
	dec := protocol.NewDecoder(raw)

	defer func() {
		raw.Close()
		if h.onClose != nil {
			h.onClose(c)
		}
	}()

	for {
		cmd, err := dec.ReadCommand()
		if err != nil {
			if err != io.EOF && h.log != nil {
				h.log.Debugw("connection closed", "id", c.ID, "err", err)
			}
			return
		}
		if len(cmd.Args) == 0 {
			continue
		}
		h.dispatcher.Dispatch(c, cmd.Args)
	}
}
