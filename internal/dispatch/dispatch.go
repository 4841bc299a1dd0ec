// Package dispatch implements command-name routing (spec.md §4.G): it
// owns the command table, MULTI-queuing policy, and replication
// propagation, and satisfies internal/handler's Dispatcher interface.
package dispatch

import (
	"strings"

	"go.uber.org/zap"

	"rkv/internal/handler"
	"rkv/internal/protocol"
	"rkv/internal/repl"
	"rkv/internal/store"
	"rkv/internal/stream"
)

// Config carries the external-collaborator-supplied settings spec.md §6
// names (dir, dbfilename, port) plus the role resolved from replicaof.
// CONFIG GET reads dir and dbfilename; INFO replication reads the role.
type Config struct {
	Dir        string
	DBFilename string
	Port       int
	Role       repl.Role
}

// writeCommands names every command that mutates the keyspace and so must
// be counted and propagated to replicas (spec.md §4.E/§4.G).
var writeCommands = map[string]bool{
	"SET":  true,
	"INCR": true,
	"XADD": true,
}

// CommandFunc executes one command against c and returns its encoded
// reply, or nil if the handler already wrote (or intentionally suppresses)
// a reply directly.
type CommandFunc func(d *Dispatcher, c *handler.Conn, args []string) []byte

// Dispatcher routes decoded commands to their handler, applying the
// transaction-queuing and replication-propagation policy spec.md §4.F/§4.G
// describe. It implements handler.Dispatcher.
type Dispatcher struct {
	log     *zap.SugaredLogger
	store   *store.Store
	streams *stream.Engine
	repl    *repl.Coordinator
	cfg     Config

	commands map[string]CommandFunc
}

// New returns a Dispatcher wired to the given keyspace, stream engine, and
// replication coordinator.
func New(log *zap.SugaredLogger, st *store.Store, streams *stream.Engine, coord *repl.Coordinator, cfg Config) *Dispatcher {
	d := &Dispatcher{log: log, store: st, streams: streams, repl: coord, cfg: cfg}
	d.commands = map[string]CommandFunc{
		"PING":     cmdPing,
		"ECHO":     cmdEcho,
		"SET":      cmdSet,
		"GET":      cmdGet,
		"INCR":     cmdIncr,
		"TYPE":     cmdType,
		"KEYS":     cmdKeys,
		"CONFIG":   cmdConfig,
		"INFO":     cmdInfo,
		"REPLCONF": cmdReplconf,
		"PSYNC":    cmdPsync,
		"WAIT":     cmdWait,
		"XADD":     cmdXadd,
		"XRANGE":   cmdXrange,
		"XREAD":    cmdXread,
		"MULTI":    cmdMulti,
		"EXEC":     cmdExec,
		"DISCARD":  cmdDiscard,
	}
	return d
}

// Dispatch implements handler.Dispatcher. It enforces MULTI-queuing
// (spec.md §4.F: only MULTI/EXEC/DISCARD run inline while queuing) and
// writes the reply, if any, directly to the connection.
func (d *Dispatcher) Dispatch(c *handler.Conn, args []string) {
	name := strings.ToUpper(args[0])

	if c.Tx.State == handler.TxQueuing && name != "MULTI" && name != "EXEC" && name != "DISCARD" {
		c.Tx.Enqueue(args)
		c.Write(protocol.EncodeSimpleString("QUEUED"))
		return
	}

	reply := d.execute(name, c, args)
	if reply != nil {
		c.Write(reply)
	}
}

// execute runs one command's handler, without any transaction-queuing
// policy; EXEC calls it directly per queued command.
func (d *Dispatcher) execute(name string, c *handler.Conn, args []string) []byte {
	fn, ok := d.commands[name]
	if !ok {
		return protocol.EncodeError("ERR unknown command '" + args[0] + "'")
	}
	reply := fn(d, c, args)

	if writeCommands[name] && reply != nil && !strings.HasPrefix(string(reply), "-") {
		if err := d.repl.Propagate(args); err != nil && d.log != nil {
			d.log.Warnw("replica propagation failed", "command", name, "err", err)
		}
	}
	return reply
}

// ApplyReplicated runs a command consumed from the master's replication
// stream: it executes the handler but neither writes a client reply nor
// re-propagates, since a replica has no replicas of its own in this core.
func (d *Dispatcher) ApplyReplicated(args []string) error {
	if len(args) == 0 {
		return nil
	}
	name := strings.ToUpper(args[0])
	fn, ok := d.commands[name]
	if !ok {
		return nil
	}
	fn(d, &handler.Conn{Tx: handler.NewTransaction()}, args)
	return nil
}
