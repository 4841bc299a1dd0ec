package dispatch

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"rkv/internal/handler"
	"rkv/internal/protocol"
)

// cmdReplconf handles the handshake subcommands (listening-port, capa) with
// a plain +OK, and ACK by crediting the sending replica's WAIT cycle
// (spec.md §4.E). GETACK is only ever sent master→replica and is answered
// inline by the replica's consume loop (internal/repl.Client.Run), not
// through this dispatcher.
func cmdReplconf(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) < 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'REPLCONF'")
	}
	switch strings.ToLower(args[1]) {
	case "ack":
		if c.ReplicaID != "" {
			d.repl.GetAck(c.ReplicaID)
		}
		return nil
	default:
		return protocol.EncodeSimpleString("OK")
	}
}

// cmdPsync implements the master side of full resync (spec.md §4.E): reply
// with FULLRESYNC, then the RDB snapshot framed without a trailing CRLF,
// then register the connection as a replica. It writes directly to c and
// returns nil since the reply doesn't fit the single-encoded-value shape
// every other command produces.
func cmdPsync(d *Dispatcher, c *handler.Conn, args []string) []byte {
	c.Write(protocol.EncodeSimpleString("FULLRESYNC " + d.repl.ReplID() + " 0"))
	c.Write(protocol.EncodeBulkStringNoTrailingCRLF(d.repl.EmptyRDB()))

	r := d.repl.AddReplica(c.Conn)
	c.ReplicaID = r.ID
	return nil
}

// cmdWait implements WAIT n timeout_ms (spec.md §4.E).
func cmdWait(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 3 {
		return protocol.EncodeError("ERR wrong number of arguments for 'WAIT'")
	}
	n, err := cast.ToIntE(args[1])
	if err != nil {
		return protocol.EncodeError("ERR value is not an integer or out of range")
	}
	timeoutMs, err := cast.ToInt64E(args[2])
	if err != nil {
		return protocol.EncodeError("ERR value is not an integer or out of range")
	}
	got := d.repl.Wait(n, time.Duration(timeoutMs)*time.Millisecond)
	return protocol.EncodeInteger(int64(got))
}
