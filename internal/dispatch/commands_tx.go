package dispatch

import (
	"strings"

	"rkv/internal/handler"
	"rkv/internal/protocol"
)

func cmdMulti(d *Dispatcher, c *handler.Conn, args []string) []byte {
	c.Tx.State = handler.TxQueuing
	c.Tx.Queue = nil
	return protocol.EncodeSimpleString("OK")
}

// cmdExec runs every queued command in order and replies with an array of
// their replies (spec.md §4.G, §8's atomicity-of-reply-shape property).
func cmdExec(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if c.Tx.State != handler.TxQueuing {
		return protocol.EncodeError("ERR EXEC without MULTI")
	}
	queued := c.Tx.Queue
	c.Tx.Reset()

	replies := make([][]byte, 0, len(queued))
	for _, cmd := range queued {
		name := strings.ToUpper(cmd.Args[0])
		reply := d.execute(name, c, cmd.Args)
		if reply == nil {
			reply = protocol.EncodeSimpleString("OK")
		}
		replies = append(replies, reply)
	}
	return protocol.EncodeRawArray(replies)
}

func cmdDiscard(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if c.Tx.State != handler.TxQueuing {
		return protocol.EncodeError("ERR DISCARD without MULTI")
	}
	c.Tx.Reset()
	return protocol.EncodeSimpleString("OK")
}
