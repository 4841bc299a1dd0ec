package dispatch

import (
	"strings"
	"time"

	"github.com/spf13/cast"

	"rkv/internal/handler"
	"rkv/internal/protocol"
	"rkv/internal/stream"
)

// cmdXadd implements XADD stream id_spec field value [field value ...]
// (spec.md §4.D).
func cmdXadd(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) < 5 || (len(args)-3)%2 != 0 {
		return protocol.EncodeError("ERR wrong number of arguments for 'XADD'")
	}
	key, idSpec := args[1], args[2]
	fields := args[3:]

	id, err := d.streams.XAdd(key, idSpec, fields, time.Now)
	if err != nil {
		return protocol.EncodeError(errToRESP(err))
	}
	return protocol.EncodeBulkString(id.String())
}

// cmdXrange implements XRANGE stream from to (spec.md §4.D).
func cmdXrange(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 4 {
		return protocol.EncodeError("ERR wrong number of arguments for 'XRANGE'")
	}
	entries, err := d.streams.XRange(args[1], args[2], args[3])
	if err != nil {
		return protocol.EncodeError(errToRESP(err))
	}
	return protocol.EncodeRawArray(encodeEntries(entries))
}

// cmdXread implements XREAD [BLOCK ms] STREAMS stream... id... (spec.md
// §4.D), including the "$" sentinel (current tail at call time) and nil
// response on blocking timeout.
func cmdXread(d *Dispatcher, c *handler.Conn, args []string) []byte {
	rest := args[1:]

	var blockTimeout time.Duration
	blocking := false
	if len(rest) >= 2 && strings.EqualFold(rest[0], "BLOCK") {
		ms, err := cast.ToInt64E(rest[1])
		if err != nil {
			return protocol.EncodeError("ERR value is not an integer or out of range")
		}
		blocking = true
		blockTimeout = time.Duration(ms) * time.Millisecond
		rest = rest[2:]
	}

	if len(rest) < 3 || !strings.EqualFold(rest[0], "STREAMS") {
		return protocol.EncodeError("ERR wrong number of arguments for 'XREAD'")
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		return protocol.EncodeError("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	n := len(rest) / 2
	keys := rest[:n]
	idSpecs := rest[n:]

	froms := make([]stream.ID, n)
	for i, spec := range idSpecs {
		if spec == "$" {
			froms[i] = d.streams.LastID(keys[i])
			continue
		}
		id, err := stream.ParseFromID(spec)
		if err != nil {
			return protocol.EncodeError("ERR Invalid stream ID specified as stream command argument")
		}
		froms[i] = id
	}

	results := collectXread(d.streams, keys, froms)
	if len(results) == 0 && blocking {
		d.streams.Wait(keys, froms, blockTimeout)
		results = collectXread(d.streams, keys, froms)
	}
	if len(results) == 0 {
		return protocol.EncodeNullArray()
	}
	return protocol.EncodeRawArray(results)
}

func collectXread(streams *stream.Engine, keys []string, froms []stream.ID) [][]byte {
	var out [][]byte
	for i, key := range keys {
		entries := streams.After(key, froms[i])
		if len(entries) == 0 {
			continue
		}
		out = append(out, protocol.EncodeRawArray([][]byte{
			protocol.EncodeBulkString(key),
			protocol.EncodeRawArray(encodeEntries(entries)),
		}))
	}
	return out
}

func encodeEntries(entries []stream.Entry) [][]byte {
	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.EncodeRawArray([][]byte{
			protocol.EncodeBulkString(e.ID.String()),
			protocol.EncodeArray(e.Fields),
		}))
	}
	return out
}

func errToRESP(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "ERR ") {
		return msg
	}
	return "ERR " + msg
}
