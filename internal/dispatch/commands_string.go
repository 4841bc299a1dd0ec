package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"rkv/internal/handler"
	"rkv/internal/protocol"
	"rkv/internal/store"
)

func cmdPing(d *Dispatcher, c *handler.Conn, args []string) []byte {
	return protocol.EncodeSimpleString("PONG")
}

func cmdEcho(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'ECHO'")
	}
	return protocol.EncodeBulkString(args[1])
}

func cmdSet(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) < 3 {
		return protocol.EncodeError("ERR wrong number of arguments for 'SET'")
	}
	key, value := args[1], args[2]

	var expiresAt *time.Time
	if len(args) >= 5 && strings.EqualFold(args[3], "PX") {
		ms, err := cast.ToInt64E(args[4])
		if err != nil {
			return protocol.EncodeError("ERR value is not an integer or out of range")
		}
		t := time.Now().Add(time.Duration(ms) * time.Millisecond)
		expiresAt = &t
	} else if len(args) != 3 {
		return protocol.EncodeError("ERR wrong number of arguments for 'SET'")
	}

	d.store.Set(key, value, expiresAt)
	return protocol.EncodeSimpleString("OK")
}

func cmdGet(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'GET'")
	}
	v, ok := d.store.Get(args[1])
	if !ok {
		return protocol.EncodeNullBulkString()
	}
	return protocol.EncodeBulkString(v)
}

func cmdIncr(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'INCR'")
	}
	n, err := d.store.IncrBy(args[1], 1)
	if err != nil {
		if err == store.ErrNotInteger {
			return protocol.EncodeError("ERR value is not an integer or out of range")
		}
		return protocol.EncodeError("ERR " + err.Error())
	}
	return protocol.EncodeInteger(n)
}

// cmdType implements spec.md §4.C's priority order: stream, then string,
// then none.
func cmdType(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 2 {
		return protocol.EncodeError("ERR wrong number of arguments for 'TYPE'")
	}
	key := args[1]
	switch {
	case d.streams.Exists(key):
		return protocol.EncodeSimpleString("stream")
	case d.store.Exists(key):
		return protocol.EncodeSimpleString("string")
	default:
		return protocol.EncodeSimpleString("none")
	}
}

func cmdKeys(d *Dispatcher, c *handler.Conn, args []string) []byte {
	return protocol.EncodeArray(d.store.Keys())
}

// cmdConfig implements CONFIG GET dir|dbfilename (spec.md §4.G), returning
// the two-element array shape the original implementation returns.
func cmdConfig(d *Dispatcher, c *handler.Conn, args []string) []byte {
	if len(args) != 3 || !strings.EqualFold(args[1], "GET") {
		return protocol.EncodeError("ERR unsupported CONFIG subcommand")
	}
	var value string
	switch strings.ToLower(args[2]) {
	case "dir":
		value = d.cfg.Dir
	case "dbfilename":
		value = d.cfg.DBFilename
	default:
		return protocol.EncodeArray(nil)
	}
	return protocol.EncodeArray([]string{args[2], value})
}

func cmdInfo(d *Dispatcher, c *handler.Conn, args []string) []byte {
	role := "role:" + string(d.cfg.Role)
	return protocol.EncodeBulkString(role + "\r\nconnected_slaves:" + strconv.Itoa(d.repl.Count()))
}
