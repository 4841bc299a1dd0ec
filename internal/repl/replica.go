package repl

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"rkv/internal/protocol"
)

// Client is the replica side of the handshake: it connects to a master,
// performs PING/REPLCONF/PSYNC, discards the full-resync snapshot, and
// then silently consumes the command stream.
type Client struct {
	log  *zap.SugaredLogger
	conn net.Conn
	dec  *protocol.Decoder

	// ackOffset is replica_ack_offset: bytes of the command stream
	// consumed since handshake completion.
	ackOffset int64
}

// Dial connects to host:port and performs the four-step handshake
// (PING, REPLCONF listening-port, REPLCONF capa psync2, PSYNC ? -1),
// discarding the RDB snapshot that follows FULLRESYNC.
func Dial(log *zap.SugaredLogger, addr string, ownPort int, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "dial master")
	}

	c := &Client{log: log, conn: conn, dec: protocol.NewDecoder(conn)}
	if err := c.handshake(ownPort); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake(ownPort int) error {
	steps := []struct {
		name string
		args []string
		want func(interface{}) bool
	}{
		{"PING", []string{"PING"}, isSimpleString("PONG")},
		{"REPLCONF listening-port", []string{"REPLCONF", "listening-port", strconv.Itoa(ownPort)}, isSimpleString("OK")},
		{"REPLCONF capa", []string{"REPLCONF", "capa", "psync2"}, isSimpleString("OK")},
	}
	for _, step := range steps {
		if err := c.send(step.args); err != nil {
			return errors.Wrapf(err, "handshake: send %s", step.name)
		}
		reply, err := c.dec.ReadValue()
		if err != nil {
			return errors.Wrapf(err, "handshake: read %s reply", step.name)
		}
		if !step.want(reply) {
			return errors.Errorf("handshake: unexpected %s reply %v", step.name, reply)
		}
	}

	if err := c.send([]string{"PSYNC", "?", "-1"}); err != nil {
		return errors.Wrap(err, "handshake: send PSYNC")
	}
	reply, err := c.dec.ReadValue()
	if err != nil {
		return errors.Wrap(err, "handshake: read PSYNC reply")
	}
	line, ok := reply.(string)
	if !ok || !strings.HasPrefix(line, "FULLRESYNC") {
		return errors.Errorf("handshake: unexpected PSYNC reply %v", reply)
	}

	// Discard the RDB snapshot bulk payload; this core doesn't seed
	// state from a replica's own resync.
	if _, err := c.dec.ReadValue(); err != nil {
		return errors.Wrap(err, "handshake: read RDB payload")
	}
	return nil
}

func isSimpleString(want string) func(interface{}) bool {
	return func(v interface{}) bool {
		s, ok := v.(string)
		return ok && s == want
	}
}

func (c *Client) send(args []string) error {
	_, err := c.conn.Write(protocol.EncodeCommandArray(args))
	return err
}

// AckOffset returns the current replica_ack_offset.
func (c *Client) AckOffset() int64 { return c.ackOffset }

// Run consumes the command stream from master until the connection
// closes or apply returns a non-nil error. Every decoded command is
// dispatched through apply with no reply sent back to master, except
// REPLCONF GETACK *, which is answered with REPLCONF ACK <offset>.
func (c *Client) Run(apply func(args []string) error) error {
	for {
		cmd, err := c.dec.ReadCommand()
		if err != nil {
			return err
		}

		if len(cmd.Args) == 3 && strings.EqualFold(cmd.Args[0], "REPLCONF") && strings.EqualFold(cmd.Args[1], "GETACK") {
			if err := c.send([]string{"REPLCONF", "ACK", strconv.FormatInt(c.ackOffset, 10)}); err != nil {
				return errors.Wrap(err, "send REPLCONF ACK")
			}
		} else if err := apply(cmd.Args); err != nil && c.log != nil {
			c.log.Errorw("replicated command failed", "args", cmd.Args, "err", err)
		}

		c.ackOffset += int64(len(protocol.EncodeCommandArray(cmd.Args)))
	}
}

// Close closes the connection to master.
func (c *Client) Close() error { return c.conn.Close() }
