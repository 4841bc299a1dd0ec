// Package protocol implements the RESP (REdis Serialization Protocol) wire
// codec: a streaming decoder that frames commands out of a byte channel that
// may deliver them in arbitrary TCP-sized chunks, and an encoder for the
// five RESP value shapes.
package protocol

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// ErrMalformed indicates the peer sent bytes that cannot be a valid RESP
// frame. Callers must close the connection on this error.
var ErrMalformed = errors.New("malformed RESP frame")

// Command is a decoded client command: an array of bulk strings.
type Command struct {
	Args []string
}

// Name returns the command name (Args[0]), or "" for an empty command.
func (c *Command) Name() string {
	if c == nil || len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Decoder frames commands out of a connection's byte stream. It owns the
// residual buffer across calls so a command that spans multiple TCP reads
// is reassembled transparently.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r with RESP framing. r should already be buffered (or
// will be wrapped in a bufio.Reader if not).
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// ReadCommand blocks until a full command array is available, returning it
// decoded. io.EOF is returned verbatim when the peer closes cleanly between
// commands; any other error is wrapped and callers must close the
// connection, per spec.md §4.A's framing-error policy.
func (d *Decoder) ReadCommand() (*Command, error) {
	tok, err := d.readToken()
	if err != nil {
		return nil, err
	}
	args, ok := tok.([]string)
	if !ok {
		return nil, errors.Wrap(ErrMalformed, "expected command array")
	}
	return &Command{Args: args}, nil
}

// ReadValue decodes exactly one RESP value of any shape, for callers like
// the replication handshake that read non-command replies (simple
// strings, raw bulk payloads) off the same connection.
func (d *Decoder) ReadValue() (interface{}, error) {
	return d.readToken()
}

// readToken decodes exactly one RESP value, dispatching on the leading
// byte per the prefix table in spec.md §4.A. Arrays of bulk strings decode
// to []string; everything else decodes to its Go-native form (string for
// simple strings/errors/bulk strings, int64 for integers).
func (d *Decoder) readToken() (interface{}, error) {
	prefix, err := d.r.ReadByte()
	if err != nil {
		return nil, err // EOF surfaces to the caller unwrapped
	}

	switch prefix {
	case '+', '-':
		line, err := d.readLine()
		if err != nil {
			return nil, errors.Wrap(err, "read simple string/error")
		}
		return line, nil
	case ':':
		line, err := d.readLine()
		if err != nil {
			return nil, errors.Wrap(err, "read integer")
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "invalid integer %q", line)
		}
		return n, nil
	case '$':
		return d.readBulkString()
	case '*':
		return d.readArray()
	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown frame prefix %q", prefix)
	}
}

func (d *Decoder) readBulkString() (interface{}, error) {
	line, err := d.readLine()
	if err != nil {
		return nil, errors.Wrap(err, "read bulk string length")
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "invalid bulk length %q", line)
	}
	if n < 0 {
		return "", nil // null bulk string, treated as empty for command args
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, errors.Wrap(err, "read bulk string payload")
	}

	// The trailing CRLF is optional here: spec.md §4.A carves out the
	// full-resync RDB payload (no trailing CRLF) as the one frame that
	// omits it. Peek rather than unconditionally consume.
	if peeked, err := d.r.Peek(2); err == nil && string(peeked) == "\r\n" {
		d.r.Discard(2)
	}
	return string(buf), nil
}

func (d *Decoder) readArray() (interface{}, error) {
	line, err := d.readLine()
	if err != nil {
		return nil, errors.Wrap(err, "read array length")
	}
	count, err := strconv.Atoi(line)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "invalid array length %q", line)
	}
	if count < 0 {
		return []string{}, nil
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		prefix, err := d.r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "read array element prefix")
		}
		if prefix != '$' {
			return nil, errors.Wrapf(ErrMalformed, "expected bulk string element, got %q", prefix)
		}
		v, err := d.readBulkString()
		if err != nil {
			return nil, err
		}
		args = append(args, v.(string))
	}
	return args, nil
}

func (d *Decoder) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	n := len(line)
	if n >= 2 && line[n-2] == '\r' {
		return line[:n-2], nil
	}
	if n >= 1 && line[n-1] == '\n' {
		return line[:n-1], nil
	}
	return line, nil
}

// ---- encoding ----

// EncodeSimpleString encodes "+s\r\n".
func EncodeSimpleString(s string) []byte {
	return []byte("+" + s + "\r\n")
}

// EncodeError encodes "-s\r\n".
func EncodeError(s string) []byte {
	return []byte("-" + s + "\r\n")
}

// EncodeInteger encodes ":n\r\n".
func EncodeInteger(n int64) []byte {
	return []byte(":" + strconv.FormatInt(n, 10) + "\r\n")
}

// EncodeBulkString encodes "$len\r\ns\r\n".
func EncodeBulkString(s string) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString("$")
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteString("\r\n")
	buf.WriteString(s)
	buf.WriteString("\r\n")
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// EncodeNullBulkString encodes the RESP nil bulk string, "$-1\r\n".
func EncodeNullBulkString() []byte {
	return []byte("$-1\r\n")
}

// EncodeNullArray encodes the RESP nil array, "*-1\r\n" — used for a timed
// out blocking XREAD.
func EncodeNullArray() []byte {
	return []byte("*-1\r\n")
}

// EncodeBulkStringNoTrailingCRLF encodes the replication full-resync RDB
// payload framing deviation from spec.md §4.A/§4.E: "$len\r\n<bytes>" with
// no trailing CRLF.
func EncodeBulkStringNoTrailingCRLF(payload []byte) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString("$")
	buf.WriteString(strconv.Itoa(len(payload)))
	buf.WriteString("\r\n")
	buf.Write(payload)
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// EncodeArray encodes an array of bulk strings.
func EncodeArray(items []string) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString("*")
	buf.WriteString(strconv.Itoa(len(items)))
	buf.WriteString("\r\n")
	for _, item := range items {
		buf.WriteString("$")
		buf.WriteString(strconv.Itoa(len(item)))
		buf.WriteString("\r\n")
		buf.WriteString(item)
		buf.WriteString("\r\n")
	}
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// EncodeRawArray wraps already-encoded RESP values in an array header.
// Used for EXEC's array-of-replies (spec.md §4.F) and nested array
// responses like XREAD/XRANGE entries.
func EncodeRawArray(items [][]byte) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString("*")
	buf.WriteString(strconv.Itoa(len(items)))
	buf.WriteString("\r\n")
	for _, item := range items {
		buf.Write(item)
	}
	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return out
}

// EncodeCommandArray encodes a command as a RESP array of bulk strings —
// the wire form used to propagate writes to replicas (spec.md §4.E).
func EncodeCommandArray(args []string) []byte {
	return EncodeArray(args)
}
