package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrFormat marks a malformed RDB file — a corrupt length, an
// unrecognized value type, or truncated input. Contrasted with an IO
// error (e.g. the file doesn't exist), which Load treats as "empty
// database" rather than a failure.
var ErrFormat = errors.New("malformed RDB file")

// Loader parses an RDB snapshot file into a seed keyspace.
type Loader struct {
	log *zap.SugaredLogger
}

// NewLoader returns a Loader that reports IO failures through log.
func NewLoader(log *zap.SugaredLogger) *Loader {
	return &Loader{log: log}
}

// Load reads path and returns its string keyspace. A missing file or any
// other IO error yields an empty map and a nil error — the caller starts
// with an empty keyspace, per this loader's IO-failure contract. A
// structurally invalid file returns ErrFormat.
func (l *Loader) Load(path string) (map[string]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if l.log != nil {
			l.log.Infow("rdb: no snapshot loaded", "path", path, "err", err)
		}
		return map[string]Entry{}, nil
	}
	defer f.Close()

	return l.load(bufio.NewReaderSize(f, 4096))
}

func (l *Loader) load(r *bufio.Reader) (map[string]Entry, error) {
	hdr := make([]byte, len(magic)+4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, errors.Wrap(ErrFormat, "read header")
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, errors.Wrap(ErrFormat, "bad magic string")
	}

	out := make(map[string]Entry)
	var pendingExpiry *uint64

	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(ErrFormat, "unexpected EOF before 0xFF")
		}

		switch op {
		case opEOF:
			return out, nil

		case opAux:
			if _, err := readString(r); err != nil {
				return nil, errors.Wrap(err, "read aux key")
			}
			if _, err := readString(r); err != nil {
				return nil, errors.Wrap(err, "read aux value")
			}

		case opSelectDB:
			if _, err := readLength(r); err != nil {
				return nil, errors.Wrap(err, "read db selector")
			}

		case opResizeDB:
			if _, err := readLength(r); err != nil {
				return nil, errors.Wrap(err, "read resizedb hashtable size")
			}
			if _, err := readLength(r); err != nil {
				return nil, errors.Wrap(err, "read resizedb expiry size")
			}

		case opExpireMS:
			var ms uint64
			if err := binary.Read(r, binary.LittleEndian, &ms); err != nil {
				return nil, errors.Wrap(ErrFormat, "read ms expiry")
			}
			pendingExpiry = &ms

		case opExpireSec:
			var sec uint32
			if err := binary.Read(r, binary.LittleEndian, &sec); err != nil {
				return nil, errors.Wrap(ErrFormat, "read sec expiry")
			}
			ms := uint64(sec) * 1000
			pendingExpiry = &ms

		default:
			key, value, err := readTypedRecord(r, op)
			if err != nil {
				return nil, err
			}
			if op == typeString {
				out[key] = Entry{Value: value, ExpiresAt: pendingExpiry}
			}
			pendingExpiry = nil
		}
	}
}

// readTypedRecord reads "<key string><value string>" for a permitted
// value type (string, or stream types 10..13). Any other type byte is a
// format error.
func readTypedRecord(r *bufio.Reader, valueType byte) (key, value string, err error) {
	if valueType != typeString && !(valueType >= typeStreamMin && valueType <= typeStreamMax) {
		return "", "", errors.Wrapf(ErrFormat, "unsupported value type %d", valueType)
	}
	key, err = readString(r)
	if err != nil {
		return "", "", errors.Wrap(err, "read record key")
	}
	value, err = readString(r)
	if err != nil {
		return "", "", errors.Wrap(err, "read record value")
	}
	return key, value, nil
}

// readLength decodes a variable-length integer: top two bits select 6-bit,
// 14-bit, 32-bit little-endian, or a 2^k special encoding (k held in the
// remaining 6 bits).
func readLength(r *bufio.Reader) (uint32, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, errors.Wrap(ErrFormat, "read length prefix")
	}

	switch (first & 0xC0) >> 6 {
	case 0:
		return uint32(first & 0x3F), nil
	case 1:
		second, err := r.ReadByte()
		if err != nil {
			return 0, errors.Wrap(ErrFormat, "read 14-bit length")
		}
		return uint32(first&0x3F)<<8 | uint32(second), nil
	case 2:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, errors.Wrap(ErrFormat, "read 32-bit length")
		}
		return binary.LittleEndian.Uint32(buf[:]), nil
	default: // 3: special encoding, size 2^k
		k := first & 0x3F
		return uint32(1) << k, nil
	}
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readLength(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(ErrFormat, "read string payload")
	}
	return string(buf), nil
}

// MillisToTime converts a loaded millisecond timestamp to a time.Time, for
// callers seeding internal/store.
func MillisToTime(ms uint64) time.Time {
	return time.UnixMilli(int64(ms))
}
