package stream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ID is a stream entry identifier: a monotonic (ms, seq) pair, compared
// lexicographically.
type ID struct {
	Ms  uint64
	Seq uint64
}

// String renders the canonical "ms-seq" form.
func (id ID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// Less reports whether id sorts strictly before other.
func (id ID) Less(other ID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

// LessEq reports id <= other.
func (id ID) LessEq(other ID) bool {
	return id == other || id.Less(other)
}

var zeroID = ID{0, 0}

// ErrIDTooSmall is returned when an explicit or partial ID spec would not
// strictly increase past the stream's last-assigned ID.
var ErrIDTooSmall = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")

// ErrIDZero is returned for an explicit 0-0 spec.
var ErrIDZero = errors.New("ERR The ID specified in XADD must be greater than 0-0")

// parseUintStrict parses a bare non-negative decimal integer, as used for
// the ms half of "ms-*" specs and bare-ms range bounds.
func parseUintStrict(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid stream ID component %q", s)
	}
	return n, nil
}

// ParseFromID parses an XREAD from-ID argument: a full "ms-seq" spec or a
// bare ms (seq defaults to 0).
func ParseFromID(spec string) (ID, error) {
	if !strings.Contains(spec, "-") {
		ms, err := parseUintStrict(spec)
		if err != nil {
			return ID{}, err
		}
		return ID{Ms: ms, Seq: 0}, nil
	}
	return parseID(spec)
}

// parseID parses a fully explicit "ms-seq" spec.
func parseID(spec string) (ID, error) {
	ms, seq, ok := strings.Cut(spec, "-")
	if !ok {
		return ID{}, errors.Errorf("invalid stream ID %q", spec)
	}
	msN, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return ID{}, errors.Wrapf(err, "invalid stream ID %q", spec)
	}
	seqN, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return ID{}, errors.Wrapf(err, "invalid stream ID %q", spec)
	}
	return ID{Ms: msN, Seq: seqN}, nil
}
