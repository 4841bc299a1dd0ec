// Package stream implements append-ordered streams: XADD ID generation,
// XRANGE queries, and XREAD including blocking reads that wake on new
// entries.
package stream

import (
	"sync"
	"time"
)

// Entry is one stream record: an ID plus an ordered list of alternating
// field/value strings.
type Entry struct {
	ID     ID
	Fields []string
}

type streamData struct {
	entries []Entry
}

// Engine holds every stream in the keyspace plus the process-wide "last
// assigned ID", used to break ties across concurrent XADDs to different
// streams per spec.md's global generation rule.
type Engine struct {
	mu      sync.RWMutex
	streams map[string]*streamData
	lastID  ID
	waiters *waiters
}

// New returns an empty stream engine.
func New() *Engine {
	return &Engine{
		streams: make(map[string]*streamData),
		waiters: newWaiters(),
	}
}

// XAdd assigns an ID to a new entry per one of the three id_spec forms and
// appends it. now is the wall-clock source for the "*" form, passed in so
// callers (and tests) control it.
func (e *Engine) XAdd(key, idSpec string, fields []string, now func() time.Time) (ID, error) {
	e.mu.Lock()

	s := e.streams[key]
	streamEmpty := s == nil || len(s.entries) == 0

	id, err := e.assignID(idSpec, streamEmpty, now)
	if err != nil {
		e.mu.Unlock()
		return ID{}, err
	}

	if s == nil {
		s = &streamData{}
		e.streams[key] = s
	}
	s.entries = append(s.entries, Entry{ID: id, Fields: append([]string(nil), fields...)})
	e.lastID = id

	e.mu.Unlock()

	// notify runs with e.mu released so it never nests under e.mu — Wait's
	// register-then-recheck sequence locks w.mu then e.mu, and holding both
	// orders at once here would invert that and risk deadlock.
	e.waiters.notify(key)
	return id, nil
}

// assignID implements spec.md §4.D's ID-generation rules against the
// engine's global last-assigned ID.
func (e *Engine) assignID(idSpec string, streamEmpty bool, now func() time.Time) (ID, error) {
	L := e.lastID

	switch {
	case idSpec == "*":
		ms := uint64(now().UnixMilli())
		if ms == L.Ms {
			return ID{Ms: ms, Seq: L.Seq + 1}, nil
		}
		return ID{Ms: ms, Seq: 0}, nil

	case len(idSpec) > 2 && idSpec[len(idSpec)-2:] == "-*":
		msStr := idSpec[:len(idSpec)-2]
		ms, err := parseUintStrict(msStr)
		if err != nil {
			return ID{}, err
		}
		switch {
		case streamEmpty && ms == 0:
			return ID{Ms: 0, Seq: 1}, nil
		case streamEmpty:
			return ID{Ms: ms, Seq: 0}, nil
		case ms == L.Ms:
			return ID{Ms: ms, Seq: L.Seq + 1}, nil
		case ms < L.Ms:
			return ID{}, ErrIDTooSmall
		default:
			return ID{Ms: ms, Seq: 0}, nil
		}

	default:
		id, err := parseID(idSpec)
		if err != nil {
			return ID{}, err
		}
		if id == zeroID {
			return ID{}, ErrIDZero
		}
		if id.LessEq(L) {
			return ID{}, ErrIDTooSmall
		}
		return id, nil
	}
}

// XRange returns entries with IDs in [from, to] inclusive, per spec.md's
// half-open "-"/"+"/bare-ms syntax.
func (e *Engine) XRange(key, from, to string) ([]Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	lo, err := parseRangeBound(from, false)
	if err != nil {
		return nil, err
	}
	hi, err := parseRangeBound(to, true)
	if err != nil {
		return nil, err
	}

	s := e.streams[key]
	if s == nil {
		return nil, nil
	}

	var out []Entry
	for _, ent := range s.entries {
		if lo.LessEq(ent.ID) && ent.ID.LessEq(hi) {
			out = append(out, ent)
		}
	}
	return out, nil
}

// parseRangeBound parses "-", "+", a bare ms, or a full "ms-seq" spec. A
// bare ms is open on the corresponding side: as a lower bound it means
// seq=0 (any seq at that ms and later), as an upper bound it means
// seq=max.
func parseRangeBound(spec string, upper bool) (ID, error) {
	switch spec {
	case "-":
		return ID{Ms: 0, Seq: 0}, nil
	case "+":
		return ID{Ms: ^uint64(0), Seq: ^uint64(0)}, nil
	}
	if !containsDash(spec) {
		ms, err := parseUintStrict(spec)
		if err != nil {
			return ID{}, err
		}
		if upper {
			return ID{Ms: ms, Seq: ^uint64(0)}, nil
		}
		return ID{Ms: ms, Seq: 0}, nil
	}
	return parseID(spec)
}

func containsDash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			return true
		}
	}
	return false
}

// Exists reports whether key names a stream, for TYPE's stream-before-string
// priority order.
func (e *Engine) Exists(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.streams[key]
	return ok
}

// LastID returns the most recently added entry ID for key, used by XREAD's
// "$" sentinel to capture "the current tail at call time".
func (e *Engine) LastID(key string) ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.streams[key]
	if s == nil || len(s.entries) == 0 {
		return ID{}
	}
	return s.entries[len(s.entries)-1].ID
}

// After returns entries in key strictly greater than from, per XREAD's
// exclusive lower bound.
func (e *Engine) After(key string, from ID) []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.afterLocked(key, from)
}

// afterLocked is After's body, for callers that already hold e.mu (After
// and anyAfter).
func (e *Engine) afterLocked(key string, from ID) []Entry {
	s := e.streams[key]
	if s == nil {
		return nil
	}
	var out []Entry
	for _, ent := range s.entries {
		if from.Less(ent.ID) {
			out = append(out, ent)
		}
	}
	return out
}

// anyAfter reports whether any of keys has an entry beyond its paired from
// ID. It takes its own read lock, so it's safe to call both before
// registering a waiter and from inside waiters.wait's post-register check.
func (e *Engine) anyAfter(keys []string, from []ID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i, k := range keys {
		if len(e.afterLocked(k, from[i])) > 0 {
			return true
		}
	}
	return false
}

// Wait blocks until any of keys has an entry beyond its paired from ID, or
// timeout elapses (timeout==0 means block forever). It returns immediately
// if any key already qualifies. The race between this initial check and
// registering interest in waiters is closed inside waiters.wait itself,
// which re-runs the same check after the waiter is registered.
func (e *Engine) Wait(keys []string, from []ID, timeout time.Duration) {
	if e.anyAfter(keys, from) {
		return
	}
	e.waiters.wait(keys, timeout, func() bool { return e.anyAfter(keys, from) })
}
