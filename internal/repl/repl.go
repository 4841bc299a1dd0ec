// Package repl implements the one-way master→replica replication
// protocol: the master-side replica registry, full-resync handshake, and
// command propagation, plus the replica-side handshake and consume loop.
package repl

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"rkv/internal/protocol"
)

// Role is the server's stance in a replication relationship.
type Role string

const (
	RoleMaster  Role = "master"
	RoleReplica Role = "slave"
)

// replID is the fixed 40-character replication ID this core reports on
// every full resync. Partial resync is out of scope, so a single constant
// stands in for the teacher's per-process random ID.
const replID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"

// emptyRDB is the minimal valid "no keys" RDB payload sent as the
// full-resync snapshot: magic, version "0011", immediate EOF, and an
// all-zero 8-byte checksum.
var emptyRDB = []byte("REDIS0011\xff\x00\x00\x00\x00\x00\x00\x00\x00")

// Replica is a connected replica as seen from the master side.
type Replica struct {
	ID   string
	Conn net.Conn

	mu            sync.Mutex
	ackedThisWait bool
}

func (r *Replica) send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.Conn.Write(data)
	return err
}

// Coordinator is the master-side replica registry plus WAIT accounting.
// It is also usable on a replica process if that replica itself gains
// sub-replicas, though this core only exercises the single-hop case.
type Coordinator struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	replicas map[string]*Replica

	numWriteOps    int64 // atomic: writes propagated since startup
	numReplicasAck int64 // atomic: ACKs received during the current WAIT
}

// NewCoordinator returns an empty replica registry.
func NewCoordinator(log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		log:      log,
		replicas: make(map[string]*Replica),
	}
}

// ReplID returns the fixed replication ID reported on PSYNC full resync.
func (c *Coordinator) ReplID() string { return replID }

// EmptyRDB returns the snapshot payload sent to a newly registered
// replica during full resync.
func (c *Coordinator) EmptyRDB() []byte { return emptyRDB }

// AddReplica registers conn as a replica that has completed the PSYNC
// handshake, per spec.md §3's registry invariant.
func (c *Coordinator) AddReplica(conn net.Conn) *Replica {
	r := &Replica{ID: uuid.NewString(), Conn: conn}
	c.mu.Lock()
	c.replicas[r.ID] = r
	c.mu.Unlock()
	if c.log != nil {
		c.log.Infow("replica registered", "id", r.ID, "addr", conn.RemoteAddr())
	}
	return r
}

// RemoveReplica unregisters a replica, e.g. on connection close.
func (c *Coordinator) RemoveReplica(id string) {
	c.mu.Lock()
	delete(c.replicas, id)
	c.mu.Unlock()
}

// Count returns the number of currently registered replicas.
func (c *Coordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.replicas)
}

// Propagate broadcasts a write command, encoded as a RESP array, to every
// registered replica and increments the write counter WAIT relies on.
func (c *Coordinator) Propagate(args []string) error {
	atomic.AddInt64(&c.numWriteOps, 1)
	payload := protocol.EncodeCommandArray(args)

	c.mu.RLock()
	targets := make([]*Replica, 0, len(c.replicas))
	for _, r := range c.replicas {
		targets = append(targets, r)
	}
	c.mu.RUnlock()

	var errs *multierror.Error
	for _, r := range targets {
		if err := r.send(payload); err != nil {
			errs = multierror.Append(errs, err)
			c.RemoveReplica(r.ID)
		}
	}
	return errs.ErrorOrNil()
}

// GetAck records a REPLCONF ACK from a replica during the current WAIT
// cycle. Each replica counts at most once per cycle.
func (c *Coordinator) GetAck(replicaID string) {
	c.mu.Lock()
	r, ok := c.replicas[replicaID]
	c.mu.Unlock()
	if !ok || r.ackedThisWait {
		return
	}
	r.mu.Lock()
	r.ackedThisWait = true
	r.mu.Unlock()
	atomic.AddInt64(&c.numReplicasAck, 1)
}

// Wait implements the WAIT command: broadcast REPLCONF GETACK *, then
// block up to timeout for n replicas (or all registered replicas,
// whichever is fewer) to acknowledge, and report how many did.
func (c *Coordinator) Wait(n int, timeout time.Duration) int {
	if n == 0 {
		return 0
	}
	if atomic.LoadInt64(&c.numWriteOps) == 0 {
		return c.Count()
	}

	c.mu.Lock()
	atomic.StoreInt64(&c.numReplicasAck, 0)
	for _, r := range c.replicas {
		r.ackedThisWait = false
	}
	c.mu.Unlock()

	c.Propagate([]string{"REPLCONF", "GETACK", "*"})

	goal := n
	if replicas := c.Count(); replicas < goal {
		goal = replicas
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if int(atomic.LoadInt64(&c.numReplicasAck)) >= goal {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	acked := int(atomic.LoadInt64(&c.numReplicasAck))
	if acked > c.Count() {
		acked = c.Count()
	}
	return acked
}

// Shutdown closes every registered replica connection, aggregating any
// close errors.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs *multierror.Error
	for id, r := range c.replicas {
		if err := r.Conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		delete(c.replicas, id)
	}
	return errs.ErrorOrNil()
}
