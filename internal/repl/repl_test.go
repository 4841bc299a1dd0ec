package repl

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (net.Conn, net.Conn) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestWaitZeroRepliesImmediately(t *testing.T) {
	c := NewCoordinator(nil)
	require.Equal(t, 0, c.Wait(0, time.Second))
}

func TestWaitNoWritesReturnsReplicaCount(t *testing.T) {
	c := NewCoordinator(nil)
	server, _ := pipeConn(t)
	c.AddReplica(server)

	got := c.Wait(1, time.Second)
	require.Equal(t, 1, got)
}

func drainForever(conn net.Conn) {
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func TestWaitCountsAcks(t *testing.T) {
	c := NewCoordinator(nil)
	server, client := pipeConn(t)
	r := c.AddReplica(server)

	go drainForever(client)

	c.Propagate([]string{"SET", "k", "v"})

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.GetAck(r.ID)
	}()

	got := c.Wait(1, time.Second)
	require.Equal(t, 1, got)
}

func TestGetAckCountsOncePerCycle(t *testing.T) {
	c := NewCoordinator(nil)
	server, client := pipeConn(t)
	r := c.AddReplica(server)

	go drainForever(client)

	c.Propagate([]string{"SET", "k", "v"})
	c.GetAck(r.ID)
	c.GetAck(r.ID)
	require.Equal(t, int64(1), c.numReplicasAck)
}

func TestAddRemoveReplica(t *testing.T) {
	c := NewCoordinator(nil)
	server, _ := pipeConn(t)
	r := c.AddReplica(server)
	require.Equal(t, 1, c.Count())

	c.RemoveReplica(r.ID)
	require.Equal(t, 0, c.Count())
}
