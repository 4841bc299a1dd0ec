package handler

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	got  [][]string
	done chan struct{}
}

func newRecordingDispatcher(n int) *recordingDispatcher {
	return &recordingDispatcher{done: make(chan struct{}, n)}
}

func (r *recordingDispatcher) Dispatch(c *Conn, args []string) {
	r.mu.Lock()
	r.got = append(r.got, args)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingDispatcher) calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.got))
	copy(out, r.got)
	return out
}

func TestServeDispatchesDecodedCommands(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	d := newRecordingDispatcher(2)
	h := New(nil, d, nil)
	go h.Serve(server)

	client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	client.Write([]byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"))

	for i := 0; i < 2; i++ {
		select {
		case <-d.done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	got := d.calls()
	require.Equal(t, []string{"PING"}, got[0])
	require.Equal(t, []string{"GET", "k"}, got[1])
}

func TestServeRunsOnCloseWhenPeerDisconnects(t *testing.T) {
	server, client := net.Pipe()

	closed := make(chan *Conn, 1)
	d := newRecordingDispatcher(0)
	h := New(nil, d, func(c *Conn) { closed <- c })
	go h.Serve(server)

	client.Close()

	select {
	case c := <-closed:
		require.NotEmpty(t, c.ID)
	case <-time.After(time.Second):
		t.Fatal("onClose never ran")
	}
}

func TestConnStartsWithFreshTransaction(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var got *Conn
	d := &captureConnDispatcher{conn: &got}
	h := New(nil, d, nil)
	go h.Serve(server)

	client.Write([]byte("*1\r\n$4\r\nPING\r\n"))
	time.Sleep(50 * time.Millisecond)

	require.NotNil(t, got)
	require.Equal(t, TxNormal, got.Tx.State)
}

type captureConnDispatcher struct {
	conn **Conn
}

func (c *captureConnDispatcher) Dispatch(conn *Conn, args []string) {
	*c.conn = conn
}
