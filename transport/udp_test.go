package transport

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndRunDeliverDatagrams(t *testing.T) {
	receiver, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	received := make(chan []byte, 1)
	go receiver.Run(func(data []byte, addr net.Addr) {
		received <- data
	})

	payload := []byte("d1:q4:ping1:y1:qe")
	require.NoError(t, sender.Send(payload, receiver.LocalAddr()))

	select {
	case data := <-received:
		assert.Equal(t, payload, data)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram was not delivered")
	}
}

func TestRunProcessesSerially(t *testing.T) {
	receiver, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	var mu sync.Mutex
	inHandler := false
	overlapped := false
	done := make(chan struct{}, 4)

	go receiver.Run(func(data []byte, addr net.Addr) {
		mu.Lock()
		if inHandler {
			overlapped = true
		}
		inHandler = true
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inHandler = false
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, sender.Send([]byte{byte(i)}, receiver.LocalAddr()))
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not run for every datagram")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlapped, "handlers must never overlap")
}

func TestQueryRoundTrip(t *testing.T) {
	responder, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer responder.Close()

	go responder.Run(func(data []byte, addr net.Addr) {
		_ = responder.Send(append([]byte("re:"), data...), addr)
	})

	client, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Query([]byte("hello"), responder.LocalAddr(), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("re:hello"), reply))
}

func TestQueryTimesOut(t *testing.T) {
	// A bound socket that never answers.
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	client, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	start := time.Now()
	_, err = client.Query([]byte("anyone there"), silent.LocalAddr(), 100*time.Millisecond)
	require.Error(t, err)

	netErr, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

func TestCloseUnblocksRun(t *testing.T) {
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		tr.Run(func(data []byte, addr net.Addr) {})
		close(finished)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tr.Close())

	select {
	case <-finished:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestBindFailure(t *testing.T) {
	first, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer first.Close()

	_, err = NewUDPTransport(first.LocalAddr().String())
	assert.Error(t, err, "second bind on the same port must fail")
}
