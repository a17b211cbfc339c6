package transport

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPTransport is the production Transport over a single bound UDP
// socket plus per-query ephemeral sockets.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewUDPTransport binds a UDP socket on listenAddr (for example
// ":6881"). A bind failure is returned to the caller; the node treats
// it as fatal.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp4", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	logrus.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"address":  conn.LocalAddr().String(),
	}).Info("UDP transport bound")

	return &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Send writes one datagram to addr from the bound socket.
func (t *UDPTransport) Send(data []byte, addr net.Addr) error {
	_, err := t.conn.WriteTo(data, addr)
	return err
}

// Run reads datagrams from the bound socket and hands each to handler
// in arrival order. A reply triggered by a datagram is sent before the
// next datagram is read, so handler-side state needs no extra
// serialization. Run blocks until Close is called.
func (t *UDPTransport) Run(handler DatagramHandler) {
	buffer := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		// A finite deadline keeps the loop responsive to Close.
		_ = t.conn.SetReadDeadline(time.Now().Add(time.Second))

		n, addr, err := t.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if t.ctx.Err() != nil {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"error":    err.Error(),
			}).Warn("Datagram read failed")
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		handler(data, addr)
	}
}

// Query performs one synchronous request/response exchange. It sends
// data to addr from a fresh ephemeral socket and waits up to timeout
// for a single reply. The socket is released on every exit path.
func (t *UDPTransport) Query(data []byte, addr net.Addr, timeout time.Duration) ([]byte, error) {
	conn, err := net.Dial("udp4", addr.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buffer := make([]byte, MaxDatagramSize)
	n, err := conn.Read(buffer)
	if err != nil {
		return nil, err
	}

	reply := make([]byte, n)
	copy(reply, buffer[:n])
	return reply, nil
}

// LocalAddr returns the bound listen address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// Close shuts down the transport and unblocks Run.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}
