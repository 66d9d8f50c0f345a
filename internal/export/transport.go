package export

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/obslog"
)

// Transport is the collector connection an Exporter writes framed IPFIX
// messages to, per spec.md section 4.5.5's two modes. Write returns an
// error wrapping ErrTransportBroken (reconnect needed) or
// ErrTransportRetryable (the write may be repeated). The Exporter repeats
// a retryable write with the unwritten rest of the message; any other
// write error is returned to the Exporter's caller. The Exporter does not
// reconnect by itself and does not keep the failed message for replay.
type Transport interface {
	Write(p []byte) (int, error)
	Close() error
}

// Backoff implements the exponential reconnect backoff of spec.md
// section 4.5.5: starts at min, doubles on each call to Next, capped at
// max.
type Backoff struct {
	min, max, cur time.Duration
}

// NewBackoff builds a Backoff bounded to [min, max].
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{min: min, max: max}
}

// Next returns the delay to wait before the next reconnect attempt and
// advances the backoff state.
func (b *Backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.min
	} else {
		b.cur *= 2
		if b.cur > b.max {
			b.cur = b.max
		}
	}
	return b.cur
}

// Reset returns the backoff to its initial state, called after a
// successful (re)connection.
func (b *Backoff) Reset() { b.cur = 0 }

const maxConnectAttempts = 5

// TCPTransport is the reliable-stream mode of spec.md section 4.5.5: a
// socket written under a bounded write deadline that stands in for the
// original's non-blocking-socket-plus-poll loop -- a deadline timeout is
// this implementation's EAGAIN, reported as ErrTransportRetryable so the
// caller loops with the buffer intact; anything else is ErrTransportBroken.
type TCPTransport struct {
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	conn         net.Conn
	backoff      *Backoff
}

// NewTCPTransport builds a TCP transport to host:port, not yet connected.
func NewTCPTransport(host string, port int) *TCPTransport {
	return &TCPTransport{
		addr:         net.JoinHostPort(host, fmt.Sprint(port)),
		dialTimeout:  2 * time.Second,
		writeTimeout: 200 * time.Millisecond,
		backoff:      NewBackoff(100*time.Millisecond, 30*time.Second),
	}
}

// Connect dials the collector with bounded retry, per spec.md section
// 4.5.5: "connect with bounded retry (poll for writability up to N
// attempts)".
func (t *TCPTransport) Connect() error {
	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
		if err == nil {
			t.conn = conn
			t.backoff.Reset()
			return nil
		}
		lastErr = err
		time.Sleep(t.backoff.Next())
	}
	return fmt.Errorf("%w: %v", ErrTransportBroken, lastErr)
}

// Write writes p to the collector, bounding the blocking time of a single
// write with a deadline; a deadline expiry is reported as retryable
// (caller holds the buffer, no data loss), any other error as broken.
func (t *TCPTransport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("%w: not connected", ErrTransportBroken)
	}
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	n, err := t.conn.Write(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		TransportErrors.WithLabelValues("retryable").Inc()
		return n, fmt.Errorf("%w: %v", ErrTransportRetryable, err)
	}
	TransportErrors.WithLabelValues("broken").Inc()
	return n, fmt.Errorf("%w: %v", ErrTransportBroken, err)
}

// Reconnect closes the current connection (if any) and re-dials,
// incrementing TransportReconnects. Callers must mark all cached
// templates unsent and reset the message buffer's sequence number after
// a successful Reconnect (spec.md section 4.5.5).
func (t *TCPTransport) Reconnect() error {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	TransportReconnects.Inc()
	sessionID := obslog.NewSessionID()
	if err := t.Connect(); err != nil {
		obslog.Log.Error(err, "collector reconnect failed", "addr", t.addr, "session", sessionID)
		return err
	}
	obslog.Log.Info("collector reconnected", "addr", t.addr, "session", sessionID)
	return nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// UDPTransport is the unreliable-datagram mode: no reconnection, no
// retransmission; every write failure is a drop (spec.md section 4.5.5).
type UDPTransport struct {
	conn net.Conn
}

// NewUDPTransport dials a connected UDP socket to host:port.
func NewUDPTransport(host string, port int) (*UDPTransport, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportBroken, err)
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Write(p []byte) (int, error) {
	n, err := t.conn.Write(p)
	if err != nil {
		TransportErrors.WithLabelValues("datagram").Inc()
		RecordsDropped.WithLabelValues("transport").Inc()
		return n, fmt.Errorf("%w: %v", ErrTransportBroken, err)
	}
	return n, nil
}

func (t *UDPTransport) Close() error { return t.conn.Close() }
