package ingest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/packets"
)

// ConnectionProvider returns a net.Conn ready for MQTT traffic. The
// returned conn must be safe for concurrent writes.
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection dials the broker over plain TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", hostname, port))
		if err != nil {
			return nil, fmt.Errorf("dialing broker: %w", err)
		}
		return conn, nil
	}
}

// TLSConnection dials the broker over TLS. A nil config uses the zero
// tls.Config, which verifies the broker's certificate against the host.
func TLSConnection(hostname string, port int, config *tls.Config) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", hostname, port))
		if err != nil {
			return nil, fmt.Errorf("dialing broker over TLS: %w", err)
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}
