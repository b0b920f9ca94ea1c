package swim

import (
	"fmt"
	"net"
	"time"
)

// udpTransport binds one UDP socket that serves both outbound SendTo
// calls and an inbound receive loop, with a JSON-over-UDP payload owned
// by codec.go rather than handling framing itself.
type udpTransport struct {
	conn    *net.UDPConn
	handler func(raw []byte, fromHost string, fromPort int)
	done    chan struct{}
}

// newUDPTransport binds (host, port) and starts the receive loop. A
// bind failure is wrapped in *BindError.
func newUDPTransport(host string, port int, handler func(raw []byte, fromHost string, fromPort int)) (*udpTransport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	t := &udpTransport{conn: conn, handler: handler, done: make(chan struct{})}
	go t.receiveLoop()
	return t, nil
}

// LocalPort reports the bound port, useful when Init was called with
// port 0 to let the kernel pick one.
func (t *udpTransport) LocalPort() int {
	return t.conn.LocalAddr().(*net.UDPAddr).Port
}

func (t *udpTransport) receiveLoop() {
	buf := make([]byte, 65536)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		t.handler(raw, from.IP.String(), from.Port)
	}
}

// SendTo implements sender over the bound socket.
func (t *udpTransport) SendTo(b []byte, host string, port int) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(b, addr)
	return err
}

// Close shuts the socket down; the in-flight receive loop exits on its
// next read-deadline timeout or read error.
func (t *udpTransport) Close() error {
	close(t.done)
	return t.conn.Close()
}
