package ffp

import (
	"errors"
	"fmt"
	"iter"
	"net"
	"os"
	"time"
	"unicode/utf8"
)

const (
	// ScanPort is the local UDP port the scanner binds.
	ScanPort = 18001

	// ScanGroup is the multicast group and port the probe is sent to.
	ScanGroup = "225.0.0.9:19000"

	nameFieldLen = 128
	maxReplyLen  = 512
)

// probe is sent verbatim. Its first four bytes look like an IPv4 address
// (192.168.1.12); whether printers read them is unknown, so they are kept as is.
var probe = []byte{0xc0, 0xa8, 0x01, 0x0c, 0x46, 0x51, 0x00, 0x00}

// ScanResult is one reply to the discovery probe.
type ScanResult struct {
	Addr net.IP
	Name string
}

func (r ScanResult) String() string {
	return fmt.Sprintf("%s\t%s", r.Addr, r.Name)
}

// Scanner yields discovery replies until no reply arrives within the timeout.
// It owns its socket and is not restartable.
type Scanner struct {
	conn    net.PacketConn
	timeout time.Duration
	done    bool
}

// Scan binds the discovery port and sends the probe. Each receive waits at
// most timeout.
func Scan(timeout time.Duration) (*Scanner, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", ScanPort))
	if err != nil {
		return nil, &TransportError{Op: "bind discovery port", Err: err}
	}

	group, err := net.ResolveUDPAddr("udp4", ScanGroup)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.WriteTo(probe, group); err != nil {
		conn.Close()
		return nil, &TransportError{Op: "send probe", Err: err}
	}

	return NewScanner(conn, timeout), nil
}

// NewScanner reads replies from a socket the caller has already probed from.
// The Scanner takes ownership of conn.
func NewScanner(conn net.PacketConn, timeout time.Duration) *Scanner {
	return &Scanner{conn: conn, timeout: timeout}
}

// Next receives one reply. It returns ErrScanDone once the scan has timed out;
// any other receive error is returned once and then ErrScanDone. A reply with
// an undecodable name yields a *DecodeError and the scan continues.
func (s *Scanner) Next() (ScanResult, error) {
	if s.done {
		return ScanResult{}, ErrScanDone
	}

	buf := make([]byte, maxReplyLen)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		s.done = true
		return ScanResult{}, &TransportError{Op: "set read deadline", Err: err}
	}
	n, peer, err := s.conn.ReadFrom(buf)
	if err != nil {
		s.done = true
		if isTimeout(err) {
			return ScanResult{}, ErrScanDone
		}
		return ScanResult{}, &TransportError{Op: "receive", Err: err}
	}

	name, err := ParseScanReply(buf[:n])
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Addr: peerIP(peer), Name: name}, nil
}

// Results returns the remaining replies as a sequence. Ranging over it drives
// Next; stopping early leaves the Scanner usable for further Next calls.
func (s *Scanner) Results() iter.Seq2[ScanResult, error] {
	return func(yield func(ScanResult, error) bool) {
		for {
			res, err := s.Next()
			if errors.Is(err, ErrScanDone) {
				return
			}
			if !yield(res, err) {
				return
			}
		}
	}
}

// Close releases the socket.
func (s *Scanner) Close() error {
	s.done = true
	return s.conn.Close()
}

// ParseScanReply extracts the machine name from a discovery reply: the first
// 128 bytes, up to the first zero byte.
func ParseScanReply(reply []byte) (string, error) {
	field := reply
	if len(field) > nameFieldLen {
		field = field[:nameFieldLen]
	}
	for i, b := range field {
		if b == 0 {
			field = field[:i]
			break
		}
	}
	if !utf8.Valid(field) {
		return "", &DecodeError{Msg: "machine name is not valid UTF-8", Raw: field}
	}
	return string(field), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case nil:
		return nil
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}
