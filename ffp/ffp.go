// Package ffp implements the FlashForge network protocol used by FlashForge
// 3D printers: a line-oriented command channel over TCP, the structured (TLV)
// reply format, the fixed-layout text replies and UDP multicast discovery.
package ffp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"time"
	"unicode/utf8"
)

const (
	// Port is the conventional TCP port of the command channel.
	Port = 8899

	// Sentinel terminates every reply payload.
	Sentinel = "ok\r\n"
)

// Conn is a command channel on one exclusively owned stream. The buffered
// reader and the raw writer are two views of the same stream; Close releases
// both. A Conn must not be used from more than one goroutine at a time.
type Conn struct {
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	logger *log.Logger
	err    error // sticky transport failure
}

// Dial connects to a printer. The timeout only bounds connection setup; command
// exchanges have no deadline.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &TransportError{Op: "dial " + addr, Err: err}
	}
	return New(conn), nil
}

// New wraps an already connected stream.
func New(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		r:   bufio.NewReader(rwc),
	}
}

// SetLogger enables frame tracing. Pass nil to disable it.
func (c *Conn) SetLogger(l *log.Logger) {
	c.logger = l
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rwc.Close()
}

// Broken reports whether a transport failure has made the Conn unusable.
func (c *Conn) Broken() bool {
	return c.err != nil
}

// Execute sends one command and returns its reply text with the sentinel
// stripped.
func (c *Conn) Execute(command, args string) (string, error) {
	payload, err := c.ExecuteRaw(command, args)
	if err != nil {
		return "", err
	}
	return DecodeText(payload)
}

// DecodeText converts a reply payload to text.
func DecodeText(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", &DecodeError{Msg: "reply is not valid UTF-8", Raw: payload}
	}
	return string(payload), nil
}

// ExecuteRaw performs the same exchange as Execute but returns the payload
// bytes unvalidated, for commands with binary replies.
func (c *Conn) ExecuteRaw(command, args string) ([]byte, error) {
	if c.err != nil {
		return nil, &TransportError{Op: command, Err: c.err}
	}

	if _, err := c.rwc.Write(EncodeRequest(command, args)); err != nil {
		return nil, c.fail("write "+command, err)
	}
	c.trace("> %s %s", command, args)

	// The acknowledgement must echo the command byte for byte. After a bad
	// echo the stream position is unknown, so the Conn is done either way.
	ack, err := c.r.ReadBytes('\n')
	if want := "CMD " + command + " Received.\r\n"; err != nil || string(ack) != want {
		c.err = ErrConnBroken
		return nil, &ProtocolError{
			Msg: fmt.Sprintf("unexpected acknowledgement for %s (want %q)", command, want),
			Raw: ack,
		}
	}

	var reply []byte
	for {
		line, err := c.r.ReadBytes('\n')
		reply = append(reply, line...)
		if err != nil {
			return nil, c.fail("read "+command+" reply", err)
		}
		if bytes.HasSuffix(reply, []byte(Sentinel)) {
			reply = reply[:len(reply)-len(Sentinel)]
			c.trace("< %s %d bytes", command, len(reply))
			return reply, nil
		}
	}
}

// EncodeRequest builds the request frame for a command.
func EncodeRequest(command, args string) []byte {
	buf := make([]byte, 0, len(command)+len(args)+4)
	buf = append(buf, '~')
	buf = append(buf, command...)
	if args != "" {
		buf = append(buf, ' ')
		buf = append(buf, args...)
	}
	return append(buf, '\r', '\n')
}

func (c *Conn) fail(op string, err error) error {
	c.err = ErrConnBroken
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &TransportError{Op: op, Err: err}
}

func (c *Conn) trace(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
