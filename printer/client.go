package printer

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/john/flashforge/ffp"
)

const dialTimeout = 5 * time.Second

// Client is the device facade for one FlashForge printer. Every method issues
// exactly one command; calls are serialized so the connection never sees more
// than one exchange in flight.
type Client struct {
	addr string

	mu     sync.Mutex
	conn   *ffp.Conn
	logger *log.Logger
	dial   func(addr string) (*ffp.Conn, error)
}

// NewClient creates a client for the printer at addr (host:port). The
// connection is opened lazily by the first command or by Connect.
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		dial: func(addr string) (*ffp.Conn, error) {
			return ffp.Dial(addr, dialTimeout)
		},
	}
}

// NewClientConn creates a client over an existing connection.
func NewClientConn(addr string, conn *ffp.Conn) *Client {
	c := NewClient(addr)
	c.conn = conn
	return c
}

// SetLogger enables protocol tracing on current and future connections.
func (c *Client) SetLogger(l *log.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
	if c.conn != nil {
		c.conn.SetLogger(l)
	}
}

// Addr returns the printer address.
func (c *Client) Addr() string {
	return c.addr
}

// Connect opens the TCP connection, replacing any existing one.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return c.connectLocked()
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// Connected returns true if a usable connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.Broken()
}

func (c *Client) connectLocked() error {
	conn, err := c.dial(c.addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	conn.SetLogger(c.logger)
	c.conn = conn
	log.Printf("Connected to printer at %s", c.addr)
	return nil
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// execute runs one raw exchange. A connection that breaks is dropped so the
// next call dials a fresh one.
func (c *Client) execute(command, args string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return nil, err
		}
	}

	reply, err := c.conn.ExecuteRaw(command, args)
	if c.conn.Broken() {
		log.Printf("Printer connection to %s lost: %v", c.addr, err)
		c.closeLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return reply, nil
}

// run issues command with args and hands the reply to post.
func run[T any](c *Client, command, args string, post func([]byte) (T, error)) (T, error) {
	reply, err := c.execute(command, args)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := post(reply)
	if err != nil {
		return v, fmt.Errorf("%s: %w", command, err)
	}
	return v, nil
}

func ignore([]byte) (struct{}, error) {
	return struct{}{}, nil
}

func expectPrefix(prefix string) func([]byte) (struct{}, error) {
	return func(reply []byte) (struct{}, error) {
		s, err := ffp.DecodeText(reply)
		if err != nil {
			return struct{}{}, err
		}
		if !strings.HasPrefix(s, prefix) {
			return struct{}{}, &ffp.ProtocolError{Msg: "want reply starting with " + prefix, Raw: reply}
		}
		return struct{}{}, nil
	}
}

func textParser[T any](parse func(string) (T, error)) func([]byte) (T, error) {
	return func(reply []byte) (T, error) {
		s, err := ffp.DecodeText(reply)
		if err != nil {
			var zero T
			return zero, err
		}
		return parse(s)
	}
}

// Info returns the M115 machine information text.
func (c *Client) Info() (string, error) {
	return run(c, ffp.CmdInfo, "", textParser(func(s string) (string, error) {
		return strings.TrimSpace(s), nil
	}))
}

// Temperatures returns the nozzle and bed readings.
func (c *Client) Temperatures() (ffp.Temperatures, error) {
	return run(c, ffp.CmdTemperature, "", textParser(ffp.ParseTemperatures))
}

// Status returns the machine status.
func (c *Client) Status() (ffp.Status, error) {
	return run(c, ffp.CmdStatus, "", textParser(ffp.ParseStatus))
}

// Progress returns the SD print progress.
func (c *Client) Progress() (ffp.Progress, error) {
	return run(c, ffp.CmdProgress, "", textParser(ffp.ParseProgress))
}

// Files lists the files in the printer's internal storage.
func (c *Client) Files() ([]string, error) {
	return run(c, ffp.CmdListFiles, "", func(reply []byte) ([]string, error) {
		v, err := ffp.Decode(bytes.NewReader(reply))
		if err != nil {
			return nil, err
		}
		return ffp.Strings(v)
	})
}

// Home homes all axes.
func (c *Client) Home() error {
	_, err := run(c, ffp.CmdHome, "", ignore)
	return err
}

// SetLED sets the chamber LED color.
func (c *Client) SetLED(r, g, b uint8) error {
	_, err := run(c, ffp.CmdLED, ffp.LEDArgs(r, g, b), ignore)
	return err
}

// LEDOn switches the chamber LED to white.
func (c *Client) LEDOn() error {
	return c.SetLED(255, 255, 255)
}

// LEDOff switches the chamber LED off.
func (c *Client) LEDOff() error {
	return c.SetLED(0, 0, 0)
}

// Login takes control of the printer.
func (c *Client) Login() error {
	_, err := run(c, ffp.CmdLogin, "S1", expectPrefix("Control Success"))
	return err
}

// Logout releases control of the printer.
func (c *Client) Logout() error {
	_, err := run(c, ffp.CmdLogout, "", expectPrefix("Control Release"))
	return err
}

// Rename sets the machine name. The name is validated before anything is sent.
func (c *Client) Rename(name string) error {
	if err := ffp.ValidateName(name); err != nil {
		return err
	}
	_, err := run(c, ffp.CmdRename, name, ignore)
	return err
}

// IsTransportError reports whether err came from a broken connection.
func IsTransportError(err error) bool {
	var te *ffp.TransportError
	return errors.As(err, &te)
}
