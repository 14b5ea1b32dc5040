package teamspeak

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	closeTimeout = 5 * time.Second
)

var ErrCloseTimeout = errors.New("serverquery reader did not stop in time")

// Client owns one ServerQuery connection and feeds every inbound line to a
// Machine on its own goroutine. It never reconnects.
type Client struct {
	conn      net.Conn
	machine   *Machine
	keepalive time.Duration
	onClosed  func(error)

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	l zerolog.Logger
}

// Dial connects to addr and starts the reader. onClosed is called once if
// the connection ends for any reason other than Close or ctx cancellation.
func Dial(ctx context.Context, addr string, keepalive time.Duration, machine *Machine, onClosed func(error)) (*Client, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial serverquery %s: %w", addr, err)
	}

	return start(ctx, conn, keepalive, machine, onClosed), nil
}

func start(ctx context.Context, conn net.Conn, keepalive time.Duration, machine *Machine, onClosed func(error)) *Client {
	c := &Client{
		conn:      conn,
		machine:   machine,
		keepalive: keepalive,
		onClosed:  onClosed,
		done:      make(chan struct{}),
		l:         log.With().Str("adapter", "teamspeak").Str("remote", conn.RemoteAddr().String()).Logger(),
	}

	go c.run(ctx)

	return c
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	stop := context.AfterFunc(ctx, func() {
		c.closing.Store(true)
		c.closeConn()
	})
	defer stop()

	reader := bufio.NewReader(c.conn)
	var pending string

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.keepalive)); err != nil {
			c.finish(err)
			return
		}

		chunk, err := reader.ReadString('\n')
		pending += chunk

		if err == nil {
			c.l.Trace().Str("line", pending).Msg("received")
			for _, cmd := range c.machine.Feed(pending) {
				if err := c.write(cmd); err != nil {
					c.finish(err)
					return
				}
			}
			pending = ""
			continue
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if err := c.keepaliveTick(); err != nil {
				c.finish(err)
				return
			}
			continue
		}

		c.finish(err)
		return
	}
}

// keepaliveTick probes an idle session. During the handshake the probe's
// status line would be mistaken for a command acknowledgement, so it is
// only sent once subscribed.
func (c *Client) keepaliveTick() error {
	if c.machine.State() != Subscribed {
		c.l.Debug().Stringer("state", c.machine.State()).Msg("idle during handshake")
		return nil
	}

	return c.write(keepaliveCommand)
}

func (c *Client) write(cmd string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	c.l.Trace().Str("command", cmd).Msg("sending")
	_, err := fmt.Fprintf(c.conn, "%s\r\n", cmd)
	return err
}

func (c *Client) finish(err error) {
	c.closeConn()

	if c.closing.Load() {
		c.l.Debug().Msg("serverquery connection closed")
		return
	}

	c.l.Error().Err(err).Stringer("state", c.machine.State()).Msg("serverquery connection lost")
	if c.onClosed != nil {
		c.onClosed(err)
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil {
			c.l.Debug().Err(err).Msg("failed to close connection")
		}
	})
}

// Close stops the reader and waits a bounded time for it to exit.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.closeConn()

	select {
	case <-c.done:
		return nil
	case <-time.After(closeTimeout):
		return ErrCloseTimeout
	}
}

// Done is closed once the reader goroutine has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
