package journald

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Client submits finished field lists to the local journal's native socket.
// Each record is exactly one sendmsg on an autobound datagram socket, so a
// submission is atomic: the journal receives the whole field list or none of
// it. Entries too large for a datagram are handed over as a sealed memory fd
// instead, per the native protocol.
//
// The default mode is synchronous: Send performs the single blocking
// submission and returns its status. With QueueDepth > 0, Send enqueues and a
// background worker drains the queue, reporting failures through the internal
// logger.
type Client struct {
	opts   *ClientOptions
	conn   *net.UnixConn
	addr   *net.UnixAddr
	sendCh chan *Encoder
	wg     *sync.WaitGroup
}

// NewClient opens the journal socket and returns a ready Client. Unless
// SkipSocketCheck is set, it fails fast when the journal socket does not
// exist on this host.
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	} else {
		opts.resolve()
	}

	if !opts.SkipSocketCheck {
		if _, err := os.Stat(opts.SocketPath); err != nil {
			return nil, fmt.Errorf("journal socket unavailable: %w", err)
		}
	}

	// autobound local datagram socket; the journal identifies the sender by
	// its credentials, not its address
	autobind, err := net.ResolveUnixAddr("unixgram", "")
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUnixgram("unixgram", autobind)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal socket: %w", err)
	}

	c := &Client{
		opts: opts,
		conn: conn,
		addr: &net.UnixAddr{Name: opts.SocketPath, Net: "unixgram"},
	}

	c.debug("starting Client with the resolved ClientOptions: %+v", c.opts)

	if opts.QueueDepth > 0 {
		c.sendCh = make(chan *Encoder, opts.QueueDepth)
		c.wg = &sync.WaitGroup{}
		c.wg.Add(1)
		go c.run()
	}

	return c, nil
}

// run drains the write queue in queued mode. Submission failures cannot be
// returned to the log call site here, so they go to the internal logger.
func (c *Client) run() {
	for enc := range c.sendCh {
		if err := c.submit(enc); err != nil {
			c.reportError("failed to submit journal entry: %v", err)
		}
		enc.Free()
	}
	c.debug("closing journal socket and returning from worker goroutine")
	c.conn.Close()
	c.wg.Done()
}

// Send submits one finished field list.
//
// This operation is sync/blocking when QueueDepth is 0: the entry is
// submitted before Send returns, and a non-success status from the journal is
// returned as a *TransportError. The entry is submitted at most once; a
// failed submission is never retried.
//
// With QueueDepth > 0 the operation is async: Send enqueues and returns nil,
// blocking only when the queue is full and DropIfQueueFull is false.
func (c *Client) Send(enc *Encoder) error {
	if c.sendCh == nil {
		err := c.submit(enc)
		enc.Free()
		return err
	}

	if c.opts.DropIfQueueFull {
		select {
		case c.sendCh <- enc:
		default:
			c.debug("full buffer: dropping write request: queue depth: %d", c.opts.QueueDepth)
		}
		return nil
	}

	// otherwise block if the queue is full
	c.sendCh <- enc
	return nil
}

// submit performs the single atomic submission of the whole field list.
func (c *Client) submit(enc *Encoder) error {
	_, _, err := c.conn.WriteMsgUnix(enc.Bytes(), nil, c.addr)
	if err == nil {
		return nil
	}
	if !isSocketSpaceError(err) {
		return transportError(err)
	}

	// entry too large for a datagram: hand over a sealed memfd instead
	fd, memErr := sealedMemfd(enc.Bytes())
	if memErr != nil {
		return fmt.Errorf("journal entry exceeds datagram limits: %w", memErr)
	}
	defer closeFd(fd)

	if _, _, err = c.conn.WriteMsgUnix(nil, unix.UnixRights(fd), c.addr); err != nil {
		return transportError(err)
	}
	return nil
}

// Shutdown is used to support graceful shutdown. In queued mode it closes the
// write queue channel, so any further calls to Send will panic, and blocks
// until the queue is fully drained or the context expires, whichever occurs
// first.
func (c *Client) Shutdown(ctx context.Context) error {
	if c.sendCh == nil {
		return c.conn.Close()
	}

	close(c.sendCh)
	c.debug("send queue closed; writing out previously enqueued entries")

	doneCh := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
		c.debug("send queue successfully drained")
		return nil
	}
}

// isSocketSpaceError reports whether err means the datagram was too large for
// the socket, the case where the memfd handoff applies.
func isSocketSpaceError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.EMSGSIZE || errno == syscall.ENOBUFS
}

// transportError converts a socket error into the positive-errno
// TransportError convention, passing unexpected non-errno failures through
// wrapped.
func transportError(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return &TransportError{Errno: int(errno)}
	}
	return fmt.Errorf("journal send failed: %w", err)
}

// internal logging helpers:
func (c *Client) debug(format string, args ...any) {
	if !c.opts.Verbose {
		return
	}
	InternalLogger().Printf(format, args...)
}

func (c *Client) reportError(format string, args ...any) {
	InternalLogger().Printf(format, args...)
}
