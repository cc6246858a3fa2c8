package journald

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bitdabbler/backoff"
	"github.com/vmihailenco/msgpack/v5"
)

type relayWorker struct {
	*RelayOptions
	id     int
	conn   net.Conn
	addr   string
	wg     *sync.WaitGroup
	sendCh chan *Encoder
}

// Relay is a Sink that forwards assembled field lists to a remote
// Fluent-compatible collector instead of the local journal, for hosts that
// run without journald or that ship logs off-box. Each record is re-encoded
// as a msgpack Message-mode event `[tag, time, {FIELD: value, ...}]` with a
// coarse epoch timestamp. If using multiple concurrent workers, the Relay
// could be considered a client pool, as each worker maintains an independent
// connection to the collector.
type Relay struct {
	opts    *RelayOptions
	host    string
	workers []*relayWorker
	wg      *sync.WaitGroup
	sendCh  chan *Encoder
}

// NewRelay creates a new Relay and connects to the collector immediately,
// returning an error if it is unable to establish the connection.
func NewRelay(host string, opts *RelayOptions) (*Relay, error) {
	return NewRelayContext(context.Background(), host, opts)
}

// NewRelayContext creates a new Relay and connects to the collector
// immediately, returning an error if it is unable to establish the initial
// connections. The Context can be used to cancel the connect phase, or to set
// a global deadline for connecting.
func NewRelayContext(ctx context.Context, host string, opts *RelayOptions) (*Relay, error) {

	if opts == nil {
		opts = DefaultRelayOptions()
	} else {
		opts.resolve()
	}

	r, err := newRelay(host, opts)
	if err != nil {
		return nil, err
	}

	if opts.SkipEagerDial {
		return r, nil
	}

	// eagerly establish collector connections from each worker
	for i := 0; i < opts.Concurrency; i++ {
		err = errors.Join(err, r.workers[i].tryConnect(ctx, opts.MaxEagerDialTries))
		if err != nil {
			// will drop the Relay, so eagerly close open conns
			for j := 0; j < i; j++ {
				r.workers[j].conn.Close()
			}
			return nil, err
		}
	}

	return r, nil
}

func newRelay(host string, opts *RelayOptions) (*Relay, error) {

	if len(host) == 0 {
		return nil, errors.New("valid host required")
	}

	r := &Relay{
		opts:    opts,
		host:    host,
		workers: make([]*relayWorker, opts.Concurrency),
		wg:      &sync.WaitGroup{},
		sendCh:  make(chan *Encoder, opts.QueueDepth),
	}

	r.debug("starting Relay with the resolved RelayOptions: %+v", r.opts)

	// compose addr to format used by dialers
	addr := fmt.Sprintf("%s:%d", host, opts.Port)

	// add workers and track concurrency
	r.wg.Add(opts.Concurrency)
	for i := 0; i < r.opts.Concurrency; i++ {
		r.workers[i] = &relayWorker{
			RelayOptions: opts,
			id:           i + 1,
			addr:         addr,
			wg:           r.wg,
			sendCh:       r.sendCh,
		}
		go r.workers[i].run()
	}

	return r, nil
}

func (w *relayWorker) tryConnect(ctx context.Context, maxAttempts int) error {
	w.debug("attempting to connect to collector\n")

	b, err := backoff.New(
		backoff.WithInitialDelay(0),
		backoff.WithExponentialLimit(time.Second*20),
	)
	if err != nil {
		return err
	}

	i := 0
	for {
		i++
		err = w.connect(ctx)
		if err == nil {
			w.debug("successfully connected to collector\n")
			return nil
		}

		w.debug("failed to connect to collector on attempt %d: %v\n", i, err)

		if maxAttempts > 0 && i > maxAttempts {
			break
		}

		b.Sleep()
	}

	return fmt.Errorf("failed to connect to collector; maxAttempts reached: %d: %w", maxAttempts, err)
}

func (w *relayWorker) connect(ctx context.Context) error {

	var d net.Dialer
	ctx, cancel := context.WithTimeout(ctx, w.DialTimeout)
	defer cancel()

	w.debug("dialing collector at %s over %s\n", w.addr, w.Network)

	switch w.Network {
	case "tcp":
		conn, err := d.DialContext(ctx, "tcp", w.addr)
		if err != nil {
			return fmt.Errorf("failed to dial collector: addr: %s: network: %s: %w", w.addr, w.Network, err)
		}
		w.conn = conn

	case "tls":
		tlsDialer := tls.Dialer{
			NetDialer: &d,
			Config:    &tls.Config{InsecureSkipVerify: w.InsecureSkipVerify},
		}
		conn, err := tlsDialer.DialContext(ctx, "tcp", w.addr)
		if err != nil {
			return fmt.Errorf("failed to dial collector at %s over protocol %s: %w", w.addr, w.Network, err)
		}
		w.conn = conn
	case "udp":
		conn, err := d.DialContext(ctx, "udp", w.addr)
		if err != nil {
			return fmt.Errorf("failed to dial collector at %s over protocol %s: %w", w.addr, w.Network, err)
		}
		w.conn = conn
	default:
		return fmt.Errorf("unsupported relay transport protocol: %s", w.Network)
	}

	return nil
}

func (w *relayWorker) run() {

	// loop until the fan-in sendCh closes
	for enc := range w.sendCh {

		payload, err := relayPayload(w.Tag, enc)
		if err != nil {
			// a field list that doesn't parse never becomes consistent;
			// report and drop rather than wedge the worker
			w.reportError("failed to re-encode journal entry: %v\n", err)
			enc.Free()
			continue
		}

	reconnectloop:
		for {
			// nil when (a) using lazy conns, (b) after broken pipe tear down
			if w.conn == nil {
				w.debug("reconnectloop: not connected to collector\n")

				// ignoring this error because with 0 (infinite) retries, this
				// won't return until the conn is established and err == nil
				w.tryConnect(context.Background(), 0)
			}

			// write to the collector; retry if recoverable
			for i := 0; i < w.MaxWriteTries; i++ {
				if w.WriteTimeout > 0 {
					w.conn.SetWriteDeadline(time.Now().Add(w.WriteTimeout))
				}

				_, err := w.conn.Write(payload)
				if err == nil {
					break reconnectloop
				}

				// only consider timeouts potentially recoverable
				if ne, ok := err.(net.Error); !(ok && ne.Timeout()) {
					w.reportError("failed to Write message: unrecoverable error: %v\n", err)
					break
				}

				w.debug("failed to Write message: attempt %d: recoverable error: %v\n", i, err)
			}

			// either non-recoverable error or we exhausted maxWriteTries
			w.debug("broken pipe detected; tearing down connection")
			err := w.conn.Close()
			if err != nil {
				w.reportError("error closing broken connection: %v", err)
			}
			w.conn = nil
		}

		// successfully wrote the bytes out to the collector
		enc.Free()
	}

	w.debug("closing net.Conn and returning from worker goroutine")

	// if using lazy connections and the channel is closed before any write
	// requests are pushed into it, then the conn could still be nil
	if w.conn != nil {
		w.conn.Close()
	}

	w.wg.Done()
}

// relayPayload re-encodes one finished field list as a Fluent Message-mode
// event. Field order is not preserved across the map re-encoding; collectors
// that need ordering consume the journal directly.
func relayPayload(tag string, enc *Encoder) ([]byte, error) {
	fields, err := enc.Fields()
	if err != nil {
		return nil, fmt.Errorf("failed to decode field list: %w", err)
	}

	when := enc.Time()
	if when.IsZero() {
		when = time.Now()
	}

	buf := new(bytes.Buffer)
	me := msgpack.NewEncoder(buf)

	err = errors.Join(
		me.EncodeArrayLen(3),
		me.EncodeString(tag),
		me.EncodeInt64(when.Unix()),
		me.EncodeMapLen(len(fields)),
	)
	for _, f := range fields {
		err = errors.Join(err, me.EncodeString(f.Key), me.EncodeString(f.Value))
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Send places the field list Encoder into the write queue.
//
// This operation is sync/blocking when:
//   - the QueueDepth is 0, or
//   - the queue is full and DropIfQueueFull is false
//
// This operation is async/non-blocking when:
//   - QueueDepth > 0, and
//   - the queue is not full, or DropIfQueueFull is true
//
// Wire-level failures surface through the internal logger; the workers own
// reconnection and retries.
func (r *Relay) Send(enc *Encoder) error {
	if r.opts.DropIfQueueFull {
		select {
		case r.sendCh <- enc:
		default:
			r.debug("full buffer: dropping write request: queue depth: %d", r.opts.QueueDepth)
		}
		return nil
	}

	// otherwise block if the queue is full
	r.sendCh <- enc
	return nil
}

// Shutdown is used to support graceful shutdown. It closes the write queue
// channel, so any further calls to Send will panic. Shutdown blocks until the
// write queue is fully drained and all worker goroutines have stopped, or the
// context expires, whichever occurs first.
func (r *Relay) Shutdown(ctx context.Context) error {
	close(r.sendCh)
	r.debug("message send queue closed; writing out previously enqueued messages")

	doneCh := make(chan error, 1)
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-doneCh:
		r.debug("message send queue successfully drained")
		return nil
	}
}

// internal logging helpers:
func (r *Relay) debug(format string, args ...any) {
	if !r.opts.Verbose {
		return
	}
	InternalLogger().Printf(format, args...)
}

func (w *relayWorker) debug(format string, args ...any) {
	if !w.Verbose {
		return
	}
	args = append([]any{w.id}, args...)
	InternalLogger().Printf("relay worker %d: "+format, args...)
}

func (w *relayWorker) reportError(format string, args ...any) {
	args = append([]any{w.id}, args...)
	InternalLogger().Printf("relay worker %d: "+format, args...)
}
