package journald

import "time"

// RelayOptions are used to customize the Relay.
//
// # Invalid options are coerced
//
// NB: The struct pointer options approach is used to be consistent with the
// options used for the Handler, which uses the struct pointer approach to be
// consistent with the `HandlerOptions` used by log/slog.
type RelayOptions struct {

	// Tag is the event tag attached to every forwarded record. The default is
	// "journald".
	Tag string

	// Network protocol used to communicate with the collector, one of
	// tcp/udp/tls. The default is "tcp".
	Network string

	// Port of the collector. The default is 24224.
	Port int

	// DialTimeout sets the timeout for dialing the collector. The default is
	// 30s.
	DialTimeout time.Duration

	// MaxEagerDialTries limits the maximum number of times workers will try
	// to establish an initial collector connection before the Relay is
	// returned from the constructor. This is not used if `SkipEagerDial` is
	// true, or for (re)connections that occur after the constructor returns.
	// If the value is < 0, the constructor will not return until connections
	// are successfully established. The default is 10.
	MaxEagerDialTries int

	// Concurrency controls the number of workers the Relay will spin up. Each
	// worker independently pulls entries from the write queue and forwards
	// them over its own connection. The default is 1.
	Concurrency int

	// QueueDepth sets the maximum number of entries that can be buffered
	// before forwarding blocks. If blocked and DropIfQueueFull is true, load
	// shedding will occur, with later entries discarded until buffer space
	// increases. The default depth is 0 (synchronous writes).
	QueueDepth int

	// WriteTimeout controls the timeout for each Write to the collector. If
	// WriteTimeout < 0, then no timeout will be set. The default is 10
	// seconds.
	WriteTimeout time.Duration

	// MaxWriteTries controls the number of times the net.Conn will try to
	// send an entry before inferring a broken pipe, tearing down the
	// connection, and establishing a new one. This must be > 0. The default
	// is 3.
	MaxWriteTries int

	// InsecureSkipVerify controls whether a worker verifies the collector's
	// certificate chain and host name when using TLS.
	InsecureSkipVerify bool

	// SkipEagerDial enables returning Relays that dial the collector lazily.
	SkipEagerDial bool

	// DropIfQueueFull controls how entries are handled when the write queue
	// is full. The default is to block the log handler until the queue
	// channel can receive the entry. With this option enabled, overflow
	// entries will get dropped to the floor.
	DropIfQueueFull bool

	// Verbose controls whether debug logs are written to the internal logger.
	Verbose bool
}

const (
	defaultTag            = "journald"
	defaultPort           = 24224
	defaultNetwork        = "tcp"
	defaultDialTimeout    = time.Second * 30
	defaultEagerDialTries = 10
	defaultConcurrency    = 1
	defaultWriteTimeout   = time.Second * 10
	defaultWriteTries     = 3
)

// DefaultRelayOptions returns *RelayOptions with all default values.
func DefaultRelayOptions() *RelayOptions {
	return &RelayOptions{
		Tag:               defaultTag,
		Port:              defaultPort,
		Network:           defaultNetwork,
		DialTimeout:       defaultDialTimeout,
		MaxEagerDialTries: defaultEagerDialTries,
		Concurrency:       defaultConcurrency,
		WriteTimeout:      defaultWriteTimeout,
		MaxWriteTries:     defaultWriteTries,
	}
}

// resolve ensures that all options have valid values.
func (o *RelayOptions) resolve() {

	if len(o.Tag) == 0 {
		o.Tag = defaultTag
	}

	// constrain to valid range
	if o.Port < 1024 || o.Port > 65535 {
		o.Port = defaultPort
	}

	// only [tcp|tls|udp]
	if o.Network != "tcp" && o.Network != "tls" && o.Network != "udp" {
		o.Network = defaultNetwork
	}

	// must be positive
	if o.DialTimeout < 1 {
		o.DialTimeout = defaultDialTimeout
	}

	// can be negative (infinity) or positive, but not 0
	if o.MaxEagerDialTries == 0 {
		o.MaxEagerDialTries = defaultEagerDialTries
	}

	// must have at least one worker
	if o.Concurrency < 1 {
		o.Concurrency = defaultConcurrency
	}

	// can be negative (infinity) or positive, but not 0
	if o.WriteTimeout == 0 {
		o.WriteTimeout = defaultWriteTimeout
	}

	// must be positive
	if o.MaxWriteTries < 1 {
		o.MaxWriteTries = defaultWriteTries
	}
}
