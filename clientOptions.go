package journald

// ClientOptions are used to customize the journal socket Client.
//
// # Invalid options are coerced
//
// NB: The struct pointer options approach is used to be consistent with the
// options used for the Handler, which uses the struct pointer approach to be
// consistent with the `HandlerOptions` used by log/slog.
type ClientOptions struct {

	// SocketPath is the path of the journal's native protocol socket. The
	// default is "/run/systemd/journal/socket".
	SocketPath string

	// QueueDepth sets the maximum number of entries that can be buffered
	// before submission blocks. The default depth is 0, meaning Send submits
	// synchronously and returns the journal's status directly. With a
	// positive depth, a background worker drains the queue and submission
	// failures are reported through the internal logger instead.
	QueueDepth int

	// DropIfQueueFull controls how entries are handled when the write queue
	// is full. The default is to block the log handler until the queue can
	// receive the entry. With this option enabled, overflow entries get
	// dropped to the floor. This enables a tradeoff between log completeness
	// and system performance predictability. Only meaningful in queued mode.
	DropIfQueueFull bool

	// SkipSocketCheck disables the eager stat of the journal socket in the
	// constructor, for callers that expect the journal to appear later.
	SkipSocketCheck bool

	// Verbose controls whether debug logs are written to the internal logger.
	Verbose bool
}

const defaultSocketPath = "/run/systemd/journal/socket"

// DefaultClientOptions returns *ClientOptions with all default values.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		SocketPath: defaultSocketPath,
	}
}

// resolve ensures that all options have valid values.
func (o *ClientOptions) resolve() {

	if len(o.SocketPath) == 0 {
		o.SocketPath = defaultSocketPath
	}

	// negative depth means synchronous
	if o.QueueDepth < 0 {
		o.QueueDepth = 0
	}
}
