/*
Package journald provides a full journald logging stack in Go, including:

  - `journald.Handler` - assembles structured logs into journald field lists
    (implements `slog.Handler`)
  - `journald.Client` - submits each finished field list to the local journal
    socket as a single atomic datagram
  - `journald.Relay` - an alternative Sink that forwards field lists to a
    remote Fluent-compatible collector, for hosts without a local journal
  - `journald.Encoder` - provides a common field buffer, bridging the
    `Handler` and the Sinks

Journald requires field names to be uppercase alphanumeric, so logging keys
are capitalized and invalid characters are rewritten to underscores. Each log
record becomes an ordered list of fields, beginning with PRIORITY and MESSAGE,
followed by the CODE_FILE/CODE_LINE/CODE_MODULE/CODE_FUNCTION diagnostics,
then attributes inherited from ancestor loggers, then the record's own
attributes, in that order.

Examples of efficiency optimizations:

  - comprehensive use of resource pooling to minimize heap allocations
  - shared log attributes (`WithAttrs`) are rendered to journald wire framing
    only once, no matter how many times they are used by the Handler
  - records are serialized directly into the submission buffer, with no
    intermediate map[string]any representation
*/
package journald
