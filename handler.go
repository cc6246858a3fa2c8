package journald

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

type ccKey struct{}

// ContextKey is used to extract a log value from context.Context. The value
// must be a `slog.Attr`.
//
//		Example:
//	 	ctx := context.WithValue(ctx, journald.ContextKey,
//	 		slog.Group("req",
//	 			slog.String("method", r.Method),
//	 			slog.String("url", r.URL.String()),
//	 		)
//	 	)
//
// These attrs are added to the record's field list ahead of the inherited
// logger attrs.
var ContextKey *ccKey = &ccKey{}

// Sink interface defines the transport API the Handler submits to. A Sink
// must treat the Encoder as read-only for the duration of one Send call,
// perform a single atomic submission, and free the Encoder when done. The
// journal `Client` and the remote `Relay` both implement it.
//
// PRIORITY and MESSAGE are folded into the field list as its first two
// fields, so Send receives the complete record and nothing out-of-band.
type Sink interface {
	Send(*Encoder) error
	Shutdown(context.Context) error
}

// Handler is an adapter that assembles Go structured logs into journald field
// lists, without first serializing them to intermediate data structures, such
// as map[string]any.
//
//	// Example of basic usage
//	h, err := journald.NewHandler(nil)
//	if err != nil {
//	   log.Fatalln(err)
//	}
//
//	logger := slog.New(h)
//	slog.SetDefault(logger)
//
//	slog.Info("unrecognized user", "user_id", user_id)
//
// Each record becomes one ordered field list: PRIORITY and MESSAGE, the
// CODE_FILE/CODE_LINE/CODE_MODULE/CODE_FUNCTION diagnostics, attrs inherited
// from ancestor loggers, then the record's own attrs. Keys are sanitized to
// journald's field-name grammar; colliding keys are all emitted, in order,
// with shadowing left to the consumer.
type Handler struct {
	*HandlerOptions
	client  Sink
	logPool *EncoderPool

	// ancestor attrs, pre-rendered once per WithAttrs call
	preEnc *Encoder

	// sanitized group prefix applied to subsequent keys, e.g. "REQ_"
	prefix string

	// latched WithAttrs rendering failure, surfaced on the next Handle
	preErr error
}

// NewHandler returns a Handler submitting to the local journal socket through
// a Client with default options, using an EncoderPool with default options.
//
// For complete control over the transport and the encoding options, use the
// `NewHandlerCustom` constructor.
func NewHandler(opts *HandlerOptions) (*Handler, error) {
	c, err := NewClient(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create journald.Client: %w", err)
	}
	return NewHandlerCustom(c, NewEncoderPool(nil), opts), nil
}

// NewHandlerCustom creates a Handler that wraps a Sink and an EncoderPool
// that are fully customizable by the caller.
func NewHandlerCustom(client Sink, pool *EncoderPool, opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = DefaultHandlerOptions()
	} else {
		opts.resolve()
	}

	return &Handler{
		HandlerOptions: opts,
		client:         client,
		logPool:        pool,
		preEnc:         NewEncoder(512),
	}
}

// Shutdown flushes and stops the underlying Sink. You MUST NOT call any other
// logger methods after calling Shutdown.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.debug("shutting down the logging stack")
	return h.client.Shutdown(ctx)
}

// deepCopy creates a copy of the Handler that can be independently modified
// moving forward without impacting the parent handler it derives from; that
// requires a deep copy of the pre-rendered ancestor fields and their
// underlying bytes buffer.
func (h *Handler) deepCopy() *Handler {
	h2 := *h
	h2.preEnc = h.preEnc.DeepCopy()
	return &h2
}

func (h *Handler) debug(format string, args ...any) {
	if !h.Verbose {
		return
	}
	InternalLogger().Printf(format, args...)
}

// Enabled reports whether the handler handles records at the given level. The
// handler ignores records whose level is lower. It is called early, before
// any arguments are processed, to save effort if the log event should be
// discarded.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.Level.Level()
}

// Handle handles the Record. It will only be called when Enabled returns
// true. The Context argument is present solely to provide Handlers access to
// the context's values. Canceling the context does not affect record
// processing.
//
// Handle observes the standard handler rules:
//   - If r.Time is the zero time, ignore the time.
//   - If r.PC is zero, ignore it (the CODE_* fields are still emitted, with
//     empty values).
//   - Attr values are resolved.
//   - If an Attr's key and value are both the zero value, ignore the Attr.
//   - If a group's key is empty, inline the group's Attrs.
//   - If a group has no Attrs (even if it has a non-empty key), ignore it.
//
// If any attribute source fails while being rendered, Handle abandons the
// record and returns a *SerializationError; the Sink is never invoked with a
// partial field list. A non-success submission from the Sink is returned
// as-is (a *TransportError from the journal Client); the record is never
// retried here.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {

	// a WithAttrs source already failed; same contract as a record-time
	// source failure
	if h.preErr != nil {
		return &SerializationError{Cause: h.preErr}
	}

	// rule: ignore record time if zero
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	// get the buffer/encoder into which we directly render fields
	enc := h.logPool.Get()
	enc.SetTime(t)

	// the reserved fields lead, so consumers that special-case the first
	// occurrence of a name always see these first
	enc.AppendField("PRIORITY", levelToPriority(r.Level).String())
	enc.AppendField("MESSAGE", r.Message)

	// fixed diagnostics, always present even when r.PC is zero
	file, line, module, function := sourceInfo(r.PC)
	enc.AppendField("CODE_FILE", file)
	enc.AppendField("CODE_LINE", strconv.Itoa(line))
	enc.AppendField("CODE_MODULE", module)
	enc.AppendField("CODE_FUNCTION", function)

	// slog.Attrs passed in via the ctx land ahead of the inherited attrs
	if ctxAttr, ok := ctx.Value(ContextKey).(slog.Attr); ok {
		if err := h.appendAttr(enc, h.prefix, ctxAttr); err != nil {
			enc.Free()
			return &SerializationError{Cause: err}
		}
	}

	// ancestor attrs, pre-rendered at WithAttrs time, in source order
	enc.Write(h.preEnc.Bytes())

	// record attrs last; a failing source aborts the remaining sources
	var srcErr error
	r.Attrs(func(attr slog.Attr) bool {
		srcErr = h.appendAttr(enc, h.prefix, attr)
		return srcErr == nil
	})
	if srcErr != nil {
		enc.Free()
		return &SerializationError{Cause: srcErr}
	}

	return h.client.Send(enc)
}

// appendAttr renders one attr (or, for groups, its members) into enc with the
// given sanitized key prefix applied.
func (h *Handler) appendAttr(enc *Encoder, prefix string, attr slog.Attr) error {

	// rule: must first resolve, and then ignore if empty
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return nil
	}

	k, v := attr.Key, attr.Value

	// journald fields are flat, so groups become key prefixes
	if v.Kind() == slog.KindGroup {
		gAttrs := v.Group()

		// rule: ignore empty groups entirely
		if len(gAttrs) == 0 {
			return nil
		}

		// rule: inline the attrs if the group key is empty; a key that
		// sanitizes to nothing has nothing to qualify keys with either
		gPrefix := prefix
		if s := sanitizeKey(k); len(s) != 0 {
			gPrefix = prefix + s + "_"
		}

		for _, ga := range gAttrs {
			if err := h.appendAttr(enc, gPrefix, ga); err != nil {
				return err
			}
		}
		return nil
	}

	// rule: ignore non-group attrs with empty keys
	if len(k) == 0 {
		return nil
	}

	// a non-empty key may still sanitize to nothing; the field is emitted
	// regardless, and journald discards it
	key := prefix + sanitizeKey(k)

	switch vk := v.Kind(); vk {
	case slog.KindString:
		enc.AppendField(key, v.String())
	case slog.KindBool:
		enc.AppendField(key, strconv.FormatBool(v.Bool()))
	case slog.KindInt64:
		enc.AppendField(key, strconv.FormatInt(v.Int64(), 10))
	case slog.KindUint64:
		enc.AppendField(key, strconv.FormatUint(v.Uint64(), 10))
	case slog.KindFloat64:
		// shortest representation that parses back to the same value
		enc.AppendField(key, strconv.FormatFloat(v.Float64(), 'g', -1, 64))
	case slog.KindDuration:
		enc.AppendField(key, v.Duration().String())
	case slog.KindTime:
		enc.AppendField(key, v.Time().Format(h.TimeFormat))
	case slog.KindAny:
		return h.appendAny(enc, key, v.Any())
	case slog.KindLogValuer:
		return errors.New("Value.Resolve() invariant violation for key: " + k)
	default:
		return fmt.Errorf("unknown slog.Value.Kind: %d", vk)
	}
	return nil
}

// appendAny renders a KindAny value. Errors get the dedicated rendering
// below; a nil value is the explicit absent marker.
func (h *Handler) appendAny(enc *Encoder, key string, val any) error {
	switch v := val.(type) {
	case nil:
		enc.AppendField(key, "None")
	case error:
		h.appendError(enc, key, v)
	case encoding.TextMarshaler:
		txt, err := v.MarshalText()
		if err != nil {
			return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
		}
		enc.AppendField(key, string(txt))
	default:
		enc.AppendField(key, fmt.Sprint(v))
	}
	return nil
}

// appendError renders an error value. The primary field keeps the
// conventional single-line summary, where each wrapped cause is joined with
// ": ". The synthetic enrichment fields are opt-in via HandlerOptions and
// walk the cause chain via errors.Unwrap.
func (h *Handler) appendError(enc *Encoder, key string, err error) {
	enc.AppendField(key, err.Error())

	if h.EmitErrorSourceChain {
		depth := 0
		for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
			enc.AppendField("ERROR_SOURCE_"+strconv.Itoa(depth), cause.Error())
			depth++
		}
		enc.AppendField("ERROR_SOURCE_DEPTH", strconv.Itoa(depth))
	}

	if h.EmitErrno {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			enc.AppendField("ERRNO", strconv.Itoa(int(errno)))
		}
	}
}

// sourceInfo resolves the CODE_* diagnostics for a record's program counter.
// All four values are emitted even when pc is zero.
func sourceInfo(pc uintptr) (file string, line int, module, function string) {
	if pc == 0 {
		return
	}
	fs := runtime.CallersFrames([]uintptr{pc})
	f, _ := fs.Next()
	file = f.File
	line = f.Line
	module, function = splitFuncName(f.Function)
	return
}

// splitFuncName splits a runtime function name such as
// "github.com/acme/pkg.(*T).Method" into the package path and the bare
// function name.
func splitFuncName(fn string) (module, function string) {
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.IndexByte(fn[slash+1:], '.')
	if dot < 0 {
		return "", fn
	}
	dot += slash + 1
	return fn[:dot], fn[dot+1:]
}

// WithAttrs returns a new Handler whose attributes consist of both the
// receiver's attributes and the arguments. The attrs are rendered to wire
// framing once, here, no matter how many records the returned Handler
// processes. A rendering failure is latched and surfaced as a
// *SerializationError by the next Handle call, so a failed source never
// silently drops its fields.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {

	// rule: skip if no attrs
	if len(attrs) == 0 {
		return h
	}

	h2 := h.deepCopy()
	for _, attr := range attrs {
		if err := h2.appendAttr(h2.preEnc, h2.prefix, attr); err != nil {
			h2.preErr = errors.Join(h2.preErr, err)
		}
	}
	return h2
}

// WithGroup returns a new Handler that qualifies the keys of all subsequent
// attrs with the sanitized group name. Journald field lists are flat, so
// nesting becomes a key prefix:
//
//	logger.WithGroup("req").Info("done", "method", "GET")
//
// emits REQ_METHOD=GET. If the name is empty, or sanitizes to nothing,
// WithGroup returns the receiver and subsequent keys are unqualified.
func (h *Handler) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return h
	}
	s := sanitizeKey(name)
	if len(s) == 0 {
		return h
	}

	h2 := h.deepCopy()
	h2.prefix = h2.prefix + s + "_"
	return h2
}
