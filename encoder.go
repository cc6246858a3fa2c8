package journald

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Field is one finished sanitized-key/rendered-value pair, as decoded back
// out of an Encoder's buffer.
type Field struct {
	Key   string
	Value string
}

// EncoderPool defines a shared *Encoder pool, used to minimize heap
// allocations. One Encoder is checked out per log record, consumed by a Sink,
// and returned via Free.
type EncoderPool struct {
	p sync.Pool
	*EncoderOptions
}

// NewEncoderPool creates a shared *Encoder pool.
func NewEncoderPool(opts *EncoderOptions) *EncoderPool {
	if opts == nil {
		opts = DefaultEncoderOptions()
	} else {
		opts.resolve()
	}

	ep := &EncoderPool{EncoderOptions: opts}

	ep.p = sync.Pool{
		New: func() any {
			enc := NewEncoder(opts.NewBufferCap)
			enc.p = ep
			return enc
		},
	}

	return ep
}

// Get returns an empty Encoder.
func (p *EncoderPool) Get() *Encoder {
	return p.p.Get().(*Encoder)
}

// Put resets an Encoder and returns it to the shared pool.
func (p *EncoderPool) Put(e *Encoder) {

	// drop if the buffer got too large
	if e.Buffer.Cap() > p.MaxBufferCap {
		return
	}

	// reset for the next usage
	e.Buffer.Reset()
	e.when = time.Time{}

	// add back to the sync.Pool
	p.p.Put(e)
}

// Encoder accumulates the ordered field list for exactly one log record,
// rendered directly in journald native wire framing into the underlying
// bytes.Buffer. Fields are append-only and insertion order is preserved; the
// finished buffer is submitted to the journal as one atomic datagram.
type Encoder struct {
	*bytes.Buffer
	p *EncoderPool

	// record timestamp, carried out-of-band for Sinks that need one (the
	// local journal stamps entries on receipt)
	when time.Time
}

// NewEncoder returns a newly allocated Encoder.
func NewEncoder(bufferCap int) *Encoder {
	return &Encoder{
		Buffer: bytes.NewBuffer(make([]byte, 0, bufferCap)),
	}
}

// AppendField appends one field without sanitizing the key.
//
// Note: if the key isn't a valid journald field name, journald will ignore
// the field.
//
// Values are framed per the journald native protocol: `KEY=value\n` for plain
// values, or `KEY\n` followed by a little-endian 64-bit length and the raw
// bytes when the value itself contains a newline.
func (e *Encoder) AppendField(key, value string) {
	if strings.IndexByte(value, '\n') < 0 {
		e.WriteString(key)
		e.WriteByte('=')
		e.WriteString(value)
		e.WriteByte('\n')
		return
	}

	e.WriteString(key)
	e.WriteByte('\n')
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], uint64(len(value)))
	e.Write(sz[:])
	e.WriteString(value)
	e.WriteByte('\n')
}

// SetTime records the timestamp of the record being encoded.
func (e *Encoder) SetTime(t time.Time) { e.when = t }

// Time returns the timestamp of the record being encoded.
func (e *Encoder) Time() time.Time { return e.when }

// Fields decodes the buffer back into its ordered field list. Used by Sinks
// that re-encode records for another wire format, rather than submitting the
// raw journald framing.
func (e *Encoder) Fields() ([]Field, error) {
	return parseFields(e.Bytes())
}

// Free returns the encoder to the shared pool after eagerly resetting it.
// Freeing an Encoder that was allocated directly (not from a pool) is a
// no-op.
func (e *Encoder) Free() {
	if e.p != nil {
		e.p.Put(e)
	}
}

// DeepCopy returns a deep copy of the Encoder.
func (e *Encoder) DeepCopy() *Encoder {
	var e2 *Encoder
	if e.p != nil {
		e2 = e.p.Get()
		if e.Cap() > e2.Cap() {
			e2.Grow(e.Cap())
		}
	} else {
		e2 = NewEncoder(e.Cap())
	}
	e2.Write(e.Bytes())
	e2.when = e.when
	return e2
}

// parseFields decodes journald native framing into ordered (key, value)
// pairs. It accepts exactly what AppendField produces.
func parseFields(b []byte) ([]Field, error) {
	var fields []Field
	for len(b) > 0 {
		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("truncated field near byte %d", len(b))
		}
		line := b[:nl]
		b = b[nl+1:]

		if eq := bytes.IndexByte(line, '='); eq >= 0 {
			fields = append(fields, Field{
				Key:   string(line[:eq]),
				Value: string(line[eq+1:]),
			})
			continue
		}

		// binary framing: KEY\n<le64 length>value\n
		if len(b) < 8 {
			return nil, fmt.Errorf("truncated length header for field %q", line)
		}
		sz := binary.LittleEndian.Uint64(b[:8])
		b = b[8:]
		if uint64(len(b)) < sz+1 {
			return nil, fmt.Errorf("truncated value for field %q", line)
		}
		if b[sz] != '\n' {
			return nil, fmt.Errorf("missing terminator for field %q", line)
		}
		fields = append(fields, Field{
			Key:   string(line),
			Value: string(b[:sz]),
		})
		b = b[sz+1:]
	}
	return fields, nil
}
