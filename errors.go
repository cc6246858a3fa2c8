package journald

import "fmt"

// TransportError reports a non-success status from the journal submission
// call. Errno follows the positive errno convention; sd_journal_sendv-style
// negative codes are negated before being stored here. The core performs at
// most one submission attempt per record, so a TransportError means the
// record was not delivered.
type TransportError struct {
	Errno int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("journal send returned errno %d", e.Errno)
}

// SerializationError reports that an attribute source failed while its pairs
// were being rendered. Assembly of the record is abandoned; no partial field
// list is ever submitted.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("unable to serialize log attrs: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}
