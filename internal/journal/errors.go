package journal

import "errors"

// ErrWriterFull is reported when a transition is dropped because the queue is full.
var ErrWriterFull = errors.New("journal: writer queue full")
