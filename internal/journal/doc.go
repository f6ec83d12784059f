// Package journal keeps a history of broker connection state changes in SQLite.
//
// Every connection.Transition is stored as an Event in the connection_events
// table. The journal answers "when did the link drop, and why" after the
// fact; it never stores message payloads.
//
// Writes go through a Writer, which queues transitions and persists them on
// its own goroutine so the connection supervisor is never held up by disk I/O.
package journal
