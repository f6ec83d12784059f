// Package connection keeps a single MQTT broker session alive.
//
// The Manager owns the session handle, the Disconnected/Connecting/Connected
// state machine and a traffic watchdog. It recovers from two kinds of
// failure:
//   - the transport reports the connection as lost
//   - the link goes silent: no message arrives on the control topic for
//     WatchdogThreshold consecutive health-check ticks, even though the
//     transport may still believe it is connected
//
// Recovery closes the current session, waits a fixed delay and builds a new
// session through the SessionFactory, retrying forever until the context
// passed to Run is cancelled. Every successful connect resubscribes to the
// inbound filter, since clean-session brokers keep no subscriptions.
//
// # Concurrency
//
// Run drives a single supervisor goroutine (ticks, reconnect requests, the
// retry loop) and a single dispatch goroutine. Messages arriving from the
// transport are queued and handed to the EventHandler one at a time, so
// processing is serialized and a full queue back-pressures the transport.
// Publish holds the session read lock for the duration of the call; session
// replacement takes the write lock.
//
// # Usage
//
//	mgr, err := connection.NewManager(connection.DefaultConfig(), factory)
//	if err != nil {
//	    return err
//	}
//	mgr.SetHandler(relay)
//	go mgr.Run(ctx)
package connection
