package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFilter is the inbound subscription filter covering the device-hub topic tree.
const DefaultFilter = "dh/#"

// Config holds the manager's timing and subscription settings.
type Config struct {
	// Filter is subscribed on every successful connect.
	Filter string

	// TickInterval is the period of the health check.
	TickInterval time.Duration

	// WatchdogThreshold is the number of consecutive ticks without observed
	// traffic after which a connected session is treated as dead.
	WatchdogThreshold int

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration

	// DispatchBuffer is the capacity of the inbound message queue.
	// Zero or negative selects the default of 64.
	DispatchBuffer int

	// Accept, when set, screens inbound topics on the transport goroutine.
	// Rejected messages are counted in Stats.Discarded and never queued,
	// so traffic the handler would ignore cannot fill the inbox.
	Accept func(topic string) bool
}

// DefaultConfig returns a Config with the watchdog defaults: a 1s tick,
// 30 silent ticks, 5s between reconnect attempts.
func DefaultConfig() Config {
	return Config{
		Filter:            DefaultFilter,
		TickInterval:      time.Second,
		WatchdogThreshold: 30,
		ReconnectDelay:    5 * time.Second,
		DispatchBuffer:    64,
	}
}

type inbound struct {
	topic   string
	payload []byte
}

// reconnectRequest is a pending Reconnect. gen is the session generation
// live when it was made; a request older than the current session is stale.
type reconnectRequest struct {
	gen   uint64
	cause error
}

// Manager owns the broker session and keeps it alive.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Manager struct {
	cfg        Config
	newSession SessionFactory

	// sessMu guards session and generation. Publish holds the read lock
	// for the whole call so a session is never replaced mid-publish.
	sessMu     sync.RWMutex
	session    Session
	generation uint64
	nextGen    atomic.Uint64

	state     atomic.Int32
	idleTicks atomic.Int64

	inbox       chan inbound
	reconnectCh chan reconnectRequest
	done        chan struct{}
	running     atomic.Bool
	stopOnce    sync.Once

	connects       atomic.Uint64
	losses         atomic.Uint64
	watchdogTrips  atomic.Uint64
	failedAttempts atomic.Uint64
	discarded      atomic.Uint64

	handler      EventHandler
	onTransition func(Transition)
	logger       Logger
	cbMu         sync.RWMutex
}

// NewManager creates a manager. Call Run to start it.
func NewManager(cfg Config, factory SessionFactory) (*Manager, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}

	defaults := DefaultConfig()
	if cfg.Filter == "" {
		cfg.Filter = defaults.Filter
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.WatchdogThreshold <= 0 {
		cfg.WatchdogThreshold = defaults.WatchdogThreshold
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = defaults.DispatchBuffer
	}

	return &Manager{
		cfg:         cfg,
		newSession:  factory,
		inbox:       make(chan inbound, cfg.DispatchBuffer),
		reconnectCh: make(chan reconnectRequest, 1),
		done:        make(chan struct{}),
		logger:      noopLogger{},
	}, nil
}

// SetHandler registers the single receiver of arrived messages and
// transport-reported losses. With no handler, losses trigger Reconnect
// directly and messages are discarded.
func (m *Manager) SetHandler(h EventHandler) {
	m.cbMu.Lock()
	m.handler = h
	m.cbMu.Unlock()
}

// SetOnTransition registers an observer called on every state change.
// It runs on the supervisor goroutine and must not block.
func (m *Manager) SetOnTransition(fn func(Transition)) {
	m.cbMu.Lock()
	m.onTransition = fn
	m.cbMu.Unlock()
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.cbMu.Lock()
	m.logger = logger
	m.cbMu.Unlock()
}

// Run connects and then supervises the session until ctx is cancelled.
// Connect failures are retried forever with the fixed ReconnectDelay.
// Run returns nil on shutdown; it may only be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.dispatchLoop()
	}()
	defer func() {
		m.shutdown(ctx.Err())
		wg.Wait()
	}()

	if err := m.connectLoop(ctx, true); err != nil {
		return nil
	}

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-m.reconnectCh:
			if gen := m.currentGeneration(); req.gen != gen {
				m.log().Debug("ignoring reconnect request for replaced session",
					"request_generation", req.gen, "generation", gen, "error", req.cause)
				continue
			}
			if err := m.recoverSession(ctx, req.cause); err != nil {
				return nil
			}

		case <-ticker.C:
			if cause := m.healthCheck(); cause != nil {
				if err := m.recoverSession(ctx, cause); err != nil {
					return nil
				}
			}
		}
	}
}

// Publish sends a message over the live session. When the session is not
// connected or the transport fails, the message is logged and dropped and
// the error is returned; the publish is never retried.
func (m *Manager) Publish(topic string, payload []byte, deliveryID uint16) error {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()

	if m.session == nil || m.State() != StateConnected {
		m.log().Warn("dropping message, not connected", "topic", topic, "delivery_id", deliveryID)
		return ErrNotConnected
	}

	if err := m.session.Publish(topic, payload, deliveryID); err != nil {
		m.log().Error("error publishing", "topic", topic, "delivery_id", deliveryID, "error", err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// ObserveTraffic resets the watchdog. Call it for every qualifying inbound message.
func (m *Manager) ObserveTraffic() {
	m.idleTicks.Store(0)
}

// Reconnect asks the supervisor to drop the current session and reconnect.
// It never blocks. Requests are merged while one is pending; the one made
// against the newest session wins. A request that outlives its session is
// discarded once a replacement is connected.
func (m *Manager) Reconnect(cause error) {
	if cause == nil {
		cause = ErrReconnectRequested
	}
	req := reconnectRequest{gen: m.currentGeneration(), cause: cause}
	for {
		select {
		case m.reconnectCh <- req:
			return
		case pending := <-m.reconnectCh:
			if pending.gen >= req.gen {
				req = pending
			}
		}
	}
}

// currentGeneration returns the generation of the live or last session.
func (m *Manager) currentGeneration() uint64 {
	m.sessMu.RLock()
	defer m.sessMu.RUnlock()
	return m.generation
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:            m.State(),
		Connects:         m.connects.Load(),
		ConnectionLosses: m.losses.Load(),
		WatchdogTrips:    m.watchdogTrips.Load(),
		FailedAttempts:   m.failedAttempts.Load(),
		Discarded:        m.discarded.Load(),
		IdleTicks:        m.idleTicks.Load(),
	}
}

// healthCheck runs once per tick and returns a loss cause when the session
// must be replaced.
func (m *Manager) healthCheck() error {
	ticks := m.idleTicks.Add(1)

	if m.State() != StateConnected {
		return nil
	}

	if ticks >= int64(m.cfg.WatchdogThreshold) {
		m.watchdogTrips.Add(1)
		return fmt.Errorf("%w: no traffic for %d ticks", ErrWatchdogTimeout, ticks)
	}

	m.sessMu.RLock()
	sess := m.session
	m.sessMu.RUnlock()

	if sess == nil || !sess.IsConnected() {
		return ErrTransportDisconnected
	}

	return nil
}

// recoverSession handles a lost connection: it logs the loss, closes the session
// and blocks in the retry loop until a new session is connected.
func (m *Manager) recoverSession(ctx context.Context, cause error) error {
	m.losses.Add(1)
	m.log().Error("connection lost", "error", cause)

	m.detach()
	m.transition(StateDisconnected, cause)

	return m.connectLoop(ctx, false)
}

// connectLoop retries connect until it succeeds or ctx is cancelled.
// When immediate is false the first attempt also waits ReconnectDelay.
func (m *Manager) connectLoop(ctx context.Context, immediate bool) error {
	for attempt := 1; ; attempt++ {
		if !immediate || attempt > 1 {
			if err := m.wait(ctx, m.cfg.ReconnectDelay); err != nil {
				return err
			}
		}

		err := m.connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.failedAttempts.Add(1)
		m.log().Error("can't restore connection",
			"attempt", attempt,
			"retry_in", m.cfg.ReconnectDelay,
			"error", err,
		)
	}
}

// connect builds a fresh session, connects it, installs it and subscribes.
func (m *Manager) connect(ctx context.Context) error {
	m.transition(StateConnecting, nil)

	gen := m.nextGen.Add(1)
	sess := m.newSession(func(err error) {
		m.sessionLost(gen, err)
	})

	if err := sess.Connect(ctx); err != nil {
		sess.Close()
		m.transition(StateDisconnected, err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.install(sess, gen)
	m.idleTicks.Store(0)
	m.transition(StateConnected, nil)

	if err := sess.Subscribe(m.cfg.Filter, m.deliver); err != nil {
		m.detach()
		m.transition(StateDisconnected, err)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	m.connects.Add(1)
	m.log().Info("connected", "filter", m.cfg.Filter, "generation", gen)
	return nil
}

// install makes sess the live session, closing any previous one.
func (m *Manager) install(sess Session, gen uint64) {
	m.sessMu.Lock()
	old := m.session
	m.session = sess
	m.generation = gen
	m.sessMu.Unlock()

	if old != nil {
		old.Close()
	}
}

// detach removes and closes the live session.
func (m *Manager) detach() {
	m.sessMu.Lock()
	old := m.session
	m.session = nil
	m.sessMu.Unlock()

	if old != nil {
		old.Close()
	}
}

// sessionLost is the transport's connection-lost callback for session gen.
func (m *Manager) sessionLost(gen uint64, err error) {
	m.sessMu.RLock()
	current := m.session != nil && m.generation == gen
	m.sessMu.RUnlock()

	if !current {
		m.log().Debug("ignoring loss from replaced session", "generation", gen, "error", err)
		return
	}

	if h := m.getHandler(); h != nil {
		h.ConnectionLost(err)
		return
	}
	m.Reconnect(err)
}

// deliver is the subscription callback. It runs on the transport's
// goroutine and blocks while the inbox is full. With ordered delivery paho
// reads nothing else from the socket meanwhile, PUBACKs included, so a
// sustained burst on accepted topics can push the dispatcher's QoS 1
// publishes past their timeout. Config.Accept keeps unwanted topics out.
func (m *Manager) deliver(topic string, payload []byte) {
	if m.cfg.Accept != nil && !m.cfg.Accept(topic) {
		m.discarded.Add(1)
		return
	}
	select {
	case m.inbox <- inbound{topic: topic, payload: payload}:
	case <-m.done:
	}
}

// dispatchLoop hands queued messages to the handler one at a time.
func (m *Manager) dispatchLoop() {
	for {
		select {
		case <-m.done:
			return
		case msg := <-m.inbox:
			m.dispatch(msg)
		}
	}
}

func (m *Manager) dispatch(msg inbound) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error("message handler panic recovered", "topic", msg.topic, "panic", r)
		}
	}()

	if h := m.getHandler(); h != nil {
		h.MessageArrived(msg.topic, msg.payload)
	}
}

// shutdown stops dispatching and closes the session.
func (m *Manager) shutdown(reason error) {
	m.stopOnce.Do(func() {
		close(m.done)
		m.detach()
		m.transition(StateDisconnected, reason)
		m.log().Info("connection manager stopped")
	})
}

// wait sleeps for d or until ctx is cancelled.
func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) transition(to State, reason error) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}

	m.log().Debug("connection state changed", "from", from.String(), "to", to.String())

	m.cbMu.RLock()
	fn := m.onTransition
	m.cbMu.RUnlock()

	if fn != nil {
		fn(Transition{From: from, To: to, Reason: reason, At: time.Now()})
	}
}

func (m *Manager) getHandler() EventHandler {
	m.cbMu.RLock()
	defer m.cbMu.RUnlock()
	return m.handler
}

func (m *Manager) log() Logger {
	m.cbMu.RLock()
	defer m.cbMu.RUnlock()
	return m.logger
}
