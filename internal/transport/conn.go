// Package transport owns the shared push connection to the pipeline backend.
//
// One Conn is constructed per process and passed to every observer by the
// caller; there is no package-level singleton. Events are received and
// dispatched by a single goroutine, so downstream handlers see them one at a
// time in arrival order.
package transport

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/blockwatch/internal/logger"
)

const (
	// defaultReconnectDelay is the initial delay between reconnection
	// attempts.
	defaultReconnectDelay = 1 * time.Second

	// defaultMaxReconnectDelay caps the exponential backoff.
	defaultMaxReconnectDelay = 5 * time.Second

	// reconnectBackoffMultiplier is the multiplier for exponential backoff.
	reconnectBackoffMultiplier = 2

	// degradedThreshold is the consecutive failure count past which an
	// unbounded-retry connection reports degraded instead of reconnecting.
	degradedThreshold = 5
)

var (
	// ErrNotOpen is returned by control operations before Open.
	ErrNotOpen = errors.New("connection not open")

	// ErrAlreadyOpen is returned when Open is called twice without Close.
	ErrAlreadyOpen = errors.New("connection already open")
)

// Config holds the reconnect policy for a Conn.
type Config struct {
	// ReconnectDelay is the initial delay between reconnection attempts.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the backoff delay.
	MaxReconnectDelay time.Duration

	// MaxAttempts bounds consecutive failed reconnects before the
	// connection transitions to failed and stops retrying. Zero retries
	// forever (reporting degraded past the threshold).
	MaxAttempts int
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    defaultReconnectDelay,
		MaxReconnectDelay: defaultMaxReconnectDelay,
	}
}

// Handler consumes raw messages from the dispatch loop, one at a time in
// arrival order.
type Handler func(ctx context.Context, msg Message)

// Conn is the shared subscription connection. All observers multiplex over
// one Conn; channel membership is the set of control messages in effect.
type Conn struct {
	connector Connector
	handler   Handler
	config    Config
	logger    logger.Logger

	mu        sync.Mutex
	ps        PubSubConn
	channels  map[string]struct{}
	state     State
	listeners []StateListener
	opened    bool
	cancelFn  context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a Conn. The handler receives every message from every
// subscribed channel; routing by channel is the subscription layer's job.
func New(connector Connector, handler Handler, cfg Config, log logger.Logger) *Conn {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = defaultMaxReconnectDelay
	}

	return &Conn{
		connector: connector,
		handler:   handler,
		config:    cfg,
		logger:    log,
		channels:  make(map[string]struct{}),
		state:     State{Kind: StateDisconnected},
	}
}

// Open establishes the connection and starts the dispatch loop. It is not
// idempotent: a second Open without Close returns ErrAlreadyOpen.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	channels := c.channelList()
	c.mu.Unlock()

	ps, err := c.connector.Connect(ctx, channels)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.ps = ps
	c.opened = true
	c.cancelFn = cancel
	c.mu.Unlock()

	c.setState(State{Kind: StateConnected})

	c.wg.Add(1)
	go c.dispatchLoop(loopCtx)

	return nil
}

// Close stops the dispatch loop and tears down the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = false
	cancel := c.cancelFn
	ps := c.ps
	c.ps = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var closeErr error
	if ps != nil {
		closeErr = ps.Close()
	}
	c.wg.Wait()

	c.setState(State{Kind: StateDisconnected})
	return closeErr
}

// Subscribe adds channels to the live subscription. Channels already
// subscribed are skipped, so each distinct channel produces exactly one
// subscribe control message per connection lifetime.
func (c *Conn) Subscribe(ctx context.Context, channels ...string) error {
	c.mu.Lock()
	fresh := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := c.channels[ch]; !ok {
			c.channels[ch] = struct{}{}
			fresh = append(fresh, ch)
		}
	}
	ps := c.ps
	c.mu.Unlock()

	if len(fresh) == 0 || ps == nil {
		return nil
	}
	return ps.Subscribe(ctx, fresh...)
}

// Unsubscribe removes channels from the live subscription. Unknown channels
// are ignored.
func (c *Conn) Unsubscribe(ctx context.Context, channels ...string) error {
	c.mu.Lock()
	active := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := c.channels[ch]; ok {
			delete(c.channels, ch)
			active = append(active, ch)
		}
	}
	ps := c.ps
	c.mu.Unlock()

	if len(active) == 0 || ps == nil {
		return nil
	}
	return ps.Unsubscribe(ctx, active...)
}

// Channels returns the sorted list of currently subscribed channels.
func (c *Conn) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelList()
}

// State returns the current connection-health snapshot.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a listener for health transitions. Listeners run
// on the dispatch goroutine and must not block.
func (c *Conn) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Conn) channelList() []string {
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(s)
	}
}

func (c *Conn) dispatchLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		ps := c.ps
		c.mu.Unlock()

		if ps == nil {
			return
		}

		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if !c.reconnect(ctx, err) {
				return
			}
			continue
		}

		c.handler(ctx, msg)
	}
}

// reconnect runs the backoff loop after a broken connection. It returns true
// once a new connection is live, false when the attempt budget is exhausted
// or the context is done.
func (c *Conn) reconnect(ctx context.Context, cause error) bool {
	c.mu.Lock()
	if old := c.ps; old != nil {
		_ = old.Close()
		c.ps = nil
	}
	c.mu.Unlock()

	lastErr := cause
	delay := c.config.ReconnectDelay
	attempt := 0

	for {
		attempt++

		kind := StateReconnecting
		if attempt > degradedThreshold {
			kind = StateDegraded
		}
		wait := jitter(delay)
		c.setState(State{Kind: kind, Attempt: attempt, NextDelay: wait, Err: lastErr})
		c.logger.Warn("connection lost, reconnecting",
			logger.Int("attempt", attempt),
			logger.Duration("delay", wait),
			logger.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}

		c.mu.Lock()
		channels := c.channelList()
		c.mu.Unlock()

		ps, err := c.connector.Connect(ctx, channels)
		if err == nil {
			c.mu.Lock()
			if !c.opened {
				// Close raced the reconnect; drop the fresh connection
				// instead of resurrecting a closed Conn.
				c.mu.Unlock()
				_ = ps.Close()
				return false
			}
			c.ps = ps
			c.mu.Unlock()
			c.setState(State{Kind: StateConnected})
			c.logger.Info("reconnected",
				logger.Int("channels", len(channels)),
				logger.Int("attempts", attempt),
			)
			return true
		}

		lastErr = err
		if c.config.MaxAttempts > 0 && attempt >= c.config.MaxAttempts {
			c.setState(State{Kind: StateFailed, Attempt: attempt, Err: lastErr})
			c.logger.Error("reconnect attempts exhausted",
				logger.Int("attempts", attempt),
				logger.Error(lastErr),
			)
			return false
		}

		delay *= reconnectBackoffMultiplier
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// jitter spreads reconnect attempts so clients that lost the same server do
// not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)))
}
