package subscription

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/metrics"
	"github.com/jonesrussell/blockwatch/internal/models"
	"github.com/jonesrussell/blockwatch/internal/transport"
)

// Manager owns the observer registry for one shared connection. It is the
// connection's dispatch handler: every received frame is decoded once and
// routed to the observers subscribed on that frame's channel.
type Manager struct {
	logger  logger.Logger
	metrics *metrics.Metrics

	mu           sync.RWMutex
	conn         *transport.Conn
	observers    map[string][]*Observer
	refs         map[string]int
	wasConnected bool
}

// NewManager creates a Manager. Bind it to a connection before subscribing
// observers; the usual wiring is
//
//	m := subscription.NewManager(log, mx)
//	conn := transport.New(connector, m.Dispatch, cfg, log)
//	m.Bind(conn)
func NewManager(log logger.Logger, mx *metrics.Metrics) *Manager {
	return &Manager{
		logger:    log,
		metrics:   mx,
		observers: make(map[string][]*Observer),
		refs:      make(map[string]int),
	}
}

// Bind attaches the shared connection and starts tracking its health for
// metrics and resubscription bookkeeping.
func (m *Manager) Bind(conn *transport.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	conn.OnStateChange(func(s transport.State) {
		m.metrics.SetConnectionState(int(s.Kind))

		if s.Kind != transport.StateConnected {
			return
		}
		m.mu.Lock()
		reconnected := m.wasConnected
		m.wasConnected = true
		m.mu.Unlock()

		if reconnected {
			m.metrics.Reconnected()
			// The connection re-established its channel set during the
			// reconnect; log the active scopes for verification.
			m.logger.Info("subscriptions restored after reconnect",
				logger.Strings("channels", conn.Channels()),
			)
		}
	})
}

// Observe creates an observer for the given scope. The observer receives no
// events until Subscribe is called.
func (m *Manager) Observe(scope Scope, callbacks Callbacks) (*Observer, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return &Observer{manager: m, scope: scope, callbacks: callbacks}, nil
}

func (m *Manager) subscribe(ctx context.Context, o *Observer) error {
	m.mu.Lock()
	if o.subscribed {
		m.mu.Unlock()
		return nil
	}
	o.subscribed = true

	ch := o.scope.Channel()
	m.observers[ch] = append(m.observers[ch], o)
	m.refs[ch]++
	first := m.refs[ch] == 1
	conn := m.conn
	m.mu.Unlock()

	if !first || conn == nil {
		return nil
	}

	m.logger.Debug("subscribing scope", logger.String("channel", ch))
	return conn.Subscribe(ctx, ch)
}

func (m *Manager) unsubscribe(ctx context.Context, o *Observer) error {
	m.mu.Lock()
	if !o.subscribed {
		m.mu.Unlock()
		return nil
	}
	o.subscribed = false

	ch := o.scope.Channel()
	m.observers[ch] = removeObserver(m.observers[ch], o)
	m.refs[ch]--
	last := m.refs[ch] == 0
	if last {
		delete(m.refs, ch)
		delete(m.observers, ch)
	}
	conn := m.conn
	m.mu.Unlock()

	if !last || conn == nil {
		return nil
	}

	m.logger.Debug("unsubscribing scope", logger.String("channel", ch))
	return conn.Unsubscribe(ctx, ch)
}

func (m *Manager) detach(o *Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := o.scope.Channel()
	m.observers[ch] = removeObserver(m.observers[ch], o)
}

func removeObserver(list []*Observer, o *Observer) []*Observer {
	for i, cand := range list {
		if cand == o {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Dispatch decodes one raw frame and routes it. It runs on the connection's
// dispatch goroutine, so observers see events one at a time in arrival
// order. Malformed payloads are dropped with a warning, never propagated.
func (m *Manager) Dispatch(ctx context.Context, msg transport.Message) {
	if ctx.Err() != nil {
		return
	}

	var env models.Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		m.metrics.DecodeFailure()
		m.logger.Warn("undecodable event frame",
			logger.String("channel", msg.Channel),
			logger.Error(err),
		)
		return
	}

	m.metrics.EventReceived(string(env.Event))

	// Snapshot the observer list under read lock, dispatch without it.
	m.mu.RLock()
	observers := make([]*Observer, len(m.observers[msg.Channel]))
	copy(observers, m.observers[msg.Channel])
	m.mu.RUnlock()

	if len(observers) == 0 {
		return
	}

	switch env.Event {
	case models.EventJobCreated, models.EventJobProgress, models.EventJobCompleted:
		m.dispatchJob(env, observers, msg.Channel)
	case models.EventJobSkipped:
		m.dispatchSkipped(env, observers)
	case models.EventValidationProgress:
		var p models.ValidationProgress
		if !m.decode(env.Data, &p, msg.Channel) {
			return
		}
		for _, o := range observers {
			if o.callbacks.OnValidationProgress != nil {
				o.callbacks.OnValidationProgress(p)
			}
		}
	case models.EventValidationComplete:
		var r models.ValidationResult
		if !m.decode(env.Data, &r, msg.Channel) {
			return
		}
		for _, o := range observers {
			if o.callbacks.OnValidationComplete != nil {
				o.callbacks.OnValidationComplete(r)
			}
		}
	case models.EventStatsUpdated:
		for _, o := range observers {
			if o.callbacks.OnStatsUpdated != nil {
				o.callbacks.OnStatsUpdated()
			}
		}
	default:
		m.logger.Debug("ignoring unknown event",
			logger.String("event", string(env.Event)),
			logger.String("channel", msg.Channel),
		)
	}
}

func (m *Manager) dispatchJob(env models.Envelope, observers []*Observer, channel string) {
	var job models.Job
	if !m.decode(env.Data, &job, channel) {
		return
	}

	for _, o := range observers {
		// Channel membership is the scope filter; the owner check guards
		// against a producer publishing to the wrong room.
		if o.scope.Kind == KindOwnerJobs && job.Owner() != o.scope.OwnerID {
			m.logger.Warn("dropping job event outside observer scope",
				logger.String("job_id", job.JobID),
				logger.String("owner", job.Owner()),
				logger.String("scope", o.scope.String()),
			)
			continue
		}

		switch env.Event {
		case models.EventJobCreated:
			if o.callbacks.OnJobCreated != nil {
				o.callbacks.OnJobCreated(job.Clone())
			}
		case models.EventJobProgress:
			if o.callbacks.OnJobProgress != nil {
				o.callbacks.OnJobProgress(job.Clone())
			}
		case models.EventJobCompleted:
			if o.callbacks.OnJobCompleted != nil {
				o.callbacks.OnJobCompleted(job.Clone())
			}
		}
	}
}

func (m *Manager) dispatchSkipped(env models.Envelope, observers []*Observer) {
	var skip models.SkippedPayload
	if !m.decode(env.Data, &skip, "") {
		return
	}
	for _, o := range observers {
		if o.callbacks.OnJobSkipped != nil {
			o.callbacks.OnJobSkipped(skip)
		}
	}
}

func (m *Manager) decode(data json.RawMessage, v any, channel string) bool {
	if err := json.Unmarshal(data, v); err != nil {
		m.metrics.DecodeFailure()
		m.logger.Warn("undecodable event payload",
			logger.String("channel", channel),
			logger.Error(err),
		)
		return false
	}
	return true
}
