// Package watch wires the transport, subscription, reconciler and countdown
// layers into one observable pipeline watcher.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jonesrussell/blockwatch/internal/config"
	"github.com/jonesrussell/blockwatch/internal/countdown"
	"github.com/jonesrussell/blockwatch/internal/hydrate"
	"github.com/jonesrussell/blockwatch/internal/logger"
	"github.com/jonesrussell/blockwatch/internal/metrics"
	"github.com/jonesrussell/blockwatch/internal/models"
	"github.com/jonesrussell/blockwatch/internal/reconciler"
	"github.com/jonesrussell/blockwatch/internal/redis"
	"github.com/jonesrussell/blockwatch/internal/subscription"
	"github.com/jonesrussell/blockwatch/internal/transport"
)

// Watcher owns the full client stack: one shared connection, the scope
// manager, the reconciled job table and the queue countdown.
type Watcher struct {
	config   *config.Config
	logger   logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	redisClient *goredis.Client
	conn        *transport.Conn
	manager     *subscription.Manager
	table       *reconciler.Table
	projector   *countdown.Projector
	hydrator    *hydrate.Client

	observer *subscription.Observer

	mu           sync.Mutex
	wasConnected bool
	countdownJob string
}

// New builds a watcher from configuration. Nothing connects until Start.
func New(cfg *config.Config, log logger.Logger) (*Watcher, error) {
	redisClient, err := redis.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	mx := metrics.New(registry)

	table := reconciler.New(reconciler.Config{
		HistoryLimit: cfg.Watch.HistoryLimit,
		PurgeGrace:   cfg.Watch.PurgeGrace,
	}, log, mx)

	manager := subscription.NewManager(log, mx)
	conn := transport.New(
		transport.NewRedisConnector(redisClient),
		manager.Dispatch,
		transport.Config{
			ReconnectDelay:    cfg.Transport.ReconnectDelay,
			MaxReconnectDelay: cfg.Transport.MaxReconnectDelay,
			MaxAttempts:       cfg.Transport.MaxAttempts,
		},
		log,
	)
	manager.Bind(conn)

	w := &Watcher{
		config:      cfg,
		logger:      log,
		registry:    registry,
		metrics:     mx,
		redisClient: redisClient,
		conn:        conn,
		manager:     manager,
		table:       table,
		projector:   countdown.New(),
	}

	if cfg.Hydrate.BaseURL != "" {
		w.hydrator, err = hydrate.NewClient(cfg.Hydrate.BaseURL, cfg.Hydrate.APIKey, cfg.Hydrate.Timeout, log)
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("create hydration client: %w", err)
		}
	}

	return w, nil
}

// Scope returns the observer scope the watcher is configured for. With no
// owner configured the watcher defaults to the administrator all-jobs view.
func (w *Watcher) Scope() subscription.Scope {
	if w.config.Watch.All || w.config.Watch.OwnerID == "" {
		return subscription.AllJobs()
	}
	return subscription.OwnerJobs(w.config.Watch.OwnerID)
}

// Start opens the connection, hydrates the table from the REST baseline and
// subscribes the job observer. It returns once the stream is live.
func (w *Watcher) Start(ctx context.Context) error {
	// Re-hydrate after every reconnect: events published during the outage
	// are gone, the REST baseline fills the hole.
	w.conn.OnStateChange(func(s transport.State) {
		if s.Kind != transport.StateConnected {
			return
		}
		w.mu.Lock()
		reconnected := w.wasConnected
		w.wasConnected = true
		w.mu.Unlock()
		if reconnected {
			go w.hydrateTable(context.Background())
		}
	})

	if err := w.conn.Open(ctx); err != nil {
		return fmt.Errorf("open connection: %w", err)
	}

	w.hydrateTable(ctx)

	observer, err := w.manager.Observe(w.Scope(), subscription.Callbacks{
		OnJobCreated:   w.onCreated,
		OnJobProgress:  w.onProgress,
		OnJobCompleted: w.onCompleted,
		OnJobSkipped:   w.onSkipped,
	})
	if err != nil {
		return err
	}
	if err := observer.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", w.Scope(), err)
	}
	w.observer = observer

	w.logger.Info("watcher started", logger.String("scope", w.Scope().String()))
	return nil
}

// Stop tears the stack down in reverse order.
func (w *Watcher) Stop(ctx context.Context) error {
	var errs []error
	if w.observer != nil {
		if err := w.observer.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	w.table.Close()
	if err := w.redisClient.Close(); err != nil {
		errs = append(errs, err)
	}
	w.logger.Info("watcher stopped")
	return errors.Join(errs...)
}

// MarkFailuresRead acknowledges failed jobs server-side, then mirrors the
// flag onto the local table.
func (w *Watcher) MarkFailuresRead(ctx context.Context) (int, error) {
	if w.hydrator == nil {
		return 0, errors.New("no hydration API configured")
	}

	owner := ""
	if !w.config.Watch.All {
		owner = w.config.Watch.OwnerID
	}
	n, err := w.hydrator.MarkFailuresRead(ctx, owner)
	if err != nil {
		return 0, err
	}

	for _, job := range w.table.Jobs() {
		if job.Status == models.StatusFailed && !job.Read {
			_ = w.table.MarkRead(job.JobID)
		}
	}
	return n, nil
}

// Table returns the reconciled job table.
func (w *Watcher) Table() *reconciler.Table { return w.table }

// Conn returns the shared connection.
func (w *Watcher) Conn() *transport.Conn { return w.conn }

// Projector returns the queue countdown projector.
func (w *Watcher) Projector() *countdown.Projector { return w.projector }

// Registry returns the metrics registry for the /metrics endpoint.
func (w *Watcher) Registry() *prometheus.Registry { return w.registry }

// Manager returns the subscription manager, for attaching extra observers
// (validation stream, stats channel).
func (w *Watcher) Manager() *subscription.Manager { return w.manager }

// hydrateTable seeds the table from the REST baseline. Failures degrade to
// whatever the push stream delivers; the watcher stays up.
func (w *Watcher) hydrateTable(ctx context.Context) {
	if w.hydrator == nil {
		return
	}

	limit := w.config.Watch.HistoryLimit
	var (
		jobs []*models.Job
		err  error
	)
	if scope := w.Scope(); scope.Kind == subscription.KindAllJobs {
		jobs, err = w.hydrator.AllRecentJobs(ctx, limit)
	} else {
		jobs, err = w.hydrator.RecentJobs(ctx, scope.OwnerID, limit)
	}
	if err != nil {
		w.logger.Warn("hydration failed, continuing with push stream only", logger.Error(err))
		return
	}

	// The API returns newest first; replay oldest first so table order
	// matches arrival order.
	for i := len(jobs) - 1; i >= 0; i-- {
		if applyErr := w.applyUpsert(jobs[i]); applyErr != nil {
			w.logger.Debug("hydrated record not applied",
				logger.String("job_id", jobs[i].JobID),
				logger.Error(applyErr),
			)
		}
	}
	w.logger.Info("hydrated job history", logger.Int("jobs", len(jobs)))

	if qi, statsErr := w.hydrator.QueueStats(ctx); statsErr != nil {
		w.logger.Debug("queue stats baseline unavailable", logger.Error(statsErr))
	} else {
		w.projector.ObserveInfo(qi)
	}
}

func (w *Watcher) onCreated(job *models.Job) {
	if err := w.table.ApplyCreated(job); err != nil {
		w.logger.Warn("created event rejected",
			logger.String("job_id", job.JobID),
			logger.Error(err),
		)
	}
}

func (w *Watcher) onProgress(job *models.Job) {
	if err := w.applyUpsert(job); err != nil {
		return
	}
	if job.Progress.Stage == models.StageQueue {
		w.mu.Lock()
		w.countdownJob = job.JobID
		w.mu.Unlock()
		w.projector.Observe(&job.Progress, job.QueueInfo)
		return
	}
	w.resetCountdown(job.JobID)
}

func (w *Watcher) onCompleted(job *models.Job) {
	_ = w.applyUpsert(job)
	w.resetCountdown(job.JobID)
}

func (w *Watcher) onSkipped(skip models.SkippedPayload) {
	if err := w.table.ApplySkipped(skip); err != nil && !errors.Is(err, models.ErrTerminal) {
		w.logger.Warn("skip event rejected",
			logger.String("job_id", skip.JobID),
			logger.Error(err),
		)
	}
}

// resetCountdown clears the projector only when the job that anchors it
// leaves the queue. Progress from other jobs in the scope must not wipe a
// live countdown.
func (w *Watcher) resetCountdown(jobID string) {
	w.mu.Lock()
	anchors := w.countdownJob == jobID
	if anchors {
		w.countdownJob = ""
	}
	w.mu.Unlock()
	if anchors {
		w.projector.Reset()
	}
}

// applyUpsert folds one full job record into the table, treating the
// expected rejections (stale revision, terminal guard) as quiet no-ops.
func (w *Watcher) applyUpsert(job *models.Job) error {
	err := w.table.ApplyUpdate(job)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrStaleRevision) || errors.Is(err, models.ErrTerminal) {
		return err
	}
	w.logger.Warn("update event rejected",
		logger.String("job_id", job.JobID),
		logger.Error(err),
	)
	return err
}
