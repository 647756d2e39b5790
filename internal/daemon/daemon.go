package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mozilla-ai/healthd/internal/alert"
	"github.com/mozilla-ai/healthd/internal/api"
	"github.com/mozilla-ai/healthd/internal/checks"
	"github.com/mozilla-ai/healthd/internal/cmd"
	"github.com/mozilla-ai/healthd/internal/domain"
	"github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/history"
	"github.com/mozilla-ai/healthd/internal/metrics"
	"github.com/mozilla-ai/healthd/internal/monitor"
	"github.com/mozilla-ai/healthd/internal/recovery"
)

// Daemon owns the monitor and every subsystem it drives, and serves them over HTTP.
// NewDaemon should be used to create instances of Daemon.
type Daemon struct {
	logger    hclog.Logger
	apiServer *APIServer
	monitor   *monitor.Monitor
	registrar *Registrar
	alerts    *alert.Manager
	recovery  *recovery.Registry
	pool      *poolResources
	store     history.Store
	writer    *history.AsyncWriter
	registry  *prometheus.Registry

	pruneRetention time.Duration
	pruneInterval  time.Duration
	drainTimeout   time.Duration
}

// NewDaemon builds every subsystem described by the configuration and registers its components.
// Nothing runs until StartAndManage is called.
func NewDaemon(deps Dependencies, opt ...Option) (_ *Daemon, err error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon dependencies: %w", err)
	}
	opts, err := NewOptions(opt...)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon options: %w", err)
	}

	cfg := deps.Config
	logger := deps.Logger.Named("daemon")
	d := &Daemon{
		logger:       logger,
		drainTimeout: opts.DrainTimeout,
	}
	d.pruneRetention, d.pruneInterval = cfg.History.Pruning()

	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), opts.StartupTimeout)
	defer cancel()

	d.registry = prometheus.NewRegistry()
	if err := d.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := d.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	collector, err := metrics.NewCollector(opts.MetricsNamespace, d.registry)
	if err != nil {
		return nil, err
	}

	driver, dsn := cfg.History.Store()
	d.store, err = history.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	d.writer, err = history.NewAsyncWriter(deps.Logger, d.store, cfg.History.WriterOptions()...)
	if err != nil {
		return nil, err
	}
	if err := collector.WatchHistory(d.writer.Stats); err != nil {
		return nil, err
	}

	d.pool, err = openPool(deps.Logger, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}
	var resetter recovery.Resetter
	if d.pool != nil {
		resetter = d.pool.manager
		if err := collector.WatchPool(opts.PoolName, d.pool.manager.Stats); err != nil {
			return nil, err
		}
	}

	d.recovery, err = buildRecovery(deps.Logger, cfg.Recovery, resetter, opts.HTTPClient)
	if err != nil {
		return nil, err
	}

	channels, escalation, err := buildChannels(deps.Logger, cfg.Alerts, opts.Console, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	var alertOpts []alert.Option
	if cfg.Alerts != nil {
		alertOpts = cfg.Alerts.Options()
	}
	alertOpts = append(alertOpts, alert.WithEventSink(func(e domain.SystemEvent) {
		d.writer.WriteEvents(e)
	}))
	d.alerts, err = alert.NewManager(deps.Logger, channels, escalation, alertOpts...)
	if err != nil {
		return nil, err
	}
	if err := collector.WatchAlerts(d.alerts.Stats); err != nil {
		return nil, err
	}

	monitorDeps := monitor.Dependencies{
		Logger:   deps.Logger,
		Alerts:   d.alerts,
		History:  d.store,
		Recorder: d.writer,
		Observer: collector,
	}
	if !opts.DisableRecovery {
		monitorDeps.Recovery = d.recovery
	}
	d.monitor, err = monitor.New(monitorDeps, cfg.Monitor.Options()...)
	if err != nil {
		return nil, err
	}

	checkDeps := checks.Dependencies{
		HTTPClient: opts.HTTPClient,
		Version:    cmd.Version(),
	}
	if d.pool != nil {
		checkDeps.Pool = d.pool.manager
		checkDeps.Dialect = d.pool.dialect
		checkDeps.AcquireTimeout = cfg.Pool.Acquire()
	}
	d.registrar, err = NewRegistrar(d.monitor, checkDeps)
	if err != nil {
		return nil, err
	}

	defs, err := cfg.Definitions()
	if err != nil {
		return nil, err
	}
	if err := d.registrar.AddAll(defs); err != nil {
		return nil, err
	}

	services := api.Services{
		Monitor:    d.monitor,
		Components: d.registrar,
		Alerts:     d.alerts,
		Recovery:   d.recovery,
	}
	if d.pool != nil {
		services.Pool = d.pool.manager
	}
	apiDeps, err := NewAPIDependencies(deps.Logger, services, metrics.Handler(d.registry), deps.APIAddr)
	if err != nil {
		return nil, err
	}
	d.apiServer, err = NewAPIServer(apiDeps, opts.APIOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon API server: %w", err)
	}

	return d, nil
}

// StartAndManage starts the monitor, pool maintenance, history pruning and the API server,
// and blocks until ctx is canceled or the API server fails. Everything is drained before it returns.
func (d *Daemon) StartAndManage(ctx context.Context) error {
	defer d.close()

	g, gctx := errgroup.WithContext(ctx)

	if d.pool != nil {
		if err := d.pool.manager.Fill(gctx); err != nil {
			d.logger.Warn("Connection pool is below its minimum size", "error", err)
		}
		g.Go(func() error {
			d.pool.manager.Run(gctx)
			return nil
		})
	}

	if d.pruneRetention > 0 {
		g.Go(func() error {
			d.pruneLoop(gctx)
			return nil
		})
	}

	if err := d.monitor.Start(gctx); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	d.logger.Info("Monitoring components", "count", len(d.monitor.Components()), "interval", d.monitor.Interval())

	g.Go(func() error {
		if err := d.apiServer.Start(gctx); err != nil && !stdErrors.Is(err, context.Canceled) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	d.drain()
	return err
}

// CheckOnce probes every component once and returns the resulting snapshot.
// Background work started by the cycle has finished when it returns.
func (d *Daemon) CheckOnce(ctx context.Context) (*domain.SystemHealth, error) {
	snapshot, err := d.monitor.ForceCheck(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.monitor.Wait(ctx); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Close flushes queued history and releases stores and pooled connections.
// It is only needed when StartAndManage is not called.
func (d *Daemon) Close() {
	d.close()
}

// Prune removes history older than before.
func (d *Daemon) Prune(ctx context.Context, before time.Time) (int64, error) {
	return d.store.PruneBefore(ctx, before)
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(d.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := d.Prune(ctx, now.Add(-d.pruneRetention))
			if err != nil {
				d.logger.Error("Failed to prune history", "error", err)
				continue
			}
			if removed > 0 {
				d.logger.Info("Pruned history", "rows", removed, "retention", d.pruneRetention)
			}
		}
	}
}

// drain stops the monitor and flushes queued history.
func (d *Daemon) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	// A canceled context already ended the loop; background work may still be running.
	err := d.monitor.Stop(ctx)
	if stdErrors.Is(err, errors.ErrMonitorStopped) {
		err = d.monitor.Wait(ctx)
	}
	if err != nil {
		d.logger.Warn("Monitor did not stop cleanly", "error", err)
	}
	if err := d.writer.Close(ctx); err != nil {
		d.logger.Warn("History queue not fully drained", "error", err, "dropped", d.writer.Stats().Dropped)
	}
}

// close releases stores and pooled connections. It is safe to call on a partially built Daemon.
func (d *Daemon) close() {
	if d.writer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
		_ = d.writer.Close(ctx)
		cancel()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("Failed to close history store", "error", err)
		}
	}
	if err := d.pool.close(); err != nil {
		d.logger.Warn("Failed to close connection pool", "error", err)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
