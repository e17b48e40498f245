package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/healthagent/internal/alert"
	"github.com/hamed0406/healthagent/internal/config"
	"github.com/hamed0406/healthagent/internal/domain"
	"github.com/hamed0406/healthagent/internal/httpapi"
	apimw "github.com/hamed0406/healthagent/internal/httpapi/middleware"
	"github.com/hamed0406/healthagent/internal/notify"
	"github.com/hamed0406/healthagent/internal/probe"
	"github.com/hamed0406/healthagent/internal/repo"
	"github.com/hamed0406/healthagent/internal/repo/memory"
	"github.com/hamed0406/healthagent/internal/repo/postgres"
	"github.com/hamed0406/healthagent/internal/repo/sqlite"
	"github.com/hamed0406/healthagent/internal/scheduler"
)

// Container holds every long-lived component of the agent.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Targets []domain.Target

	Store      repo.ResultStore
	Subs       []alert.Subscription
	Dispatcher *alert.Dispatcher
	Engine     *alert.Engine
	Scheduler  *scheduler.Scheduler
	API        *httpapi.Server

	closers []io.Closer
}

func NewContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Targets: cfg.DomainTargets()}

	if err := c.initStore(ctx); err != nil {
		return nil, err
	}
	if err := c.initSinks(); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	c.initAlerting()
	c.initScheduler()
	c.initAPI()
	return c, nil
}

func (c *Container) initStore(ctx context.Context) error {
	sc := c.Config.Store
	var (
		st  repo.ResultStore
		err error
	)
	switch sc.Driver {
	case "memory":
		st = memory.New()
	case "sqlite":
		st, err = sqlite.New(ctx, sc.Path, c.Logger)
	case "postgres":
		st, err = postgres.New(ctx, sc.DSN, c.Logger)
	default:
		err = fmt.Errorf("unknown store driver %q", sc.Driver)
	}
	if err != nil {
		return fmt.Errorf("open %s store: %w", sc.Driver, err)
	}
	c.Store = st
	c.closers = append(c.closers, st)
	c.Logger.Info("store_opened", zap.String("driver", sc.Driver))
	return nil
}

func (c *Container) initSinks() error {
	for _, w := range c.Config.Webhooks {
		sink, err := notify.New(w, c.Logger)
		if err != nil {
			return fmt.Errorf("webhook %s: %w", w.Name, err)
		}
		if cl, ok := sink.(io.Closer); ok {
			c.closers = append(c.closers, cl)
		}
		c.Subs = append(c.Subs, alert.Subscription{Hook: w, Sink: sink})
	}
	c.Logger.Info("sinks_ready", zap.Int("webhooks", len(c.Subs)))
	return nil
}

func (c *Container) initAlerting() {
	d := c.Config.Delivery
	c.Dispatcher = alert.NewDispatcher(alert.DispatcherConfig{
		Workers:        d.Workers,
		Queue:          d.Queue,
		Attempts:       d.Attempts,
		InitialBackoff: d.InitialBackoff,
		MaxBackoff:     d.MaxBackoff,
	}, c.Logger)
	c.Engine = alert.NewEngine(c.Targets, c.Subs, c.Dispatcher, c.Logger)
}

func (c *Container) initScheduler() {
	c.Scheduler = scheduler.New(
		c.Logger,
		c.Targets,
		probe.NewDefaultRegistry(""),
		c.Store,
		c.Engine,
		scheduler.Options{
			Interval:           c.Config.Interval,
			Stagger:            c.Config.Stagger,
			Workers:            c.Config.Workers,
			Retention:          c.Config.Retention,
			CompactionSchedule: c.Config.CompactionSchedule,
		},
	)
}

func (c *Container) initAPI() {
	if !c.Config.API.Enabled {
		return
	}
	a := c.Config.API
	c.API = httpapi.NewServer(c.Logger, c.Targets, c.Store, c.Engine, c.Scheduler, httpapi.Options{
		Keys:           apimw.Keys{Public: a.PublicKeys, Admin: a.AdminKeys},
		AllowedOrigins: a.AllowedOrigins,
		PublicRPM:      a.PublicRPM,
		Burst:          a.Burst,
		CacheTTL:       a.StatsCacheTTL,
	})
}

// Run blocks until ctx is cancelled or a component fails. The scheduler
// drains before the dispatcher stops so late events can still be queued.
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	dctx, stopDispatch := context.WithCancel(context.WithoutCancel(gctx))
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- c.Dispatcher.Run(dctx) }()

	g.Go(func() error { return c.Scheduler.Run(gctx) })
	if c.API != nil {
		g.Go(func() error { return c.API.ListenAndServe(gctx, c.Config.API.Addr) })
	}

	err := g.Wait()
	stopDispatch()
	return multierr.Append(err, <-dispatchDone)
}

// Close releases the store and any sink holding a connection.
func (c *Container) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.closers[i].Close())
	}
	c.closers = nil
	return err
}
