package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ladleio/ladle/pkg/api"
	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/contentstore"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/geocoder"
	"github.com/ladleio/ladle/pkg/health"
	"github.com/ladleio/ladle/pkg/llm"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/publisher"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/reconciler"
	"github.com/ladleio/ladle/pkg/storage"
	"github.com/ladleio/ladle/pkg/validator"
	"github.com/ladleio/ladle/pkg/worker"
)

// shutdownTimeout bounds the API drain on cancel
const shutdownTimeout = 15 * time.Second

// Options select which parts of the pipeline one process runs
type Options struct {
	// API serves the inbound HTTP surface
	API bool

	// Publisher runs the scheduled publish cycle
	Publisher bool

	// Queues are the stages this process works. Nil means every stage.
	Queues []string

	// Version is reported on the healthz endpoint
	Version string
}

// ServerOptions runs everything in one process
func ServerOptions(version string) Options {
	return Options{API: true, Publisher: true, Version: version}
}

// WorkerOptions runs only the named stages
func WorkerOptions(queues ...string) Options {
	return Options{Queues: queues}
}

// Runtime owns every long-lived component of one ladle process
type Runtime struct {
	cfg    *config.Config
	opts   Options
	log    zerolog.Logger
	active []string

	db     *sqlx.DB
	broker *broker.Broker
	events *events.Broker

	queues *queue.Set
	pools  []*worker.Pool

	state     *publisher.State
	pub       *publisher.Publisher
	apiServer *api.Server
	collector *metrics.Collector
}

// New connects the broker and database and builds the selected
// components. Nothing starts until Run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	r := &Runtime{cfg: cfg, opts: opts, log: log.WithComponent("pipeline")}

	b, err := broker.Connect(ctx, cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("connecting broker: %w", err)
	}
	r.broker = b

	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DatabaseURL)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	r.db = db

	store := storage.NewPostgres(db)
	content, err := contentstore.New(db, cfg.ContentStorePath)
	if err != nil {
		_ = r.Close()
		return nil, err
	}

	r.queues = queue.NewSet(b, cfg.Queue.VisibilityWindow())

	r.events = events.NewBroker()
	intake := contentstore.NewIntake(content, r.queues.LLM, r.events)

	r.active, err = r.activeStages()
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	if err := r.buildPools(store, content, intake); err != nil {
		_ = r.Close()
		return nil, err
	}

	// the publish endpoint and the cron cycle share one state file, so
	// only the process that runs either of them may open it
	if opts.API || opts.Publisher {
		state, err := publisher.OpenState(cfg.Publisher.StatePath)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.state = state
		r.pub = publisher.New(store, b, state, cfg.Publisher, r.events)
	}

	if opts.API {
		checks := health.NewSet(10*time.Second,
			health.NewPostgresChecker(db),
			health.NewRedisChecker(b),
		)
		if cfg.Geocoder.HealthProbes {
			for name, target := range geocoder.BaseURLs(cfg.Geocoder) {
				checks.Add(health.NewHTTPChecker(name, target).WithTimeout(5 * time.Second))
			}
		}
		r.apiServer = api.NewServer(cfg.APIAddr, api.Deps{
			Intake:    intake,
			Queues:    r.queues.All(),
			Publisher: r.pub,
			Checks:    checks,
			Version:   opts.Version,
		})
	}

	r.collector = metrics.NewCollector(b, r.queues, content, cfg.LLM.Provider, cfg.Geocoder.Providers)
	return r, nil
}

// Run starts every selected component and blocks until the context is
// canceled and everything has drained.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	r.events.Start()
	defer r.events.Stop()

	sink := r.events.Subscribe()
	g.Go(func() error {
		r.drainEvents(ctx, sink)
		return nil
	})

	r.collector.Start()
	defer r.collector.Stop()

	if r.pub != nil && r.opts.Publisher {
		r.pub.Start()
		defer r.pub.Stop()
	}

	for _, p := range r.pools {
		p := p
		g.Go(func() error { return p.Run(ctx) })
	}

	g.Go(func() error { return r.reapLoop(ctx) })

	if r.apiServer != nil {
		g.Go(func() error { return r.apiServer.Start() })
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return r.apiServer.Stop(sctx)
		})
	}

	r.log.Info().
		Strs("stages", r.active).
		Bool("api", r.apiServer != nil).
		Bool("publisher", r.pub != nil && r.opts.Publisher).
		Msg("pipeline running")

	return g.Wait()
}

// Close releases connections. Run must have returned.
func (r *Runtime) Close() error {
	var firstErr error
	if r.state != nil {
		if err := r.state.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.broker != nil {
		if err := r.broker.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// activeStages resolves the queue selection against the known stages
func (r *Runtime) activeStages() ([]string, error) {
	if len(r.opts.Queues) == 0 {
		return []string{queue.Intake, queue.LLM, queue.Validator, queue.Reconciler}, nil
	}
	for _, name := range r.opts.Queues {
		if r.queues.ByName(name) == nil {
			return nil, fmt.Errorf("unknown queue %q (want %s, %s, %s, or %s)",
				name, queue.Intake, queue.LLM, queue.Validator, queue.Reconciler)
		}
	}
	return r.opts.Queues, nil
}

// buildPools constructs handler and pool for each active stage. Stage
// dependencies (LLM provider, geocoder) are built only when their
// stage runs here, so a reconciler-only worker needs no API key.
func (r *Runtime) buildPools(store *storage.PostgresStore, content *contentstore.Store, intake *contentstore.Intake) error {
	// a Handle call that outlives the visibility window would race its
	// own redelivery, so the window bounds every job
	base := worker.Options{
		PollInterval: r.cfg.Workers.PollInterval(),
		MaxAttempts:  r.cfg.Queue.MaxAttempts,
		JobTimeout:   r.cfg.Queue.VisibilityWindow(),
		Events:       r.events,
	}

	for _, name := range r.active {
		opts := base
		var h worker.Handler

		switch name {
		case queue.Intake:
			opts.Workers = r.cfg.Workers.Intake
			opts.Backpressure = worker.DepthBackpressure(r.queues.LLM, int64(r.cfg.Queue.HighWater))
			h = contentstore.NewHandler(intake)

		case queue.LLM:
			aligner, err := llm.NewAligner(r.cfg.LLM, r.broker, r.events)
			if err != nil {
				return fmt.Errorf("building llm provider: %w", err)
			}
			opts.Workers = r.cfg.Workers.LLM
			opts.Backpressure = worker.DepthBackpressure(r.queues.Validator, int64(r.cfg.Queue.HighWater))
			h = llm.NewHandler(content, aligner, r.queues.Validator, r.events, r.cfg.LLM.MaxOutputRetries)

		case queue.Validator:
			geo, err := geocoder.New(r.cfg.Geocoder, r.broker, r.events)
			if err != nil {
				return fmt.Errorf("building geocoder: %w", err)
			}
			opts.Workers = r.cfg.Workers.Validator
			opts.Backpressure = worker.DepthBackpressure(r.queues.Reconciler, int64(r.cfg.Queue.HighWater))
			h = validator.NewHandler(
				validator.NewScorer(r.cfg.Validator),
				validator.NewEnricher(geo),
				store,
				r.queues.Reconciler,
				r.events,
			)

		case queue.Reconciler:
			opts.Workers = r.cfg.Workers.Reconciler
			h = reconciler.NewHandler(reconciler.New(store, r.cfg.Reconciler), r.events)
		}

		r.pools = append(r.pools, worker.NewPool(r.queues.ByName(name), h, opts))
	}
	return nil
}

// drainEvents mirrors pipeline events into the debug log
func (r *Runtime) drainEvents(ctx context.Context, sink events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			r.events.Unsubscribe(sink)
			return
		case e, ok := <-sink:
			if !ok {
				return
			}
			entry := r.log.Debug().Str("event", string(e.Type))
			for k, v := range e.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(e.Message)
		}
	}
}

// reapLoop returns expired in-flight deliveries to ready on the
// stages this process works
func (r *Runtime) reapLoop(ctx context.Context) error {
	interval := r.cfg.Queue.ReaperInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for _, name := range r.active {
				n, err := r.queues.ByName(name).Reap(ctx, time.Now())
				if err != nil {
					r.log.Warn().Err(err).Str("queue", name).Msg("reaping expired deliveries failed")
					continue
				}
				if n > 0 {
					r.log.Info().Int("reclaimed", n).Str("queue", name).
						Msg("expired deliveries returned to ready")
				}
			}
		}
	}
}
