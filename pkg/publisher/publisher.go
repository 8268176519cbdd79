package publisher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/metrics"
	"github.com/ladleio/ladle/pkg/storage"
)

const (
	// broker lock name; the full key is ladle:lock:publisher
	lockName = "publisher"

	// lockTTL bounds how long a crashed publisher blocks the next one
	lockTTL = 10 * time.Minute

	// artifacts live under this directory inside the content repo
	dataDir = "data"

	releaseTimeout = 10 * time.Second
)

// Publisher materialises the canonical store into distributable
// artifacts and commits them to an external git repository, on a
// schedule and on demand.
type Publisher struct {
	store  storage.Store
	broker *broker.Broker
	state  *State
	cfg    config.PublisherConfig
	events *events.Broker
	repo   *gitRepo
	cron   *cron.Cron
	log    zerolog.Logger

	// serialises cron and manual triggers within this process; the
	// broker lock serialises across processes
	mu sync.Mutex
}

// New wires a publisher. State must stay open for the publisher's
// lifetime.
func New(store storage.Store, b *broker.Broker, state *State, cfg config.PublisherConfig, ev *events.Broker) *Publisher {
	logger := log.WithComponent("publisher")
	return &Publisher{
		store:  store,
		broker: b,
		state:  state,
		cfg:    cfg,
		events: ev,
		log:    logger,
		repo: &gitRepo{
			dir:    cfg.WorkDir,
			url:    cfg.RepoURL,
			branch: cfg.Branch,
			author: cfg.AuthorName,
			email:  cfg.AuthorEmail,
			log:    logger,
		},
	}
}

// Start schedules periodic cycles. A non-positive interval disables
// the schedule; Publish still works on demand.
func (p *Publisher) Start() {
	if p.cfg.IntervalSecs <= 0 {
		p.log.Info().Msg("no publish interval configured, manual trigger only")
		return
	}
	p.cron = cron.New()
	_, err := p.cron.AddFunc(fmt.Sprintf("@every %ds", p.cfg.IntervalSecs), func() {
		if _, err := p.Publish(context.Background()); err != nil && !errors.Is(err, broker.ErrLockHeld) {
			p.log.Error().Err(err).Msg("scheduled publish failed")
		}
	})
	if err != nil {
		p.log.Error().Err(err).Msg("scheduling publish cycles failed")
		return
	}
	p.cron.Start()
	p.log.Info().Dur("interval", p.cfg.Interval()).Msg("publisher schedule started")
}

// Stop halts the schedule and waits for a running cycle to finish
func (p *Publisher) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// Publish runs one cycle: snapshot, guard, stage, commit, push.
// Returns broker.ErrLockHeld when another publisher owns the lock;
// callers treat that as "skip", not failure.
func (p *Publisher) Publish(ctx context.Context) (*CycleRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, err := p.broker.AcquireLock(ctx, lockName, lockTTL)
	if err != nil {
		if errors.Is(err, broker.ErrLockHeld) {
			metrics.PublishCycles.WithLabelValues("skipped").Inc()
			p.log.Info().Msg("another publisher holds the lock, skipping cycle")
		}
		return nil, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := lock.Release(rctx); err != nil {
			p.log.Error().Err(err).Msg("releasing publisher lock failed")
		}
	}()

	timer := metrics.NewTimer()
	rec, err := p.cycle(ctx)
	metrics.PublishDuration.Observe(timer.Duration().Seconds())

	if err != nil {
		var rerr *RatchetError
		if errors.As(err, &rerr) {
			metrics.PublishCycles.WithLabelValues("guard_abort").Inc()
			p.log.Error().Err(err).Msg("publish aborted, snapshot shrank below the ratchet floor")
			if p.events != nil {
				p.events.Emit(events.EventPublishGuardAbort, rerr.Error(), map[string]string{
					"entity": rerr.Entity,
					"count":  strconv.FormatInt(rerr.Count, 10),
					"floor":  strconv.FormatInt(rerr.Floor, 10),
				})
			}
		} else {
			metrics.PublishCycles.WithLabelValues("error").Inc()
			p.log.Error().Err(err).Msg("publish cycle failed")
		}
		return nil, err
	}

	metrics.PublishCycles.WithLabelValues("published").Inc()
	publishGauges(rec.Counts)
	if p.events != nil {
		p.events.Emit(events.EventSnapshotPublished, "snapshot published", map[string]string{
			"commit": rec.Commit,
			"rows":   strconv.FormatInt(rec.Counts.Total(), 10),
		})
	}
	p.log.Info().Str("commit", rec.Commit).Int64("rows", rec.Counts.Total()).
		Msg("snapshot published")
	return rec, nil
}

func (p *Publisher) cycle(ctx context.Context) (*CycleRecord, error) {
	var ds *Dataset
	err := p.store.Snapshot(ctx, func(v *storage.View) error {
		var cerr error
		ds, cerr = collect(ctx, v)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("collecting snapshot: %w", err)
	}

	hw, err := p.state.HighWater()
	if err != nil {
		return nil, err
	}
	if err := checkRatchet(ds.Counts, hw, p.cfg.RatchetFraction); err != nil {
		if !p.cfg.RatchetOverride {
			return nil, err
		}
		p.log.Warn().Err(err).Msg("ratchet override active, publishing shrunken snapshot")
	}

	if err := p.repo.ensure(ctx); err != nil {
		return nil, err
	}
	if err := p.repo.sync(ctx); err != nil {
		return nil, err
	}
	if err := writeArtifacts(ctx, filepath.Join(p.cfg.WorkDir, dataDir), ds); err != nil {
		return nil, err
	}

	changed, stats, err := p.repo.stage(ctx, dataDir)
	if err != nil {
		return nil, err
	}

	commit := p.repo.head(ctx)
	if changed {
		commit, err = p.repo.commit(ctx, commitMessage(ds.Counts, stats))
		if err != nil {
			return nil, err
		}
		if p.cfg.Push {
			if err := p.repo.push(ctx); err != nil {
				return nil, err
			}
		}
	} else {
		p.log.Info().Msg("snapshot unchanged since last publish")
	}

	rec := &CycleRecord{
		PublishedAt: time.Now().UTC(),
		Commit:      commit,
		Counts:      ds.Counts,
	}
	if err := p.state.RecordCycle(rec, p.cfg.RatchetOverride); err != nil {
		return nil, err
	}
	return rec, nil
}

// commitMessage is the structured publish commit: total on the subject
// line, per-entity counts and staged diff stats in the body
func commitMessage(c storage.Counts, stats string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot: %d rows\n\n", c.Total())
	fmt.Fprintf(&b, "organizations: %d\n", c.Organizations)
	fmt.Fprintf(&b, "locations: %d\n", c.Locations)
	fmt.Fprintf(&b, "services: %d\n", c.Services)
	fmt.Fprintf(&b, "service_at_location: %d\n", c.ServiceAtLocations)
	fmt.Fprintf(&b, "schedules: %d\n", c.Schedules)
	if stats != "" {
		fmt.Fprintf(&b, "\n%s\n", stats)
	}
	return b.String()
}

func publishGauges(c storage.Counts) {
	metrics.PublishedEntities.WithLabelValues("organizations").Set(float64(c.Organizations))
	metrics.PublishedEntities.WithLabelValues("locations").Set(float64(c.Locations))
	metrics.PublishedEntities.WithLabelValues("services").Set(float64(c.Services))
	metrics.PublishedEntities.WithLabelValues("service_at_location").Set(float64(c.ServiceAtLocations))
	metrics.PublishedEntities.WithLabelValues("schedules").Set(float64(c.Schedules))
}
