package pipeline

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/config"
	"github.com/ladleio/ladle/pkg/contentstore"
	"github.com/ladleio/ladle/pkg/events"
	"github.com/ladleio/ladle/pkg/log"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/storage"
)

// newTestRuntime builds a Runtime over miniredis without going through
// New, which would dial Postgres.
func newTestRuntime(t *testing.T, opts Options) *Runtime {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := broker.NewWithClient(rdb)

	cfg := config.Default()
	cfg.LLM.Provider = "mock"

	return &Runtime{
		cfg:    cfg,
		opts:   opts,
		log:    log.WithComponent("pipeline"),
		broker: b,
		events: events.NewBroker(),
		queues: queue.NewSet(b, time.Minute),
	}
}

type poolFixture struct {
	store   *storage.PostgresStore
	content *contentstore.Store
	intake  *contentstore.Intake
}

func newPoolFixture(t *testing.T, r *Runtime) poolFixture {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sdb := sqlx.NewDb(db, "sqlmock")

	content, err := contentstore.New(sdb, t.TempDir())
	require.NoError(t, err)
	return poolFixture{
		store:   storage.NewPostgres(sdb),
		content: content,
		intake:  contentstore.NewIntake(content, r.queues.LLM, r.events),
	}
}

func TestDefaultStagesCoverPipeline(t *testing.T) {
	r := newTestRuntime(t, Options{})

	active, err := r.activeStages()
	require.NoError(t, err)
	assert.Equal(t, []string{queue.Intake, queue.LLM, queue.Validator, queue.Reconciler}, active)
}

func TestWorkerOptionsSelectStages(t *testing.T) {
	r := newTestRuntime(t, WorkerOptions(queue.LLM, queue.Validator))

	active, err := r.activeStages()
	require.NoError(t, err)
	assert.Equal(t, []string{queue.LLM, queue.Validator}, active)
}

func TestUnknownQueueIsRejected(t *testing.T) {
	r := newTestRuntime(t, WorkerOptions(queue.LLM, "resizer"))

	_, err := r.activeStages()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resizer")
}

func TestBuildPoolsWiresOnlyActiveStages(t *testing.T) {
	r := newTestRuntime(t, WorkerOptions(queue.Reconciler))
	fx := newPoolFixture(t, r)

	var err error
	r.active, err = r.activeStages()
	require.NoError(t, err)

	// An unbuildable LLM provider must not matter to a reconciler-only
	// worker, which never constructs the aligner
	r.cfg.LLM.Provider = "nope"

	require.NoError(t, r.buildPools(fx.store, fx.content, fx.intake))
	assert.Len(t, r.pools, 1)
}

func TestBuildPoolsCoversEveryStage(t *testing.T) {
	r := newTestRuntime(t, Options{})
	fx := newPoolFixture(t, r)

	var err error
	r.active, err = r.activeStages()
	require.NoError(t, err)

	require.NoError(t, r.buildPools(fx.store, fx.content, fx.intake))
	assert.Len(t, r.pools, 4)
}

func TestServerOptions(t *testing.T) {
	opts := ServerOptions("1.2.3")
	assert.True(t, opts.API)
	assert.True(t, opts.Publisher)
	assert.Empty(t, opts.Queues)
	assert.Equal(t, "1.2.3", opts.Version)
}
