package contentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleio/ladle/pkg/broker"
	"github.com/ladleio/ladle/pkg/queue"
	"github.com/ladleio/ladle/pkg/types"
	"github.com/ladleio/ladle/pkg/worker"
)

func newTestIntake(t *testing.T) (*Intake, sqlmock.Sqlmock, *queue.Queue, *miniredis.Miniredis) {
	t.Helper()
	store, mock := newMockStore(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	llmQ := queue.New(broker.NewWithClient(rdb), queue.LLM, time.Minute)

	return NewIntake(store, llmQ, nil), mock, llmQ, mr
}

func expectNewSubmission(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT job_id, status FROM content_records WHERE hash = $1 FOR UPDATE")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestIntakeSubmitNewEnqueuesAlignJob(t *testing.T) {
	intake, mock, llmQ, _ := newTestIntake(t)
	payload := []byte(`{"name": "Harlem Community Kitchen"}`)

	expectNewSubmission(mock)

	res, err := intake.Submit(context.Background(), payload, testMeta())
	require.NoError(t, err)
	require.True(t, res.WasNew)

	d, err := llmQ.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d, "a new payload must produce an alignment job")
	assert.Equal(t, res.JobID, d.JobID, "enqueue carries the job id for the idempotency guard")

	var job types.AlignJob
	require.NoError(t, json.Unmarshal(d.Body, &job))
	assert.Equal(t, res.JobID, job.JobID)
	assert.Equal(t, HashOf(payload), job.ContentHash)
	assert.Equal(t, "nyc_efap", job.ScraperID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakeSubmitDuplicateSkipsQueue(t *testing.T) {
	intake, mock, llmQ, _ := newTestIntake(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT job_id, status FROM content_records")).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "status"}).AddRow("job-original", "pending"))
	mock.ExpectCommit()

	res, err := intake.Submit(context.Background(), []byte(`{"name": "seen before"}`), testMeta())
	require.NoError(t, err)
	assert.False(t, res.WasNew)
	assert.Equal(t, "job-original", res.JobID)

	depths, err := llmQ.Depths(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depths.Total(), "duplicates must not reach the llm queue")
}

func TestIntakeResetsRecordWhenEnqueueFails(t *testing.T) {
	intake, mock, _, mr := newTestIntake(t)
	payload := []byte(`{"name": "unlucky"}`)
	hash := HashOf(payload)

	expectNewSubmission(mock)
	// the recovery path returns the record to new
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_records SET status = 'new'")).
		WithArgs(hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mr.Close()

	_, err := intake.Submit(context.Background(), payload, testMeta())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ErrKindTransient))
	assert.NoError(t, mock.ExpectationsWereMet(), "Reset must run after a failed enqueue")
}

func intakeDelivery(t *testing.T, job types.IntakeJob, attempts int) *queue.Delivery {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return &queue.Delivery{Message: queue.Message{ID: "msg-1", JobID: "job-1", Body: body, Attempts: attempts}}
}

func TestHandleMalformedEnvelope(t *testing.T) {
	intake, _, _, _ := newTestIntake(t)
	h := NewHandler(intake)

	d := &queue.Delivery{Message: queue.Message{ID: "msg-1", Body: []byte("not json"), Attempts: 1}}
	out := h.Handle(context.Background(), d)
	assert.Equal(t, worker.OutcomeDeadLetter, out.Kind)
	assert.Contains(t, out.Reason, "malformed intake envelope")
}

func TestHandleEnvelopeWithoutPayload(t *testing.T) {
	intake, _, _, _ := newTestIntake(t)
	h := NewHandler(intake)

	out := h.Handle(context.Background(), intakeDelivery(t, types.IntakeJob{Meta: testMeta()}, 1))
	assert.Equal(t, worker.OutcomeDeadLetter, out.Kind)
	assert.Contains(t, out.Reason, "no payload")
}

func TestHandleEnvelopeWithoutScraperID(t *testing.T) {
	intake, _, _, _ := newTestIntake(t)
	h := NewHandler(intake)

	out := h.Handle(context.Background(), intakeDelivery(t, types.IntakeJob{Payload: []byte("{}")}, 1))
	assert.Equal(t, worker.OutcomeDeadLetter, out.Kind)
	assert.Contains(t, out.Reason, "no scraper id")
}

func TestHandleEnvelopeSubmitsAndAcks(t *testing.T) {
	intake, mock, llmQ, _ := newTestIntake(t)
	h := NewHandler(intake)

	expectNewSubmission(mock)

	job := types.IntakeJob{Payload: []byte(`{"name": "Bronx Mobile Pantry"}`), Meta: testMeta()}
	out := h.Handle(context.Background(), intakeDelivery(t, job, 1))
	assert.Equal(t, worker.OutcomeAck, out.Kind)

	depths, err := llmQ.Depths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), depths.Ready)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleRetriesWhenStoreUnavailable(t *testing.T) {
	intake, mock, _, _ := newTestIntake(t)
	h := NewHandler(intake)

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	job := types.IntakeJob{Payload: []byte(`{"name": "try later"}`), Meta: testMeta()}
	out := h.Handle(context.Background(), intakeDelivery(t, job, 2))
	assert.Equal(t, worker.OutcomeRetry, out.Kind)
	assert.Equal(t, 10*time.Second, out.Delay, "second attempt doubles the base delay")
}
