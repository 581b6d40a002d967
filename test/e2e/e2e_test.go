// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/config"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/common/observability"
	"soknad-workers/internal/correlation"
	"soknad-workers/internal/models"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"
	"soknad-workers/internal/store"

	sa "soknad-workers/internal/workers/application/submit-application"
	ur "soknad-workers/internal/workers/application/user-response"
	co "soknad-workers/internal/workers/case/case-opened"
	dm "soknad-workers/internal/workers/case/decision-made"
	ol "soknad-workers/internal/workers/fulfillment/order-line"
)

const (
	stream        = "hm-soknadsbehandling-v1"
	applicationID = "62f68547-11ae-418c-8ab7-4d2af985bcd9"
)

type noDecisions struct{}

func (noDecisions) DecisionExists(context.Context, string, models.CaseReference, time.Time) (bool, error) {
	return false, nil
}

type pipeline struct {
	rdb      *redis.Client
	consumer *bus.StreamConsumer
	mock     sqlmock.Sqlmock
}

// newPipeline wires every handler the way the entry point does, over a
// miniredis bus shared by inbound and outbound events and a mocked database.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	m := metrics.NewUnregistered()

	st := store.New(db, log)
	machine := statemachine.New(st, log, m)
	n := notifier.New(bus.NewStreamPublisher(rdb, stream, 1000), log, m)
	engine := correlation.NewEngine(st, noDecisions{}, nil, nil, log, m)

	router := bus.NewRouter(log, m, observability.NewNoop())
	router.Register(sa.TaskType, sa.NewHandler(sa.LoadConfig(), st, n, log), time.Second)
	router.Register(ur.TaskType, ur.NewHandler(ur.LoadConfig(), machine, n, log), time.Second)
	router.Register(co.TaskType, co.NewHandler(co.LoadConfig(), st, machine, n, log), time.Second)
	router.Register(dm.TaskType, dm.NewHandler(dm.LoadConfig(), st, machine, n, log), time.Second)
	router.Register(ol.TaskType, ol.NewHandler(ol.LoadConfig(), st, engine, machine, n, log), time.Second)

	consumer := bus.NewStreamConsumer(rdb, config.BusConfig{
		InboundStream:    stream,
		OutboundStream:   stream,
		DeadLetterStream: stream + "-dlq",
		Group:            "soknad-workers",
		Consumer:         "e2e",
		Workers:          1,
		BlockMs:          10,
		ClaimMinIdleMs:   60000,
		MaxDeliveries:    3,
	}, router, log, m)
	require.NoError(t, consumer.EnsureGroup(context.Background()))

	return &pipeline{rdb: rdb, consumer: consumer, mock: mock}
}

func (p *pipeline) send(t *testing.T, key, raw string) {
	require.NoError(t, bus.NewStreamPublisher(p.rdb, stream, 0).Publish(context.Background(), key, []byte(raw)))
}

// drain polls until the stream has no new messages.
func (p *pipeline) drain(t *testing.T) {
	for i := 0; i < 10; i++ {
		n, err := p.consumer.Poll(context.Background(), "e2e-0")
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
	t.Fatal("stream did not drain")
}

func (p *pipeline) outbound(t *testing.T, eventName string) []models.OutboundEvent {
	entries, err := p.rdb.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)

	var events []models.OutboundEvent
	for _, e := range entries {
		raw, _ := e.Values["value"].(string)
		var event models.OutboundEvent
		if json.Unmarshal([]byte(raw), &event) != nil || event.EventName != eventName {
			continue
		}
		events = append(events, event)
	}
	return events
}

const submission = `{
	"eventName": "nySoknad",
	"eventId": "a4b0f3a6-2d55-4b8e-b2f8-5d1f0c3f9e11",
	"signatur": "BRUKER_BEKREFTER",
	"fnrBruker": "12345678910",
	"soknad": {"soknad": {"id": "` + applicationID + `", "hjelpemidler": {"hjelpemiddelListe": []}}}
}`

func TestSubmission_AwaitsUserConfirmation(t *testing.T) {
	p := newPipeline(t)

	p.mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(
			uuid.MustParse(applicationID),
			"12345678910",
			"12345678910",
			string(models.StatusPendingUserConfirmation),
			"",
			"a4b0f3a6-2d55-4b8e-b2f8-5d1f0c3f9e11",
			sqlmock.AnyArg(), // payload
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p.send(t, "12345678910", submission)
	p.drain(t)

	events := p.outbound(t, models.EventApplicationAwaitingConfirmation)
	require.Len(t, events, 1)
	assert.Equal(t, uuid.MustParse(applicationID), events[0].ApplicationID)
	assert.Equal(t, "12345678910", events[0].SubjectID)
	assert.NotEqual(t, uuid.Nil, events[0].EventID)
	assert.NoError(t, p.mock.ExpectationsWereMet())

	pending, err := p.rdb.XPending(context.Background(), stream, "soknad-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "own outbound events are consumed and acked without effect")
}

func TestSubmission_RedeliveryPublishesOnce(t *testing.T) {
	p := newPipeline(t)

	p.mock.ExpectExec(`INSERT INTO applications`).WillReturnResult(sqlmock.NewResult(0, 1))
	p.mock.ExpectExec(`INSERT INTO applications`).WillReturnResult(sqlmock.NewResult(0, 0))

	p.send(t, "12345678910", submission)
	p.send(t, "12345678910", submission)
	p.drain(t)

	assert.Len(t, p.outbound(t, models.EventApplicationAwaitingConfirmation), 1)
	assert.NoError(t, p.mock.ExpectationsWereMet())
}

func TestUnknownEvents_AreAckedWithoutSideEffects(t *testing.T) {
	p := newPipeline(t)

	p.send(t, "x", `{"eventName": "hm-UkjentHendelse"}`)
	p.send(t, "x", `not json`)
	p.drain(t)

	pending, err := p.rdb.XPending(context.Background(), stream, "soknad-workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
	assert.NoError(t, p.mock.ExpectationsWereMet())
}
