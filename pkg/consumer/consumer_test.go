package consumer

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/talentsearch/pkg/candidate"
)

type fakeIndexer struct {
	upserts []candidate.Candidate
	deletes []string

	upsertErr error
	deleteErr error
}

func (f *fakeIndexer) Upsert(ctx context.Context, c candidate.Candidate) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, c)
	return nil
}

func (f *fakeIndexer) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func newTestConsumer(ix EventIndexer) *Consumer {
	return New("amqp://localhost:5672/", "candidates_events", ix, nil)
}

func delivery(routingKey, body string) amqp.Delivery {
	return amqp.Delivery{RoutingKey: routingKey, Body: []byte(body)}
}

func TestProcess_Created(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyCreated, `{"id":"c1","telegram_id":7,"headline_role":"Backend"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome)

	require.Len(t, ix.upserts, 1)
	assert.Equal(t, "c1", ix.upserts[0].ID)
	assert.Equal(t, int64(7), ix.upserts[0].TelegramID)
}

func TestProcess_UpdatedSharesCreatedPath(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyUpdated, `{"id":"c1","telegram_id":7}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome)
	assert.Len(t, ix.upserts, 1)
}

func TestProcess_Deleted(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyDeleted, `{"id":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome)
	assert.Equal(t, []string{"c1"}, ix.deletes)
}

func TestProcess_DeleteMissingID(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyDeleted, `{}`))
	require.Error(t, err)
	assert.Equal(t, "malformed", outcome)
	assert.Empty(t, ix.deletes)
}

func TestProcess_MalformedPayload(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyCreated, `not json`))
	require.Error(t, err)
	assert.Equal(t, "malformed", outcome)
	assert.Empty(t, ix.upserts)
}

func TestProcess_UnknownRoutingKey(t *testing.T) {
	ix := &fakeIndexer{}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery("candidate.archived", `{"id":"c1"}`))
	require.Error(t, err)
	assert.Equal(t, "malformed", outcome)
	assert.Empty(t, ix.upserts)
	assert.Empty(t, ix.deletes)
}

func TestProcess_IndexerFailure(t *testing.T) {
	ix := &fakeIndexer{upsertErr: errors.New("es down")}
	c := newTestConsumer(ix)

	outcome, err := c.process(context.Background(),
		delivery(routingKeyCreated, `{"id":"c1"}`))
	require.Error(t, err)
	assert.Equal(t, "error", outcome)
}

func TestConnected_FalseBeforeStart(t *testing.T) {
	c := newTestConsumer(&fakeIndexer{})
	assert.False(t, c.Connected())
}

func TestClose_BeforeStart(t *testing.T) {
	c := newTestConsumer(&fakeIndexer{})
	require.NoError(t, c.Close())
}
