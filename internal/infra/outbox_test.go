package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	events   []domain.OutboxDraft
	fetchErr error
	marked   []int64
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxDraft, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []int64) error {
	f.marked = append(f.marked, ids...)
	return nil
}

func TestOutboxPoller_PollOnceMarksBatch(t *testing.T) {
	src := &fakeOutbox{events: []domain.OutboxDraft{
		{SeqID: 1, EventID: uuid.New(), EventType: domain.EventWalletTxPosted, OccurredAt: time.Now()},
		{SeqID: 2, EventID: uuid.New(), EventType: domain.EventPaymentSettled, OccurredAt: time.Now()},
		{SeqID: 3, EventID: uuid.New(), EventType: domain.EventOrderProcessing, OccurredAt: time.Now()},
	}}
	producer := NewKafkaProducer("", false, testLogger())
	p := NewOutboxPoller(src, producer, "ledger.events", time.Second, 2, testLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, src.marked)
}

func TestOutboxPoller_EmptyBatch(t *testing.T) {
	src := &fakeOutbox{}
	p := NewOutboxPoller(src, NewKafkaProducer("", false, testLogger()), "t", 0, 0, testLogger())

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, src.marked)
}

func TestOutboxPoller_FetchError(t *testing.T) {
	src := &fakeOutbox{fetchErr: errors.New("db down")}
	p := NewOutboxPoller(src, NewKafkaProducer("", false, testLogger()), "t", 0, 0, testLogger())

	_, err := p.PollOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}
