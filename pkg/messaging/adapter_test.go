package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

type chanBroker struct {
	ch  chan []byte
	err error
}

func (b *chanBroker) Publish(context.Context, string, interface{}) error { return nil }
func (b *chanBroker) Ping(context.Context) error                         { return nil }
func (b *chanBroker) Close() error                                       { return nil }

func (b *chanBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, b.err
}

func TestConsume_DecodesAndSkipsBadMessages(t *testing.T) {
	id := uuid.New()
	b := &chanBroker{ch: make(chan []byte, 3)}
	b.ch <- []byte("not json")
	b.ch <- []byte(`{"id":"` + id.String() + `","type":"REPORT_GENERATED","payload":{"kind":"patient"}}`)
	close(b.ch)

	var got []Message
	err := Consume(context.Background(), b, "reports.generated", logger.Nop(), func(m Message) error {
		got = append(got, m)
		return errors.New("ignored")
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "REPORT_GENERATED", got[0].Type)
	assert.JSONEq(t, `{"kind":"patient"}`, string(got[0].Payload))
}

func TestConsume_SubscribeError(t *testing.T) {
	b := &chanBroker{err: errors.New("down")}
	err := Consume(context.Background(), b, "x", logger.Nop(), func(Message) error { return nil })
	assert.ErrorContains(t, err, "down")
}

func TestConsume_StopsOnContextCancel(t *testing.T) {
	b := &chanBroker{ch: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Consume(ctx, b, "x", logger.Nop(), func(Message) error { return nil }))
}
