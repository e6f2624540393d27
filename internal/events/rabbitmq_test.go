package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/model"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	if exchange != ExchangeName {
		return errors.New("wrong exchange " + exchange)
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQ_PublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newRabbitMQ(ch)

	photo := &model.Photo{ID: "p1", OwnerID: "u1", BlobID: "b1", Filename: "new.jpg"}
	require.NoError(t, p.Publish(context.Background(), PhotoRenamed(photo, "old.jpg")))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, TypePhotoRenamed, ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "p1", got.PhotoID)
	assert.Equal(t, "old.jpg", got.Previous)
	assert.Equal(t, "new.jpg", got.Filename)
}

func TestRabbitMQ_PublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := newRabbitMQ(ch)

	err := p.Publish(context.Background(), ConsistencyAlert("partial_delete_failure", "p1", "b1", "boom"))
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestRabbitMQ_Close(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, newRabbitMQ(ch).Close())
	assert.True(t, ch.closed)
}
