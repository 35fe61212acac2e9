package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	ctx := context.Background()

	data := []byte("hello")
	require.NoError(t, p.Publish(ctx, "a.b", data))
	data[0] = 'j'

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a.b", msgs[0].Subject)
	assert.Equal(t, "hello", string(msgs[0].Data))

	boom := errors.New("down")
	p.FailWith(boom)
	assert.ErrorIs(t, p.Publish(ctx, "a.b", nil), boom)
	assert.Len(t, p.Messages(), 1)
}

func TestLogPublisher(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	p := NewLogPublisher(log)
	require.NoError(t, p.Publish(context.Background(), "workflow.outbox.email", []byte(`{"to":"x"}`)))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "workflow.outbox.email", entry.Data["subject"])
	assert.Equal(t, `{"to":"x"}`, entry.Message)
	assert.NoError(t, p.Close())
}

func TestConnectNATSFails(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := ConnectNATS("nats://127.0.0.1:1", log)
	assert.Error(t, err)
}
