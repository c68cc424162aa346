package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/continuousdoc/internal/history"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func TestNATSNotifier_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := &NATSNotifier{pub: pub, subject: "continuousdoc.units"}

	e := history.NewUnitEvent(4, "guide", "built")
	e.Formats = map[string]string{"html": "success"}
	require.NoError(t, n.Notify(context.Background(), e))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "continuousdoc.units", pub.msgs[0].subject)
	var got history.UnitEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "built", got.Outcome)
	assert.Equal(t, 4, got.RunNumber)
	assert.NoError(t, n.Close())
}

func TestNATSNotifier_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	n := &NATSNotifier{pub: pub, subject: "s"}
	assert.Error(t, n.Notify(context.Background(), history.NewUnitEvent(1, "guide", "built")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, history.NewUnitEvent(1, "guide", "built")), context.Canceled)
}

func TestNewNATSNotifier_ConnectFailure(t *testing.T) {
	_, err := NewNATSNotifier("nats://127.0.0.1:1", "s", nil)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	assert.NoError(t, n.Notify(context.Background(), history.UnitEvent{}))
	assert.NoError(t, n.Close())
}
