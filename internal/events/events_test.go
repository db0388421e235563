package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/batepapo/internal/models"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	req := require.New(t)
	boom := errors.New("boom")
	a, b, c := &recorder{}, &recorder{err: boom}, &recorder{}

	ev := Event{Kind: KindPosted, Message: models.Message{ID: "1", From: "ana"}}
	err := Multi{a, b, c}.Publish(context.Background(), ev)

	req.ErrorIs(err, boom)
	req.Len(a.events, 1)
	req.Len(b.events, 1)
	req.Len(c.events, 1, "a failing publisher does not stop the others")
}

func TestMultiWithoutErrors(t *testing.T) {
	require.NoError(t, Multi{Nop{}, &recorder{}}.Publish(context.Background(), Event{}))
}

func TestToKafkaMessage(t *testing.T) {
	req := require.New(t)
	ev := Event{Kind: KindLeft, Message: *models.NewStatus("ana", models.StatusLeft)}

	msg, err := toKafkaMessage(ev)
	req.NoError(err)
	req.Equal("ana", string(msg.Key))
	req.Equal("kind", msg.Headers[0].Key)
	req.Equal("left", string(msg.Headers[0].Value))

	var decoded Event
	req.NoError(json.Unmarshal(msg.Value, &decoded))
	req.Equal(ev, decoded)
}
