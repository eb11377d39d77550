package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e.EventType)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, NoOpSink{}, nil)
	assert.Nil(t, d)
	d.Emit(context.Background(), NewEvent("login", true))
	d.Close()
	assert.Zero(t, d.Dropped())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), NewEvent("login", true))
	}
	assert.Positive(t, d.Dropped())

	close(sink.release)
	d.Close()
	assert.Equal(t, uint64(10), d.Dropped()+d.Delivered())
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink, nil)
	for _, typ := range []string{"login", "token_refreshed", "logout"} {
		d.Emit(context.Background(), NewEvent(typ, true))
	}
	d.Close()
	d.Emit(context.Background(), NewEvent("late", true))

	var got []string
	for len(sink.Events()) > 0 {
		got = append(got, (<-sink.Events()).EventType)
	}
	assert.Equal(t, []string{"login", "token_refreshed", "logout"}, got)
}

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("boom") }

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, MultiSink{panicSink{}}, nil)
	d.Emit(context.Background(), NewEvent("login", true))
	d.Close()
	assert.Zero(t, d.Delivered())
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	e := NewEvent("logout", true)
	e.UserID = "12"
	e.Reason = "idle_timeout"
	s.Emit(context.Background(), e)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "idle_timeout", decoded.Reason)
	assert.Len(t, decoded.ID, 36)
}

type fakePublisher struct {
	err  error
	msgs []amqp.Publishing
	keys []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	p.keys = append(p.keys, exchange+"/"+key)
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestAMQPSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewAMQPSink(pub, "", "", nil)
	e := NewEvent("refresh_failed", false)
	e.Error = "refresh failed"
	s.Emit(context.Background(), e)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "/"+DefaultAMQPQueue, pub.keys[0])
	msg := pub.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, e.ID, msg.MessageId)
	assert.Equal(t, "refresh_failed", msg.Type)
	assert.WithinDuration(t, e.Timestamp, msg.Timestamp, time.Second)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "refresh failed", decoded.Error)
	assert.NoError(t, s.Close())
}

func TestAMQPSinkCountsFailures(t *testing.T) {
	pub := &fakePublisher{err: amqp.ErrClosed}
	s := NewAMQPSink(pub, "audit", "session.events", nil)
	var failures int
	s.OnFailure(func() { failures++ })
	s.Emit(context.Background(), NewEvent("login", true))
	assert.Equal(t, 1, failures)
	assert.Equal(t, []string{"audit/session.events"}, pub.keys)
}

func TestDialAMQPSinkRejectsEmptyURL(t *testing.T) {
	_, err := DialAMQPSink("", "", "", nil)
	require.Error(t, err)
}
