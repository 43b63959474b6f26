package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeReader serves queued messages and then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.committed = append(r.committed, msgs...)
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingDLQ struct {
	mu     sync.Mutex
	causes []error
}

func (d *recordingDLQ) Publish(_ context.Context, _ kafka.Message, cause error, _ string) error {
	d.mu.Lock()
	d.causes = append(d.causes, cause)
	d.mu.Unlock()
	return nil
}

func (d *recordingDLQ) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.causes)
}

func mustEventMessage(t *testing.T, topic string) kafka.Message {
	t.Helper()
	event, err := NewEvent("beta.signup_requested", "a@example.com", "beta_signup", "xxvpn-api", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: raw}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "xxvpn.dao.vote_cast", Topic("dao", "vote_cast"))
	assert.Equal(t, "xxvpn.dlq.xxvpn.dao.vote_cast", DLQTopic("xxvpn.dao.vote_cast"))
}

func TestNewEvent_Fields(t *testing.T) {
	event, err := NewEvent("dao.vote_cast", "prop-1", "proposal", "xxvpn-api", map[string]int64{"power": 5})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "dao.vote_cast", event.EventType)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var data map[string]int64
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, int64(5), data["power"])
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("x", "a", "t", "s", make(chan int))
	require.Error(t, err)
}

func TestUnmarshalEvent(t *testing.T) {
	t.Run("round trip keeps metadata", func(t *testing.T) {
		event, err := NewEvent("auth.twofa_verified", "u1", "user", "xxvpn-api", nil)
		require.NoError(t, err)
		event.WithCorrelationID("corr-1").WithMetadata("ip", "10.0.0.1")

		raw, err := event.Marshal()
		require.NoError(t, err)
		got, err := UnmarshalEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, event.EventID, got.EventID)
		assert.Equal(t, "corr-1", got.CorrelationID)
		assert.Equal(t, "10.0.0.1", got.Metadata["ip"])
	})

	t.Run("missing type rejected", func(t *testing.T) {
		_, err := UnmarshalEvent([]byte(`{"event_id":"e1"}`))
		require.Error(t, err)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := UnmarshalEvent([]byte(`not json`))
		require.Error(t, err)
	})
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, testLogger())

	event, err := NewEvent("subscription.updated", "u1", "subscription", "xxvpn-api", map[string]string{"tier": "premium"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(context.Background(), "xxvpn.subscription.updated", event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "xxvpn.subscription.updated", msg.Topic)
	assert.Equal(t, []byte("u1"), msg.Key)

	headers := headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "subscription.updated", headers.Get("event_type"))
	assert.Equal(t, "corr-9", headers.Get("correlation_id"))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, nil, testLogger())

	event, err := NewEvent("x.y", "a", "t", "s", nil)
	require.NoError(t, err)
	err = p.Publish(context.Background(), "xxvpn.x.y", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	require.Error(t, PingBrokers(context.Background(), nil))
}

func TestDLQProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	d := NewDLQProducerWithWriter(w, testLogger())

	src := kafka.Message{Topic: "xxvpn.beta.signup_requested", Partition: 2, Offset: 41, Key: []byte("k"), Value: []byte("v")}
	require.NoError(t, d.Publish(context.Background(), src, errors.New("smtp timeout"), "xxvpn-mailer"))
	require.Len(t, w.msgs, 1)

	out := w.msgs[0]
	assert.Equal(t, "xxvpn.dlq.xxvpn.beta.signup_requested", out.Topic)
	assert.Equal(t, []byte("v"), out.Value)

	headers := headerCarrier{headers: &out.Headers}
	assert.Equal(t, "xxvpn.beta.signup_requested", headers.Get("dlq.original_topic"))
	assert.Equal(t, "2", headers.Get("dlq.original_partition"))
	assert.Equal(t, "41", headers.Get("dlq.original_offset"))
	assert.Equal(t, "xxvpn-mailer", headers.Get("dlq.consumer_group"))
	assert.Equal(t, "smtp timeout", headers.Get("dlq.error"))
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafka.Header
	c := headerCarrier{headers: &headers}

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("tracestate", "x")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
	assert.Len(t, headers, 2)
}

func runConsumer(t *testing.T, c *Consumer, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return r.commits() >= want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{mustEventMessage(t, "t1"), mustEventMessage(t, "t1")}}
	var handled atomic.Int32
	c := NewConsumerWithReader(r, ConsumerConfig{Topic: "t1", GroupID: "g"}, func(_ context.Context, e *Event) error {
		handled.Add(1)
		assert.Equal(t, "beta.signup_requested", e.EventType)
		return nil
	}, testLogger())

	runConsumer(t, c, r, 2)
	assert.Equal(t, int32(2), handled.Load())
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{mustEventMessage(t, "t2")}}
	dlq := &recordingDLQ{}
	var attempts atomic.Int32
	c := NewConsumerWithReader(r, ConsumerConfig{Topic: "t2", GroupID: "g", MaxRetries: 3, RetryWait: time.Millisecond},
		func(context.Context, *Event) error {
			attempts.Add(1)
			return errors.New("boom")
		}, testLogger()).WithDLQ(dlq)

	runConsumer(t, c, r, 1)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 1, dlq.count())
}

func TestConsumer_UndecodableGoesToDLQ(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: "t3", Value: []byte("{")}}}
	dlq := &recordingDLQ{}
	var called atomic.Bool
	c := NewConsumerWithReader(r, ConsumerConfig{Topic: "t3", GroupID: "g"}, func(context.Context, *Event) error {
		called.Store(true)
		return nil
	}, testLogger()).WithDLQ(dlq)

	runConsumer(t, c, r, 1)
	assert.False(t, called.Load())
	assert.Equal(t, 1, dlq.count())
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "e1"))
	seen, _ = store.Contains(ctx, "e1")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = store.Contains(ctx, "e1")
	assert.False(t, seen)
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisIdempotencyStore(client, "processed", time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "e1"))
	seen, err := store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("processed:e1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.Contains(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotentHandler(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour)
	var calls int
	fail := true
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	event := &Event{EventID: "e1", EventType: "beta.signup_requested"}
	ctx := context.Background()

	require.Error(t, h(ctx, event))
	fail = false
	require.NoError(t, h(ctx, event))
	require.NoError(t, h(ctx, event))
	assert.Equal(t, 2, calls)
}
