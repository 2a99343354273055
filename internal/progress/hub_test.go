package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	block   chan struct{}
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *stubSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func sampleEvent(stage Stage) Event {
	return Event{
		SessionID: UUIDToBytes(uuid.New()),
		TS:        time.Now(),
		Stage:     stage,
	}
}

func TestHubFlushesBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:    8,
		BatchSize:     2,
		FlushInterval: time.Minute,
	}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageSessionStart))
	hub.Emit(sampleEvent(StageSessionHeartbeat))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesByInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:    8,
		BatchSize:     100,
		FlushInterval: 20 * time.Millisecond,
	}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageSessionStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{
		BufferSize:    64,
		BatchSize:     100,
		FlushInterval: time.Minute,
	}, sink)

	for i := 0; i < 10; i++ {
		hub.Emit(sampleEvent(StageSessionHeartbeat))
	}
	require.NoError(t, hub.Close(context.Background()))

	assert.Equal(t, 10, sink.total(), "buffered events flushed at close")
	assert.True(t, sink.closed)

	hub.Emit(sampleEvent(StageSessionHeartbeat))
	assert.Equal(t, 10, sink.total(), "emit after close is ignored")
	assert.NoError(t, hub.Close(context.Background()), "close is idempotent")
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(HubConfig{BufferSize: 8, BatchSize: 1, FlushInterval: 10 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(Event{TS: time.Now(), Stage: StageSessionStart}) // missing session id
	hub.Emit(Event{SessionID: UUIDToBytes(uuid.New()), Stage: StageSessionStart})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sink.total())
}

func TestHubDropsUnderBackpressure(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	sink.block = make(chan struct{})
	hub := NewHub(HubConfig{
		BufferSize:    1,
		BatchSize:     1,
		FlushInterval: time.Minute,
	}, sink)

	for i := 0; i < 20; i++ {
		hub.Emit(sampleEvent(StageSessionHeartbeat))
	}
	assert.Positive(t, hub.Dropped()+int64(sink.total()), "either consumed or counted as dropped")
	assert.Positive(t, hub.Dropped(), "a full buffer drops instead of blocking")

	close(sink.block)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubNilSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageSessionStart))
	assert.NoError(t, hub.Close(context.Background()))
}
