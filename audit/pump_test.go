package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/sania-talib/api-gateway-project/errors"
	"github.com/sania-talib/api-gateway-project/pkg/retry"
)

// blockingSink parks every Write until release is closed, so tests can
// hold the worker busy and fill the queue deterministically.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	recs []Record
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Write(_ context.Context, rec Record) error {
	s.entered <- struct{}{}
	<-s.release

	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

func quickRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestPump_DeliversAcceptedRecords(t *testing.T) {
	sink := NewMemorySink(16)
	pump := NewPump(sink, 2, 8)

	require.NoError(t, pump.Start(context.Background()))

	for i := 0; i < 5; i++ {
		rec := testRecord(200)
		rec.ResponseTimeMs = int64(i)
		assert.NoError(t, pump.Write(context.Background(), rec))
	}

	require.NoError(t, pump.Stop(5*time.Second))
	assert.Equal(t, 5, sink.Len(), "stop should drain every accepted record")
}

func TestPump_FullQueueDropsWithoutBlocking(t *testing.T) {
	sink := newBlockingSink()
	pump := NewPump(sink, 1, 2)

	require.NoError(t, pump.Start(context.Background()))
	ctx := context.Background()

	// Occupy the only worker.
	require.NoError(t, pump.Write(ctx, testRecord(200)))
	<-sink.entered

	// Fill the queue, then overflow it.
	require.NoError(t, pump.Write(ctx, testRecord(200)))
	require.NoError(t, pump.Write(ctx, testRecord(200)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, pump.Write(ctx, testRecord(200)), "overflow must not surface an error")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked on a full queue")
	}

	assert.Equal(t, int64(1), pump.Stats().Dropped)

	close(sink.release)
	require.NoError(t, pump.Stop(5*time.Second))
	assert.Len(t, sink.records(), 3, "accepted records should still drain")
}

func TestPump_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	sink := SinkFunc(func(context.Context, Record) error {
		if attempts.Add(1) < 3 {
			return gwerrors.WrapTransient(gwerrors.ErrStorageUnavailable, "store", "Write", "insert record")
		}
		return nil
	})

	pump := NewPump(sink, 1, 4, WithRetryConfig(quickRetry()))
	require.NoError(t, pump.Start(context.Background()))

	require.NoError(t, pump.Write(context.Background(), testRecord(200)))
	require.NoError(t, pump.Stop(5*time.Second))

	assert.Equal(t, int32(3), attempts.Load(), "transient failures should be retried")
	assert.Equal(t, int64(0), pump.Stats().Failed)
}

func TestPump_DoesNotRetryInvalidRecords(t *testing.T) {
	var attempts atomic.Int32
	sink := SinkFunc(func(context.Context, Record) error {
		attempts.Add(1)
		return gwerrors.WrapInvalid(gwerrors.ErrInvalidData, "sink", "Write", "encode record")
	})

	pump := NewPump(sink, 1, 4, WithRetryConfig(quickRetry()))
	require.NoError(t, pump.Start(context.Background()))

	require.NoError(t, pump.Write(context.Background(), testRecord(200)))
	require.NoError(t, pump.Stop(5*time.Second))

	assert.Equal(t, int32(1), attempts.Load(), "invalid records must not be retried")
	assert.Equal(t, int64(1), pump.Stats().Failed)
}

func TestPump_WriteBeforeStartIsSilentDrop(t *testing.T) {
	pump := NewPump(NewMemorySink(4), 1, 4)

	// No Start: the processor may race a late record against shutdown;
	// the pump absorbs it rather than erroring the response path.
	assert.NoError(t, pump.Write(context.Background(), testRecord(200)))
}

func TestPump_Defaults(t *testing.T) {
	pump := NewPump(NewMemorySink(4), 0, 0)
	stats := pump.Stats()
	assert.Equal(t, DefaultWorkers, stats.Workers)
	assert.Equal(t, DefaultQueueSize, stats.QueueSize)
}
