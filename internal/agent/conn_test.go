// ABOUTME: Tests for Conn queueing, sequencing, liveness tracking, and close semantics.
// ABOUTME: Includes the full-queue boundary and sequence monotonicity under concurrency.

package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/meta-orchestrator/proto/pulse"
)

func TestConn_NextSeqStartsAtOne(t *testing.T) {
	conn := NewConn("A1", 0)
	assert.Equal(t, uint64(1), conn.NextSeq())
	assert.Equal(t, uint64(2), conn.NextSeq())
	assert.Equal(t, uint64(3), conn.NextSeq())
}

func TestConn_NextSeqConcurrentUnique(t *testing.T) {
	conn := NewConn("A1", 0)
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				n := conn.NextSeq()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestConn_QueueFull(t *testing.T) {
	conn := NewConn("A1", DefaultQueueCapacity)

	for i := range DefaultQueueCapacity {
		require.NoError(t, conn.Enqueue(NewDirective(pulse.DirectiveTypeAck, "")), "enqueue %d", i)
	}
	err := conn.Enqueue(NewDirective(pulse.DirectiveTypeAck, "overflow"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, DefaultQueueCapacity, conn.QueueLen())
}

func TestConn_FIFO(t *testing.T) {
	conn := NewConn("A1", 10)
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, conn.Enqueue(NewDirective(pulse.DirectiveTypeAck, msg)))
	}

	ctx := context.Background()
	for _, want := range []string{"one", "two", "three"} {
		d, err := conn.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, d.Message)
	}
}

func TestConn_NextHonorsContext(t *testing.T) {
	conn := NewConn("A1", 10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_Close(t *testing.T) {
	conn := NewConn("A1", 10)
	assert.False(t, conn.Closed())

	result := make(chan error, 1)
	go func() {
		_, err := conn.Next(context.Background())
		result <- err
	}()

	conn.Close()
	conn.Close()

	select {
	case err := <-result:
		assert.True(t, errors.Is(err, ErrConnClosed))
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
	assert.True(t, conn.Closed())
	assert.ErrorIs(t, conn.Enqueue(NewDirective(pulse.DirectiveTypeAck, "")), ErrConnClosed)
}

func TestConn_Touch(t *testing.T) {
	conn := NewConn("A1", 0)
	later := conn.ConnectedAt.Add(30 * time.Second)

	assert.Equal(t, uint64(1), conn.Touch(later))
	assert.Equal(t, uint64(2), conn.Touch(later))
	assert.Equal(t, uint64(2), conn.PulseCount())
	assert.True(t, conn.LastPulseAt().Equal(later))
	assert.Equal(t, 5*time.Second, conn.IdleFor(later.Add(5*time.Second)))
}

func TestConn_Status(t *testing.T) {
	conn := NewConn("A1", 0)
	assert.Equal(t, pulse.AgentStatusIdle, conn.Status())
	conn.SetStatus(pulse.AgentStatusBusy)
	assert.Equal(t, pulse.AgentStatusBusy, conn.Status())
}

func TestConn_SessionUniquePerStream(t *testing.T) {
	a, b := NewConn("A1", 0), NewConn("A1", 0)
	assert.NotEmpty(t, a.Session)
	assert.NotEqual(t, a.Session, b.Session)
}
