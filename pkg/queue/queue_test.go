package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/gocourier/pkg/notifier"
	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *notifier.Notifier) {
	t.Helper()
	n, err := notifier.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return New(n, opts...), n
}

func pushN(t *testing.T, q *Queue, count int) []*task.Task {
	t.Helper()
	tasks := make([]*task.Task, count)
	for i := range tasks {
		tasks[i] = task.New("echo", i, fmt.Sprintf("corr-%d", i))
		require.NoError(t, q.Push(tasks[i]))
	}
	return tasks
}

func TestQueue_Push(t *testing.T) {
	q, _ := newTestQueue(t)

	assert.ErrorIs(t, q.Push(nil), types.ErrNilTask)

	started := task.New("echo", nil, nil)
	require.NoError(t, started.Start(0, time.Now()))
	assert.ErrorIs(t, q.Push(started), types.ErrInvalidTransition)

	pushN(t, q, 3)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, types.QueueStats{Created: 3}, q.Stats())
}

func TestQueue_PushStampsSubmission(t *testing.T) {
	mClock := quartz.NewMock(t)
	at := mClock.Now()

	q, _ := newTestQueue(t, WithClock(mClock))
	tk := task.New("echo", nil, nil)
	require.NoError(t, q.Push(tk))

	assert.Equal(t, at, tk.SubmittedAt())

	mClock.Advance(5 * time.Second).MustWait(context.Background())
	claimed := q.ClaimNext(0)
	assert.Equal(t, at.Add(5*time.Second), claimed.StartedAt())
}

func TestQueue_ClaimFirstCreated(t *testing.T) {
	q, _ := newTestQueue(t)
	tasks := pushN(t, q, 3)

	first := q.ClaimNext(1)
	assert.Same(t, tasks[0], first)
	assert.Equal(t, task.StateStarted, first.State())
	assert.Equal(t, 1, first.WorkerID())

	second := q.ClaimNext(2)
	assert.Same(t, tasks[1], second)

	assert.Equal(t, types.QueueStats{Created: 1, Started: 2}, q.Stats())
}

func TestQueue_ClaimBlocksUntilPush(t *testing.T) {
	q, _ := newTestQueue(t)

	claimed := make(chan *task.Task, 1)
	go func() {
		claimed <- q.ClaimNext(0)
	}()

	select {
	case <-claimed:
		t.Fatal("ClaimNext returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	tk := task.New("echo", nil, nil)
	require.NoError(t, q.Push(tk))

	select {
	case got := <-claimed:
		assert.Same(t, tk, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Push did not wake the claimer")
	}
}

func TestQueue_HarvestNothingPending(t *testing.T) {
	q, n := newTestQueue(t)
	pushN(t, q, 1)

	finished, err := q.Harvest()
	require.NoError(t, err)
	assert.Empty(t, finished)
	assert.False(t, n.Pending())
	assert.Equal(t, 1, q.Len())
}

func TestQueue_HarvestCompactsInOrder(t *testing.T) {
	q, n := newTestQueue(t)
	tasks := pushN(t, q, 6)

	for range tasks {
		q.ClaimNext(0)
	}
	for _, i := range []int{4, 1, 3} {
		require.NoError(t, q.Complete(tasks[i], i, nil))
	}
	assert.True(t, n.Pending())

	finished, err := q.Harvest()
	require.NoError(t, err)

	// queue order, not completion order
	require.Len(t, finished, 3)
	assert.Same(t, tasks[1], finished[0])
	assert.Same(t, tasks[3], finished[1])
	assert.Same(t, tasks[4], finished[2])

	require.Len(t, q.tasks, 3)
	assert.Same(t, tasks[0], q.tasks[0])
	assert.Same(t, tasks[2], q.tasks[1])
	assert.Same(t, tasks[5], q.tasks[2])

	assert.False(t, n.Pending())
	assert.Equal(t, int64(1), n.Stats().Drains)

	// nothing new finished since the drain
	again, err := q.Harvest()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueue_HarvestMixedOutcomes(t *testing.T) {
	q, _ := newTestQueue(t)
	tasks := pushN(t, q, 2)
	q.ClaimNext(0)
	q.ClaimNext(0)

	cause := errors.New("boom")
	require.NoError(t, q.Complete(tasks[0], "ok", nil))
	require.NoError(t, q.Complete(tasks[1], nil, cause))

	finished, err := q.Harvest()
	require.NoError(t, err)
	require.Len(t, finished, 2)

	assert.Equal(t, task.StateSucceeded, finished[0].State())
	assert.Equal(t, "ok", finished[0].Result())
	assert.Equal(t, task.StateFailed, finished[1].State())
	assert.Same(t, cause, finished[1].Err())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_CompleteTwice(t *testing.T) {
	q, _ := newTestQueue(t)
	tasks := pushN(t, q, 1)
	q.ClaimNext(0)

	require.NoError(t, q.Complete(tasks[0], nil, nil))
	assert.ErrorIs(t, q.Complete(tasks[0], nil, nil), types.ErrInvalidTransition)
}

func TestQueue_CompleteUnclaimed(t *testing.T) {
	q, n := newTestQueue(t)
	tasks := pushN(t, q, 1)

	assert.ErrorIs(t, q.Complete(tasks[0], nil, nil), types.ErrInvalidTransition)
	assert.False(t, n.Pending())
}

func TestQueue_HarvestInvariantViolation(t *testing.T) {
	q, n := newTestQueue(t)
	pushN(t, q, 2)

	// a raise with no finished task can only come from a bookkeeping bug
	require.NoError(t, n.Raise())

	finished, err := q.Harvest()
	assert.Nil(t, finished)

	var invErr *types.InvariantError
	require.ErrorAs(t, err, &invErr)
	assert.True(t, types.IsFatal(err))
	assert.True(t, n.Pending())
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Shutdown(t *testing.T) {
	q, _ := newTestQueue(t)
	const workers = 4

	var wg sync.WaitGroup
	got := make(chan *task.Task, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			got <- q.ClaimNext(id)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	q.Shutdown(workers)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("claimers still blocked after Shutdown")
	}
	close(got)

	for tk := range got {
		assert.Equal(t, task.TypeShutdown, tk.Type())
	}
	assert.Empty(t, q.tasks)
}

func TestQueue_ShutdownAfterQueuedWork(t *testing.T) {
	q, _ := newTestQueue(t)
	tasks := pushN(t, q, 2)
	q.Shutdown(1)

	assert.Same(t, tasks[0], q.ClaimNext(0))
	assert.Same(t, tasks[1], q.ClaimNext(0))
	assert.Equal(t, task.TypeShutdown, q.ClaimNext(0).Type())
	assert.Equal(t, 2, q.Len())
}

func TestQueue_SingleClaimUnderLoad(t *testing.T) {
	q, _ := newTestQueue(t)
	const (
		workers = 8
		total   = 2000
	)

	claims := make([]int32, total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				tk := q.ClaimNext(id)
				if tk.Type() == task.TypeShutdown {
					return
				}
				atomic.AddInt32(&claims[tk.Payload().(int)], 1)
				assert.NoError(t, q.Complete(tk, nil, nil))
			}
		}(w)
	}

	var harvested int
	seen := make(map[*task.Task]bool, total)
	for i := 0; i < total; i++ {
		require.NoError(t, q.Push(task.New("echo", i, nil)))
		if i%100 == 0 {
			batch, err := q.Harvest()
			require.NoError(t, err)
			for _, tk := range batch {
				assert.False(t, seen[tk], "task harvested twice")
				seen[tk] = true
			}
			harvested += len(batch)
		}
	}

	q.Shutdown(workers)
	wg.Wait()

	batch, err := q.Harvest()
	require.NoError(t, err)
	for _, tk := range batch {
		assert.False(t, seen[tk], "task harvested twice")
		seen[tk] = true
	}
	harvested += len(batch)

	assert.Equal(t, total, harvested)
	for i, c := range claims {
		assert.Equal(t, int32(1), c, "task %d claimed %d times", i, c)
	}
	assert.Equal(t, 0, q.Len())
}
